package sensor_simulator

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/battery"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/metrics"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/messages"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/radio"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/pkg/rabbitmq"
)

var tick = time.Date(2026, 10, 18, 10, 30, 0, 0, time.UTC)

type recordingSink struct {
	mu   sync.Mutex
	recs []messages.TelemetryRecord
}

func (r *recordingSink) WriteTelemetry(rec messages.TelemetryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

func testFleet() entities.Fleet {
	return entities.Fleet{
		Sensors: []entities.Sensor{
			{ID: "S001", Zone: "Z1", Latitude: 30.0002, Longitude: 120.0002},
			{ID: "S002", Zone: "Z1", Latitude: 30.0004, Longitude: 120.0004},
			{ID: "S003", Zone: "Z2", Latitude: 30.0006, Longitude: 120.0006},
		},
		Acreage: 500,
	}
}

func newTestSim(pub rabbitmq.IPublisher, daylight battery.Daylight, sink TelemetrySink) *FleetSimulator {
	return NewFleetSimulator(pub, testFleet(), Config{
		Daylight: daylight,
		Source:   radio.NewSeededSource(42, 7),
		Sink:     sink,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func allDay() battery.Daylight {
	return battery.Daylight{StartHour: 0, EndHour: 24, Location: time.UTC}
}
func noDay() battery.Daylight { return battery.Daylight{StartHour: 5, EndHour: 5, Location: time.UTC} }

func TestPublishTickEmitsOneRecordPerSensor(t *testing.T) {
	pub := rabbitmq.NewFakePublisher()
	sink := &recordingSink{}
	sim := newTestSim(pub, allDay(), sink)

	sim.PublishTick(tick)

	pubs := pub.Published()
	require.Len(t, pubs, 3)
	for i, p := range pubs {
		id := testFleet().Sensors[i].ID
		assert.Equal(t, messages.SensorUplinkTopic("", id), p.Topic)
		assert.Equal(t, rabbitmq.QoSAtLeastOnce, p.QoS)

		var rec messages.TelemetryRecord
		require.NoError(t, json.Unmarshal(p.Payload, &rec))
		assert.Equal(t, id, rec.DeviceID)
		assert.Equal(t, "soil", rec.Type)
		assert.Equal(t, tick.UnixMilli(), rec.Timestamp)
		assert.InDelta(t, 166.67, rec.AcreageCoverage, 1e-9)
		assert.GreaterOrEqual(t, rec.RSSI, -120)
		assert.LessOrEqual(t, rec.RSSI, -70)
		assert.GreaterOrEqual(t, rec.BatteryV, battery.MinVoltage)
		assert.LessOrEqual(t, rec.BatteryV, battery.MaxVoltage)
		assert.Equal(t, messages.Round(rec.TemperatureC, 2), rec.TemperatureC)
	}
	assert.Len(t, sink.recs, 3)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(pubs[0].Payload, &raw))
	for _, k := range []string{"deviceId", "type", "zone", "ts", "lat", "lon", "tempC", "humidityPct", "batteryV", "rssi", "snr", "acreageCoverage"} {
		assert.Contains(t, raw, k)
	}
}

func TestEnvironmentRandomWalkIsBounded(t *testing.T) {
	pub := rabbitmq.NewFakePublisher()
	sim := newTestSim(pub, allDay(), nil)

	prev := sim.Snapshot()
	for i := 0; i < 2000; i++ {
		sim.PublishTick(tick.Add(time.Duration(i) * 30 * time.Minute))
		cur := sim.Snapshot()
		for j := range cur {
			assert.LessOrEqual(t, cur[j].TemperatureC-prev[j].TemperatureC, tempStepC+0.01)
			assert.GreaterOrEqual(t, cur[j].TemperatureC-prev[j].TemperatureC, -tempStepC-0.01)
			require.True(t, cur[j].TemperatureC >= minTempC && cur[j].TemperatureC <= maxTempC)
			require.True(t, cur[j].HumidityPct >= minHumidity && cur[j].HumidityPct <= maxHumidity)
		}
		prev = cur
	}
}

func TestDaytimeChargesBattery(t *testing.T) {
	run := func(d battery.Daylight) float64 {
		sim := newTestSim(rabbitmq.NewFakePublisher(), d, nil)
		before := sim.Snapshot()[0].BatteryV
		for i := 0; i < 10; i++ {
			sim.PublishTick(tick)
		}
		return sim.Snapshot()[0].BatteryV - before
	}

	assert.InDelta(t, -10*(transmitV-solarChargeV), run(allDay()), 0.0011)
	assert.InDelta(t, -10*transmitV, run(noDay()), 0.0011)
	assert.InDelta(t, -10*transmitV, run(battery.Daylight{StartHour: 0, EndHour: 0, Location: time.UTC}), 0.0011,
		"a 0-0 window never charges")
}

func TestPublishFailureIsNotFatal(t *testing.T) {
	pub := rabbitmq.NewFakePublisher()
	pub.SetError(errors.New("mqtt: not connected"))
	sink := &recordingSink{}
	m := metrics.New()
	sim := NewFleetSimulator(pub, testFleet(), Config{
		Daylight: allDay(),
		Source:   radio.NewSeededSource(1, 1),
		Sink:     sink,
		Metrics:  m,
		Log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	assert.NotPanics(t, func() { sim.PublishTick(tick) })
	assert.Empty(t, pub.Published())
	assert.Len(t, sink.recs, 3, "mirror still sees every record")
}

func TestCoverageWithNoSensors(t *testing.T) {
	sim := NewFleetSimulator(rabbitmq.NewFakePublisher(), entities.Fleet{Acreage: 500}, Config{})
	assert.Equal(t, 500.0, sim.coverage)
	assert.Empty(t, sim.Snapshot())
}
