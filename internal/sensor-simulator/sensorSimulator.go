package sensor_simulator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/battery"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/metrics"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/messages"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/radio"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/pkg/rabbitmq"
)

const (
	solarChargeV = 0.0008
	transmitV    = 0.0018

	// initial voltage is 4.1 minus up to 0.3
	batteryInitV   = 4.1
	batteryInitJit = 0.3
)

// TelemetrySink receives a copy of every emitted uplink.
type TelemetrySink interface {
	WriteTelemetry(rec messages.TelemetryRecord)
}

type Config struct {
	TopicRoot string
	Daylight  battery.Daylight
	Source    *radio.Source
	Sink      TelemetrySink
	Metrics   *metrics.Metrics
	Log       *slog.Logger
}

type sensor struct {
	meta entities.Sensor

	mu      sync.Mutex
	env     Environment
	battery *battery.Battery
}

// SensorSnapshot is a point-in-time view of one sensor.
type SensorSnapshot struct {
	ID           string  `json:"id"`
	Zone         string  `json:"zone"`
	TemperatureC float64 `json:"tempC"`
	HumidityPct  float64 `json:"humidityPct"`
	BatteryV     float64 `json:"batteryV"`
}

// FleetSimulator emits one telemetry record per sensor per tick.
type FleetSimulator struct {
	publisher rabbitmq.IPublisher
	sensors   []*sensor
	coverage  float64
	cfg       Config
	log       *slog.Logger
}

func NewFleetSimulator(publisher rabbitmq.IPublisher, fleet entities.Fleet, cfg Config) *FleetSimulator {
	if cfg.Source == nil {
		cfg.Source = radio.NewSource()
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.Daylight.IsZero() {
		cfg.Daylight = battery.DefaultDaylight()
	}

	sensors := make([]*sensor, 0, len(fleet.Sensors))
	for _, m := range fleet.Sensors {
		sensors = append(sensors, &sensor{
			meta:    m,
			env:     SeedEnvironment(cfg.Source),
			battery: battery.New(batteryInitV - cfg.Source.Uniform(0, batteryInitJit)),
		})
	}
	return &FleetSimulator{
		publisher: publisher,
		sensors:   sensors,
		coverage:  messages.Round(fleet.Coverage(), 2),
		cfg:       cfg,
		log:       cfg.Log.With("component", "sensor-sim"),
	}
}

// makeRecord advances one sensor by a tick at ts and returns its uplink.
func (f *FleetSimulator) makeRecord(s *sensor, ts time.Time) messages.TelemetryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.env.Step(f.cfg.Source)
	if f.cfg.Daylight.Contains(ts) {
		s.battery.Charge(solarChargeV)
	}
	s.battery.Drain(transmitV)

	rssi, snr := radio.SensorLink.Sample(f.cfg.Source)
	return messages.TelemetryRecord{
		DeviceID:        s.meta.ID,
		Type:            entities.SensorType,
		Zone:            s.meta.Zone,
		Timestamp:       ts.UnixMilli(),
		Latitude:        s.meta.Latitude,
		Longitude:       s.meta.Longitude,
		TemperatureC:    messages.Round(s.env.TemperatureC, 2),
		HumidityPct:     messages.Round(s.env.HumidityPct, 2),
		BatteryV:        s.battery.Read(),
		RSSI:            rssi,
		SNR:             snr,
		AcreageCoverage: f.coverage,
	}
}

// PublishTick emits an uplink for every sensor stamped with ts. Publish
// failures are logged and counted; the transport owns recovery.
func (f *FleetSimulator) PublishTick(ts time.Time) {
	for _, s := range f.sensors {
		rec := f.makeRecord(s, ts)
		payload, err := rec.Encode()
		if err != nil {
			f.log.Error("encode telemetry", "sensor", rec.DeviceID, "err", err)
			continue
		}
		topic := messages.SensorUplinkTopic(f.cfg.TopicRoot, rec.DeviceID)
		if err := f.publisher.PublishMessage(topic, rabbitmq.QoSAtLeastOnce, payload); err != nil {
			f.cfg.Metrics.PublishFailed("telemetry")
			f.log.Debug("telemetry not published", "sensor", rec.DeviceID, "err", err)
		} else {
			f.cfg.Metrics.Published("telemetry")
		}
		if f.cfg.Sink != nil {
			f.cfg.Sink.WriteTelemetry(rec)
		}
	}
	f.log.Debug("tick published", "sensors", len(f.sensors), "ts", ts.UTC().Format(time.RFC3339))
}

// Snapshot returns the current state of every sensor.
func (f *FleetSimulator) Snapshot() []SensorSnapshot {
	out := make([]SensorSnapshot, 0, len(f.sensors))
	for _, s := range f.sensors {
		s.mu.Lock()
		out = append(out, SensorSnapshot{
			ID:           s.meta.ID,
			Zone:         s.meta.Zone,
			TemperatureC: messages.Round(s.env.TemperatureC, 2),
			HumidityPct:  messages.Round(s.env.HumidityPct, 2),
			BatteryV:     s.battery.Read(),
		})
		s.mu.Unlock()
	}
	return out
}
