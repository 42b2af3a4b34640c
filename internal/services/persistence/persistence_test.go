package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/messages"
)

var ts = time.Date(2026, 10, 18, 10, 30, 0, 0, time.UTC)

func telemetry() model.TelemetryRecord {
	return model.TelemetryRecord{
		DeviceID: "S001", Type: "soil", Zone: "Z1", Timestamp: ts.UnixMilli(),
		Latitude: 30.0002, Longitude: 120.0002, TemperatureC: 22.5, HumidityPct: 41.25,
		BatteryV: 4.012, RSSI: -90, SNR: 3.4, AcreageCoverage: 10,
	}
}

func status(cmdID *string) model.StatusRecord {
	return model.StatusRecord{
		ValveID: "V001", CommandID: cmdID, State: "OPEN", Event: messages.EventCommand,
		BatteryV: 3.98, RSSI: -80, SNR: -1.5, Timestamp: ts.UnixMilli(), RespondedAt: ts.Add(120 * time.Millisecond).UnixMilli(),
	}
}

func TestTelemetryPoint(t *testing.T) {
	line := write.PointToLineProtocol(telemetryPoint(telemetry()), time.Millisecond)

	assert.True(t, strings.HasPrefix(line, "soil_telemetry,deviceId=S001,type=soil,zone=Z1 "), line)
	assert.Contains(t, line, "tempC=22.5")
	assert.Contains(t, line, "rssi=-90i")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(line), " 1792319400000"), line)
}

func TestStatusPoint(t *testing.T) {
	id := "c1"
	line := write.PointToLineProtocol(statusPoint(status(&id)), time.Millisecond)
	assert.True(t, strings.HasPrefix(line, "valve_status,event=COMMAND,valveId=V001 "), line)
	assert.Contains(t, line, `commandId="c1"`)
	assert.Contains(t, line, "open=true")

	line = write.PointToLineProtocol(statusPoint(status(nil)), time.Millisecond)
	assert.NotContains(t, line, "commandId")
}

func TestSanitizeTag(t *testing.T) {
	assert.Equal(t, "AUTO_CLOSE", sanitizeTag("AUTO_CLOSE"))
	assert.Equal(t, "a_b_c", sanitizeTag("a b/c"))
}

func TestNewInfluxSinkRequiresConfig(t *testing.T) {
	_, err := NewInfluxSink(InfluxConfig{InfluxURL: "http://localhost:8086"}, nil)
	assert.ErrorIs(t, err, ErrIncompleteConfig)
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	calls  int
	err    error
	closed bool

	// when set, the first write signals started and waits for gate
	started chan struct{}
	gate    chan struct{}
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	w.calls++
	first := w.calls == 1
	w.mu.Unlock()
	if first && w.gate != nil {
		close(w.started)
		<-w.gate
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestKafkaSinkDeliversKeyedRecords(t *testing.T) {
	w := &fakeWriter{}
	s := newKafkaSink(w, quiet())

	s.WriteTelemetry(telemetry())
	s.WriteStatus(status(nil))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	require.Len(t, w.msgs, 2)
	assert.True(t, w.closed)
	assert.Equal(t, "S001", string(w.msgs[0].Key))
	assert.Equal(t, "telemetry", string(w.msgs[0].Headers[0].Value))
	assert.Equal(t, "V001", string(w.msgs[1].Key))

	var rec model.StatusRecord
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &rec))
	assert.Equal(t, messages.EventCommand, rec.Event)
	assert.Nil(t, rec.CommandID)
}

func TestKafkaSinkBatchesQueuedRecords(t *testing.T) {
	w := &fakeWriter{started: make(chan struct{}), gate: make(chan struct{})}
	s := newKafkaSink(w, quiet())

	s.WriteTelemetry(telemetry())
	select {
	case <-w.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first write never started")
	}
	for i := 0; i < 250; i++ {
		s.WriteStatus(status(nil))
	}
	close(w.gate)
	require.NoError(t, s.Close())

	require.Len(t, w.msgs, 251)
	assert.Equal(t, 4, w.calls, "one blocked write, then batches of 100, 100 and 50")
	assert.Equal(t, "S001", string(w.msgs[0].Key))
	assert.Equal(t, "V001", string(w.msgs[250].Key))
}

func TestKafkaSinkSurvivesWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	s := newKafkaSink(w, quiet())
	s.WriteTelemetry(telemetry())
	assert.NoError(t, s.Close())
	assert.Empty(t, w.msgs)
}

func TestNewKafkaSinkValidates(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Topic: "t"}, quiet())
	assert.ErrorIs(t, err, errNoBrokers)
	_, err = NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}}, quiet())
	assert.Error(t, err)
}

type recordingSink struct {
	telemetry int
	status    int
	closeErr  error
}

func (r *recordingSink) WriteTelemetry(model.TelemetryRecord) { r.telemetry++ }
func (r *recordingSink) WriteStatus(model.StatusRecord)       { r.status++ }
func (r *recordingSink) Close() error                         { return r.closeErr }

func TestFanout(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{closeErr: errors.New("boom")}
	f := Fanout{a, b}

	f.WriteTelemetry(telemetry())
	f.WriteStatus(status(nil))
	f.WriteStatus(status(nil))

	assert.Equal(t, 1, a.telemetry)
	assert.Equal(t, 2, b.status)
	assert.ErrorContains(t, f.Close(), "boom")
}
