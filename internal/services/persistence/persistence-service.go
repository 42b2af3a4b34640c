// Package persistence mirrors every record the simulators emit to optional
// stores, so a run can be replayed or inspected without a broker subscriber.
package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model"
)

const (
	TelemetryMeasurement = "soil_telemetry"
	StatusMeasurement    = "valve_status"
)

var ErrIncompleteConfig = errors.New("influx config incomplete")

// Configurazione Influx
type InfluxConfig struct {
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// InfluxSink writes records as points through the non-blocking WriteAPI.
// Write errors surface asynchronously and are only logged.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	log      *slog.Logger
}

func NewInfluxSink(cfg InfluxConfig, log *slog.Logger) (*InfluxSink, error) {
	if cfg.InfluxURL == "" || cfg.InfluxToken == "" || cfg.InfluxOrg == "" || cfg.InfluxBucket == "" {
		return nil, ErrIncompleteConfig
	}
	if log == nil {
		log = slog.Default()
	}
	client := influxdb2.NewClientWithOptions(cfg.InfluxURL, cfg.InfluxToken,
		influxdb2.DefaultOptions().SetBatchSize(500).SetFlushInterval(1000).SetPrecision(time.Millisecond))
	s := &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPI(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      log.With("component", "influx-sink", "bucket", cfg.InfluxBucket),
	}
	go s.watchErrors()
	return s, nil
}

func (s *InfluxSink) watchErrors() {
	for err := range s.writeAPI.Errors() {
		if err != nil {
			s.log.Warn("influx write error", "err", err)
		}
	}
}

func (s *InfluxSink) WriteTelemetry(rec model.TelemetryRecord) {
	s.writeAPI.WritePoint(telemetryPoint(rec))
}

func (s *InfluxSink) WriteStatus(rec model.StatusRecord) {
	s.writeAPI.WritePoint(statusPoint(rec))
}

// Close flushes buffered points and releases the client.
func (s *InfluxSink) Close() error {
	s.writeAPI.Flush()
	s.client.Close()
	return nil
}

func telemetryPoint(rec model.TelemetryRecord) *write.Point {
	tags := map[string]string{
		"deviceId": rec.DeviceID,
		"zone":     rec.Zone,
		"type":     rec.Type,
	}
	fields := map[string]interface{}{
		"tempC":           rec.TemperatureC,
		"humidityPct":     rec.HumidityPct,
		"batteryV":        rec.BatteryV,
		"rssi":            rec.RSSI,
		"snr":             rec.SNR,
		"lat":             rec.Latitude,
		"lon":             rec.Longitude,
		"acreageCoverage": rec.AcreageCoverage,
	}
	return influxdb2.NewPoint(TelemetryMeasurement, tags, fields, time.UnixMilli(rec.Timestamp))
}

func statusPoint(rec model.StatusRecord) *write.Point {
	tags := map[string]string{
		"valveId": rec.ValveID,
		"event":   sanitizeTag(string(rec.Event)),
	}
	fields := map[string]interface{}{
		"state":       rec.State,
		"open":        rec.State == string(model.ValveOpen),
		"batteryV":    rec.BatteryV,
		"rssi":        rec.RSSI,
		"snr":         rec.SNR,
		"respondedAt": rec.RespondedAt,
	}
	if rec.CommandID != nil {
		fields["commandId"] = *rec.CommandID
	}
	return influxdb2.NewPoint(StatusMeasurement, tags, fields, time.UnixMilli(rec.Timestamp))
}

func sanitizeTag(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '_', r == ':', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Sink receives a copy of every emitted record.
type Sink interface {
	WriteTelemetry(rec model.TelemetryRecord)
	WriteStatus(rec model.StatusRecord)
	Close() error
}

// Fanout forwards every record to each of its sinks in order.
type Fanout []Sink

func (f Fanout) WriteTelemetry(rec model.TelemetryRecord) {
	for _, s := range f {
		s.WriteTelemetry(rec)
	}
}

func (f Fanout) WriteStatus(rec model.StatusRecord) {
	for _, s := range f {
		s.WriteStatus(rec)
	}
}

func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink: %w", err))
		}
	}
	return errors.Join(errs...)
}
