package main

import (
	"flag"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/fleet"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("fleetsim", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"MQTT_HOST", "MQTT_PORT", "TIME_SCALE", "TICK_PERIOD", "CLIENT_PREFIX", "KAFKA_BROKERS", "TZ"} {
		t.Setenv(k, "")
	}
	cfg, o, err := loadConfig(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, 1.0, cfg.TimeScale)
	assert.Equal(t, 30*time.Minute, cfg.TickPeriod)
	assert.Equal(t, "devices", cfg.TopicRoot)
	assert.Equal(t, 500.0, cfg.Acreage)
	assert.Equal(t, 6, cfg.Daylight.StartHour)
	assert.Equal(t, 18, cfg.Daylight.EndHour)
	assert.Equal(t, time.Local, cfg.Daylight.Location)
	assert.True(t, strings.HasPrefix(cfg.MQTT.ClientID, "sim-"))
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "info", o.logLevel)
}

func TestLoadConfigEnvAndFlags(t *testing.T) {
	t.Setenv("MQTT_HOST", "mosquitto")
	t.Setenv("TIME_SCALE", "60")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("CLIENT_PREFIX", "edge")

	cfg, _, err := loadConfig(newFlagSet(), []string{"-mqtt-port", "8883", "-tz", "UTC"})
	require.NoError(t, err)
	assert.Equal(t, "mosquitto", cfg.MQTT.Host)
	assert.Equal(t, 8883, cfg.MQTT.Port)
	assert.Equal(t, 60.0, cfg.TimeScale)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, time.UTC, cfg.Daylight.Location)
	assert.True(t, strings.HasPrefix(cfg.MQTT.ClientID, "edge-"))
}

func TestLoadConfigRejects(t *testing.T) {
	t.Setenv("TZ", "")
	_, _, err := loadConfig(newFlagSet(), []string{"-time-scale", "0"})
	assert.ErrorIs(t, err, fleet.ErrInvalidConfig)

	_, _, err = loadConfig(newFlagSet(), []string{"-tz", "Mars/Olympus"})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	l, err := parseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
	_, err = parseLevel("loud")
	assert.Error(t, err)
}
