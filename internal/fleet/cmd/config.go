package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/battery"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/fleet"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/messages"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/pkg/rabbitmq"
)

func getenv(k, d string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return d
}

func getenvFloat(k string, d float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return d
}

func getenvDuration(k string, d time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if dur, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return dur
		}
	}
	return d
}

type options struct {
	fleet    fleet.Config
	prefix   string
	tz       string
	brokers  string
	logLevel string
	logPath  string
}

// loadConfig reads flags, each defaulting to its environment variable.
func loadConfig(fs *flag.FlagSet, args []string) (fleet.Config, options, error) {
	var o options
	c := &o.fleet
	fs.StringVar(&c.MQTT.Host, "mqtt-host", getenv("MQTT_HOST", "127.0.0.1"), "broker host")
	fs.IntVar(&c.MQTT.Port, "mqtt-port", getenvInt("MQTT_PORT", 1883), "broker port")
	fs.StringVar(&c.MQTT.User, "mqtt-user", getenv("MQTT_USER", ""), "broker user")
	fs.StringVar(&c.MQTT.Password, "mqtt-password", getenv("MQTT_PASSWORD", ""), "broker password")
	fs.StringVar(&o.prefix, "client-prefix", getenv("CLIENT_PREFIX", "sim"), "MQTT client id prefix")
	fs.StringVar(&c.TopicRoot, "topic-root", getenv("TOPIC_ROOT", messages.DefaultTopicRoot), "device topic root")
	fs.Float64Var(&c.TimeScale, "time-scale", getenvFloat("TIME_SCALE", 1.0), "simulated seconds per real second")
	fs.DurationVar(&c.TickPeriod, "tick-period", getenvDuration("TICK_PERIOD", 30*time.Minute), "simulated time between ticks")
	fs.StringVar(&c.FleetConfigPath, "fleet-config", getenv("FLEET_CONFIG_PATH", ""), "JSON fleet file (default built-in 50 sensors / 10 valves)")
	fs.Float64Var(&c.Acreage, "acreage", getenvFloat("ACREAGE", 500), "total acreage covered by the sensors")
	fs.StringVar(&o.tz, "tz", getenv("TZ", ""), "time zone of the daytime window (default local)")
	fs.IntVar(&c.Daylight.StartHour, "daytime-start", getenvInt("DAYTIME_START", 6), "first daytime hour")
	fs.IntVar(&c.Daylight.EndHour, "daytime-end", getenvInt("DAYTIME_END", 18), "end of daytime (exclusive hour)")
	fs.StringVar(&c.AdminAddr, "admin-addr", getenv("ADMIN_ADDR", ":8080"), "admin HTTP address, empty disables")
	fs.StringVar(&c.GRPCHealthAddr, "grpc-health-addr", getenv("GRPC_HEALTH_ADDR", ""), "gRPC health address, empty disables")
	fs.StringVar(&c.Influx.InfluxURL, "influx-url", getenv("INFLUX_URL", ""), "InfluxDB URL, empty disables the mirror")
	fs.StringVar(&c.Influx.InfluxToken, "influx-token", getenv("INFLUX_TOKEN", ""), "InfluxDB token")
	fs.StringVar(&c.Influx.InfluxOrg, "influx-org", getenv("INFLUX_ORG", "sdcc"), "InfluxDB org")
	fs.StringVar(&c.Influx.InfluxBucket, "influx-bucket", getenv("INFLUX_BUCKET", "fleetsim"), "InfluxDB bucket")
	fs.StringVar(&o.brokers, "kafka-brokers", getenv("KAFKA_BROKERS", ""), "comma separated Kafka brokers, empty disables the mirror")
	fs.StringVar(&c.Kafka.Topic, "kafka-topic", getenv("KAFKA_TOPIC", "fleetsim.records"), "Kafka topic")
	fs.StringVar(&o.logLevel, "log-level", getenv("LOG_LEVEL", "info"), "debug|info|warn|error")
	fs.StringVar(&o.logPath, "log-path", getenv("LOG_PATH", ""), "also append logs to this file")
	if err := fs.Parse(args); err != nil {
		return fleet.Config{}, o, err
	}

	c.MQTT.ClientID = rabbitmq.NewClientID(o.prefix)
	for _, b := range strings.Split(o.brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			c.Kafka.Brokers = append(c.Kafka.Brokers, b)
		}
	}

	loc := time.Local
	if o.tz != "" {
		l, err := time.LoadLocation(o.tz)
		if err != nil {
			return fleet.Config{}, o, fmt.Errorf("invalid tz %q: %w", o.tz, err)
		}
		loc = l
	}
	c.Daylight = battery.Daylight{StartHour: c.Daylight.StartHour, EndHour: c.Daylight.EndHour, Location: loc}

	if err := c.Validate(); err != nil {
		return fleet.Config{}, o, err
	}
	return *c, o, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}
