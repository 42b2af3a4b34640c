// Package fleet assembles the simulator runtime: broker session, device
// simulators, tick scheduler, mirror sinks and the admin surface.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/battery"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/clock"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/metrics"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/radio"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/scheduler"
	sensor_simulator "github.com/LeonardoBeccarini/sdcc_fleetsim/internal/sensor-simulator"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/services/admin"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/services/persistence"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/topology"
	valve_simulator "github.com/LeonardoBeccarini/sdcc_fleetsim/internal/valve-simulator"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/pkg/rabbitmq"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	MQTT      rabbitmq.RabbitMQConfig
	TopicRoot string

	TimeScale  float64
	TickPeriod time.Duration

	// FleetConfigPath selects a JSON fleet file; empty means the built-in fleet.
	FleetConfigPath string
	// Acreage overrides the fleet's acreage when positive.
	Acreage  float64
	Daylight battery.Daylight

	AdminAddr      string
	GRPCHealthAddr string

	Influx persistence.InfluxConfig
	Kafka  persistence.KafkaConfig
}

func (c Config) Validate() error {
	switch {
	case c.MQTT.Host == "":
		return fmt.Errorf("%w: empty broker host", ErrInvalidConfig)
	case c.MQTT.Port < 1 || c.MQTT.Port > 65535:
		return fmt.Errorf("%w: broker port %d out of range", ErrInvalidConfig, c.MQTT.Port)
	case !(c.TimeScale > 0):
		return fmt.Errorf("%w: time scale must be > 0, got %v", ErrInvalidConfig, c.TimeScale)
	case c.TickPeriod <= 0:
		return fmt.Errorf("%w: tick period must be > 0, got %s", ErrInvalidConfig, c.TickPeriod)
	case c.Acreage < 0:
		return fmt.Errorf("%w: negative acreage", ErrInvalidConfig)
	case c.Daylight.StartHour < 0 || c.Daylight.StartHour > 23 || c.Daylight.EndHour < 0 || c.Daylight.EndHour > 24:
		return fmt.Errorf("%w: daytime window %d-%d", ErrInvalidConfig, c.Daylight.StartHour, c.Daylight.EndHour)
	}
	return nil
}

type Option func(*Runtime)

// WithClock drives every timer of the runtime from c.
func WithClock(c clock.Clock) Option { return func(r *Runtime) { r.clock = c } }

func WithSource(src *radio.Source) Option { return func(r *Runtime) { r.source = src } }

// WithSessionOptions passes options through to the broker session.
func WithSessionOptions(opts ...rabbitmq.Option) Option {
	return func(r *Runtime) { r.sessionOpts = append(r.sessionOpts, opts...) }
}

type Runtime struct {
	cfg         Config
	log         *slog.Logger
	clock       clock.Clock
	source      *radio.Source
	sessionOpts []rabbitmq.Option

	fleet   model.Fleet
	metrics *metrics.Metrics
	session *rabbitmq.Session
	sensors *sensor_simulator.FleetSimulator
	valves  *valve_simulator.ValveSimulator
	sinks   persistence.Fanout
}

// New loads the fleet and builds every component. Nothing touches the
// network until Run.
func New(cfg Config, log *slog.Logger, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	r := &Runtime{cfg: cfg, log: log, clock: clock.Real()}
	for _, o := range opts {
		o(r)
	}
	if r.source == nil {
		r.source = radio.NewSource()
	}

	fleet := topology.DefaultFleet()
	if cfg.FleetConfigPath != "" {
		f, err := topology.LoadFile(cfg.FleetConfigPath)
		if err != nil {
			return nil, err
		}
		fleet = f
	}
	if cfg.Acreage > 0 {
		fleet.Acreage = cfg.Acreage
	}
	r.fleet = fleet
	r.metrics = metrics.New()

	if cfg.Influx.InfluxURL != "" {
		s, err := persistence.NewInfluxSink(cfg.Influx, log)
		if err != nil {
			return nil, fmt.Errorf("influx sink: %w", err)
		}
		r.sinks = append(r.sinks, s)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		s, err := persistence.NewKafkaSink(cfg.Kafka, log)
		if err != nil {
			r.closeSinks()
			return nil, fmt.Errorf("kafka sink: %w", err)
		}
		r.sinks = append(r.sinks, s)
	}

	r.session = rabbitmq.NewSession(cfg.MQTT, log,
		append([]rabbitmq.Option{rabbitmq.WithMetrics(r.metrics)}, r.sessionOpts...)...)

	r.sensors = sensor_simulator.NewFleetSimulator(r.session, fleet, sensor_simulator.Config{
		TopicRoot: cfg.TopicRoot,
		Daylight:  cfg.Daylight,
		Source:    r.source,
		Sink:      r.sinks,
		Metrics:   r.metrics,
		Log:       log,
	})
	r.valves = valve_simulator.NewValveSimulator(r.session, fleet, valve_simulator.Config{
		TopicRoot: cfg.TopicRoot,
		Daylight:  cfg.Daylight,
		Source:    r.source,
		Clock:     r.clock,
		Sink:      r.sinks,
		Metrics:   r.metrics,
		Log:       log,
	})
	return r, nil
}

func (r *Runtime) Fleet() model.Fleet { return r.fleet }

func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Run connects, announces every valve and ticks until ctx is cancelled.
// Cancellation is a clean stop and returns nil.
func (r *Runtime) Run(ctx context.Context) error {
	started := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.shutdown()

	// registered now, subscribed by the session on every (re)connect
	if err := r.valves.Subscribe(r.session); err != nil {
		return fmt.Errorf("register downlink subscriptions: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	if err := r.startAdmin(ctx, g, started); err != nil {
		return err
	}

	g.Go(func() error {
		r.log.Info("fleet starting",
			"sensors", len(r.fleet.Sensors), "valves", len(r.fleet.Valves),
			"broker", fmt.Sprintf("%s:%d", r.cfg.MQTT.Host, r.cfg.MQTT.Port),
			"time_scale", r.cfg.TimeScale, "tick_period", r.cfg.TickPeriod)
		if err := r.session.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.valves.StartBoot()

		sched, err := scheduler.New(scheduler.Config{
			Period:  r.cfg.TickPeriod,
			Scale:   r.cfg.TimeScale,
			Clock:   r.clock,
			Metrics: r.metrics,
			Log:     r.log,
		}, r.sensors.PublishTick, func(time.Time) { r.valves.PublishHeartbeat() })
		if err != nil {
			return err
		}
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	return g.Wait()
}

func (r *Runtime) startAdmin(ctx context.Context, g *errgroup.Group, started time.Time) error {
	if addr := r.cfg.AdminAddr; addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("admin listen %s: %w", addr, err)
		}
		router := admin.NewRouter(admin.Deps{
			Conn:     r.session,
			Registry: r.metrics.Registry,
			Valves:   r.valves,
			Sensors:  r.sensors,
			Started:  started,
		})
		srv := admin.NewHTTPServer(addr, router, os.Stdout, r.log)
		g.Go(func() error { return srv.Serve(ctx, lis) })
	}
	if addr := r.cfg.GRPCHealthAddr; addr != "" {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("grpc health listen %s: %w", addr, err)
		}
		hs := admin.NewHealthServer(r.session, 2*time.Second, r.log)
		g.Go(func() error { return hs.Serve(ctx, lis) })
	}
	return nil
}

func (r *Runtime) shutdown() {
	r.valves.Stop()
	r.session.Close()
	r.closeSinks()
	r.log.Info("fleet stopped")
}

func (r *Runtime) closeSinks() {
	if err := r.sinks.Close(); err != nil {
		r.log.Warn("closing mirror sinks", "err", err)
	}
}
