package valve_simulator

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/battery"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/clock"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/metrics"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/entities"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model/messages"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/radio"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/pkg/dedup"
	"github.com/LeonardoBeccarini/sdcc_fleetsim/pkg/rabbitmq"
)

const (
	openDrainV   = 0.010
	idleDrainV   = 0.004
	solarChargeV = 0.0012

	batteryInitV   = 4.05
	batteryInitJit = 0.35

	redeliveryTTL = 10 * time.Minute
)

// StatusSink receives a copy of every emitted status.
type StatusSink interface {
	WriteStatus(rec messages.StatusRecord)
}

type Config struct {
	TopicRoot string
	Daylight  battery.Daylight
	Source    *radio.Source
	Clock     clock.Clock
	Sink      StatusSink
	Metrics   *metrics.Metrics
	Log       *slog.Logger

	// Simulated device turnaround before a command takes effect.
	MinLatency, MaxLatency time.Duration
	// Delay before each valve announces itself at startup.
	MinBootJitter, MaxBootJitter time.Duration
}

func (c *Config) withDefaults() {
	if c.Source == nil {
		c.Source = radio.NewSource()
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.Daylight.IsZero() {
		c.Daylight = battery.DefaultDaylight()
	}
	if c.MaxLatency <= 0 {
		c.MinLatency, c.MaxLatency = 50*time.Millisecond, 250*time.Millisecond
	}
	if c.MaxBootJitter <= 0 {
		c.MinBootJitter, c.MaxBootJitter = 100*time.Millisecond, 800*time.Millisecond
	}
}

// ValveSimulator runs the state machine of every valve in the fleet.
// Valves are independent: each one is guarded by its own lock, and every
// delay (command latency, boot jitter, auto-close) runs on its own timer.
type ValveSimulator struct {
	publisher rabbitmq.IPublisher
	valves    map[string]*valve
	order     []*valve
	cfg       Config
	deduper   *dedup.Deduper
	log       *slog.Logger

	stopped atomic.Bool
	timerMu sync.Mutex
	timers  map[clock.Timer]struct{}
}

func NewValveSimulator(publisher rabbitmq.IPublisher, fleet entities.Fleet, cfg Config) *ValveSimulator {
	cfg.withDefaults()
	s := &ValveSimulator{
		publisher: publisher,
		valves:    make(map[string]*valve, len(fleet.Valves)),
		cfg:       cfg,
		deduper:   dedup.New(redeliveryTTL, 10000).WithClock(cfg.Clock.Now),
		log:       cfg.Log.With("component", "valve-sim"),
		timers:    make(map[clock.Timer]struct{}),
	}
	for _, m := range fleet.Valves {
		v := &valve{
			meta:    m,
			state:   entities.ValveClose,
			battery: battery.New(batteryInitV - cfg.Source.Uniform(0, batteryInitJit)),
		}
		s.valves[m.ID] = v
		s.order = append(s.order, v)
	}
	return s
}

// Subscribe registers the downlink topic of every valve.
func (s *ValveSimulator) Subscribe(consumer rabbitmq.IConsumer) error {
	for _, v := range s.order {
		topic := messages.ValveDownlinkTopic(s.cfg.TopicRoot, v.meta.ID)
		if err := consumer.ConsumeMessage(topic, rabbitmq.QoSAtLeastOnce, s.handleMessage); err != nil {
			return err
		}
	}
	return nil
}

// StartBoot schedules one BOOT status per valve after a small random jitter.
func (s *ValveSimulator) StartBoot() {
	for _, v := range s.order {
		v := v
		d := s.cfg.Source.Duration(s.cfg.MinBootJitter, s.cfg.MaxBootJitter)
		s.afterFunc(d, func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			s.emitLocked(v, nil, messages.EventBoot, s.cfg.Clock.Now())
		})
	}
}

// PublishHeartbeat emits the current status of every valve without changing it.
func (s *ValveSimulator) PublishHeartbeat() {
	for _, v := range s.order {
		v.mu.Lock()
		s.emitLocked(v, nil, messages.EventHeartbeat, s.cfg.Clock.Now())
		v.mu.Unlock()
	}
}

// Snapshot returns the state of every valve in fleet order.
func (s *ValveSimulator) Snapshot() []ValveSnapshot {
	out := make([]ValveSnapshot, 0, len(s.order))
	for _, v := range s.order {
		out = append(out, v.snapshot())
	}
	return out
}

// Stop cancels pending command, boot and auto-close timers. Valve state is
// left as is.
func (s *ValveSimulator) Stop() {
	s.stopped.Store(true)
	s.timerMu.Lock()
	for t := range s.timers {
		t.Stop()
	}
	s.timers = make(map[clock.Timer]struct{})
	s.timerMu.Unlock()

	for _, v := range s.order {
		v.mu.Lock()
		s.cancelJobLocked(v)
		v.mu.Unlock()
	}
}

// afterFunc runs f on its own timer and tracks the timer until it fires.
func (s *ValveSimulator) afterFunc(d time.Duration, f func()) {
	if s.stopped.Load() {
		return
	}
	var t clock.Timer
	done := make(chan struct{})
	s.timerMu.Lock()
	t = s.cfg.Clock.AfterFunc(d, func() {
		<-done
		s.timerMu.Lock()
		delete(s.timers, t)
		s.timerMu.Unlock()
		if !s.stopped.Load() {
			f()
		}
	})
	s.timers[t] = struct{}{}
	s.timerMu.Unlock()
	close(done)
}
