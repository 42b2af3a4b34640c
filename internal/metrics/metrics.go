// Package metrics holds the Prometheus collectors of the fleet simulator.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "fleetsim"

// Command outcomes.
const (
	CommandApplied   = "applied"
	CommandDuplicate = "duplicate"
	CommandMalformed = "malformed"
	CommandUnknown   = "unknown_valve"
)

// Close job transitions.
const (
	JobScheduled = "scheduled"
	JobCancelled = "cancelled"
	JobFired     = "fired"
)

type Metrics struct {
	Registry *prometheus.Registry

	published     *prometheus.CounterVec
	publishErrors *prometheus.CounterVec
	commands      *prometheus.CounterVec
	closeJobs     *prometheus.CounterVec
	ticks         prometheus.Counter
	reconnects    prometheus.Counter
	connected     prometheus.Gauge
	valvesOpen    prometheus.Gauge
	tickDuration  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "published_total",
			Help: "Records handed to the broker, by kind (telemetry|status).",
		}, []string{"kind"}),
		publishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "publish_errors_total",
			Help: "Records the transport failed or refused to publish, by kind.",
		}, []string{"kind"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "valve_commands_total",
			Help: "Inbound valve commands by outcome.",
		}, []string{"outcome"}),
		closeJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "close_jobs_total",
			Help: "Deferred auto-close jobs by transition.",
		}, []string{"transition"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Scheduler ticks fired.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "mqtt_reconnects_total",
			Help: "Successful reconnections after a lost broker connection.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "mqtt_connected",
			Help: "1 while the broker connection is up.",
		}),
		valvesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "valves_open",
			Help: "Valves currently in OPEN state.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_duration_seconds",
			Help:    "Wall time spent emitting one tick.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	m.Registry.MustRegister(
		m.published, m.publishErrors, m.commands, m.closeJobs,
		m.ticks, m.reconnects, m.connected, m.valvesOpen, m.tickDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Published(kind string) {
	if m != nil {
		m.published.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) PublishFailed(kind string) {
	if m != nil {
		m.publishErrors.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Command(outcome string) {
	if m != nil {
		m.commands.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) CloseJob(transition string) {
	if m != nil {
		m.closeJobs.WithLabelValues(transition).Inc()
	}
}

func (m *Metrics) Tick(seconds float64) {
	if m != nil {
		m.ticks.Inc()
		m.tickDuration.Observe(seconds)
	}
}

func (m *Metrics) Reconnected() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) ValveOpened() {
	if m != nil {
		m.valvesOpen.Inc()
	}
}

func (m *Metrics) ValveClosed() {
	if m != nil {
		m.valvesOpen.Dec()
	}
}
