package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/metrics"
)

var (
	ErrNotConnected   = errors.New("mqtt: not connected")
	ErrPublishTimeout = errors.New("mqtt: publish timeout")
	errConnectTimeout = errors.New("mqtt: connect timeout")
)

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	ClientID string

	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration

	// ConnectRetryInterval is the fixed wait between startup connection attempts.
	ConnectRetryInterval time.Duration
	// Reconnect backoff after a lost connection: exponential, jittered, never gives up.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// Consecutive publish failures that open the breaker, and how long it stays open.
	BreakerFailures int
	BreakerOpen     time.Duration
}

func (c *RabbitMQConfig) withDefaults() {
	if c.KeepAlive <= 0 {
		c.KeepAlive = 60 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.ConnectRetryInterval <= 0 {
		c.ConnectRetryInterval = time.Second
	}
	if c.ReconnectInitial <= 0 {
		c.ReconnectInitial = time.Second
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.BreakerFailures <= 0 {
		c.BreakerFailures = 5
	}
	if c.BreakerOpen <= 0 {
		c.BreakerOpen = 10 * time.Second
	}
}

// NewClientID builds a unique client identity from a configured prefix.
func NewClientID(prefix string) string {
	if prefix == "" {
		prefix = "sim"
	}
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

// ClientFactory builds the underlying paho client; tests swap in a fake.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

type Option func(*Session)

func WithClientFactory(f ClientFactory) Option {
	return func(s *Session) { s.newClient = f }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// Session owns the broker connection. It reconnects on its own after a lost
// connection and restores every registered subscription on each (re)connect.
// All methods are safe for concurrent use; paho serializes wire writes.
type Session struct {
	cfg       RabbitMQConfig
	log       *slog.Logger
	metrics   *metrics.Metrics
	newClient ClientFactory
	client    mqtt.Client
	breaker   *gobreaker.CircuitBreaker

	mu   sync.Mutex
	subs map[string]subscription
	ctx  context.Context

	reconnecting atomic.Bool
}

func NewSession(cfg RabbitMQConfig, log *slog.Logger, opts ...Option) *Session {
	cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		cfg:       cfg,
		log:       log.With("component", "mqtt", "client_id", cfg.ClientID),
		newClient: mqtt.NewClient,
		subs:      make(map[string]subscription),
		ctx:       context.Background(),
	}
	for _, o := range opts {
		o(s)
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: cfg.BreakerOpen,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.log.Warn("publish breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	connAddr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)
	mo := mqtt.NewClientOptions()
	mo.AddBroker(connAddr)
	mo.SetClientID(cfg.ClientID)
	mo.SetUsername(cfg.User)
	mo.SetPassword(cfg.Password)
	mo.SetCleanSession(true)
	mo.SetKeepAlive(cfg.KeepAlive)
	mo.SetConnectTimeout(cfg.ConnectTimeout)
	// reconnection is supervised by the session, not paho
	mo.SetAutoReconnect(false)
	mo.SetOrderMatters(false)
	mo.SetOnConnectHandler(s.onConnect)
	mo.SetConnectionLostHandler(s.onConnectionLost)
	s.client = s.newClient(mo)
	return s
}

// Connect blocks until the first connection succeeds, retrying at a fixed
// interval for as long as ctx lives. ctx also bounds later reconnect loops.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	bo := backoff.WithContext(backoff.NewConstantBackOff(s.cfg.ConnectRetryInterval), ctx)
	err := backoff.RetryNotify(s.dial, bo, func(err error, wait time.Duration) {
		s.log.Warn("broker unreachable, retrying", "err", err, "retry_in", wait)
	})
	if err != nil {
		return fmt.Errorf("could not establish MQTT connection: %w", err)
	}
	s.log.Info("connected to broker", "host", s.cfg.Host, "port", s.cfg.Port)
	return nil
}

func (s *Session) dial() error {
	token := s.client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return errConnectTimeout
	}
	return token.Error()
}

func (s *Session) IsConnected() bool {
	return s.client.IsConnectionOpen()
}

// Close disconnects from the broker. Pending reconnect loops stop when the
// Connect context is cancelled.
func (s *Session) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
		s.log.Info("MQTT connection closed")
	}
	s.metrics.SetConnected(false)
}

func (s *Session) onConnect(c mqtt.Client) {
	s.metrics.SetConnected(true)

	s.mu.Lock()
	subs := make(map[string]subscription, len(s.subs))
	for t, sub := range s.subs {
		subs[t] = sub
	}
	s.mu.Unlock()

	for topic, sub := range subs {
		if err := s.subscribe(c, topic, sub); err != nil {
			s.log.Warn("resubscribe failed", "topic", topic, "err", err)
		}
	}
	if len(subs) > 0 {
		s.log.Info("subscriptions restored", "count", len(subs))
	}
}

func (s *Session) onConnectionLost(_ mqtt.Client, err error) {
	s.metrics.SetConnected(false)
	s.log.Warn("broker connection lost", "err", err)
	s.startReconnect()
}

// startReconnect launches the reconnect loop unless one is already running.
func (s *Session) startReconnect() {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	go s.reconnectLoop()
}

func (s *Session) reconnectLoop() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	for {
		s.redial(ctx)
		s.reconnecting.Store(false)
		// a drop right after the redial saw the flag still set and did not
		// start a loop of its own: take over its job
		if ctx.Err() != nil || s.client.IsConnectionOpen() {
			return
		}
		if !s.reconnecting.CompareAndSwap(false, true) {
			return
		}
	}
}

// redial retries with exponential backoff until connected or ctx ends.
func (s *Session) redial(ctx context.Context) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.ReconnectInitial
	bo.MaxInterval = s.cfg.ReconnectMax
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		if s.client.IsConnectionOpen() {
			return nil
		}
		return s.dial()
	}, backoff.WithContext(bo, ctx), func(err error, wait time.Duration) {
		s.log.Warn("reconnect failed", "attempt", attempt, "err", err, "retry_in", wait)
	})
	if err != nil {
		s.log.Info("reconnect loop stopped", "err", err)
		return
	}
	s.metrics.Reconnected()
	s.log.Info("reconnected to broker", "attempts", attempt)
}
