package rabbitmq

import (
	"errors"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// FakePublication is one message recorded by FakeClient or FakePublisher.
type FakePublication struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// FakeClient is an in-memory mqtt.Client for tests. Connect outcomes are
// scripted through ConnectErrs; OnConnect and OnConnectionLost from the
// options it was built with are invoked like paho would.
type FakeClient struct {
	mu           sync.Mutex
	opts         *mqtt.ClientOptions
	connected    bool
	connectErrs  []error
	connectCalls int
	handlers     map[string]mqtt.MessageHandler
	subscribes   []string
	published    []FakePublication
	publishErr   error
}

// NewFakeClientFactory returns a ClientFactory that hands out client and
// records the options it was built with.
func NewFakeClientFactory(client *FakeClient) ClientFactory {
	return func(opts *mqtt.ClientOptions) mqtt.Client {
		client.mu.Lock()
		client.opts = opts
		client.mu.Unlock()
		return client
	}
}

func NewFakeClient(connectErrs ...error) *FakeClient {
	return &FakeClient{connectErrs: connectErrs, handlers: make(map[string]mqtt.MessageHandler)}
}

func (c *FakeClient) IsConnected() bool { return c.IsConnectionOpen() }
func (c *FakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *FakeClient) Connect() mqtt.Token {
	c.mu.Lock()
	c.connectCalls++
	var err error
	if len(c.connectErrs) > 0 {
		err = c.connectErrs[0]
		c.connectErrs = c.connectErrs[1:]
	}
	if err == nil {
		c.connected = true
	}
	opts := c.opts
	c.mu.Unlock()

	if err == nil && opts != nil && opts.OnConnect != nil {
		opts.OnConnect(c)
	}
	return &fakeToken{err: err}
}

func (c *FakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
}

func (c *FakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return &fakeToken{err: c.publishErr}
	}
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = append([]byte(nil), p...)
	case string:
		b = []byte(p)
	}
	c.published = append(c.published, FakePublication{Topic: topic, QoS: qos, Payload: b})
	return &fakeToken{}
}

func (c *FakeClient) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return &fakeToken{err: errors.New("not connected")}
	}
	c.handlers[topic] = callback
	c.subscribes = append(c.subscribes, topic)
	return &fakeToken{}
}

func (c *FakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	for topic, qos := range filters {
		if t := c.Subscribe(topic, qos, callback); t.Error() != nil {
			return t
		}
	}
	return &fakeToken{}
}

func (c *FakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.handlers, t)
	}
	return &fakeToken{}
}

func (c *FakeClient) AddRoute(topic string, callback mqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *FakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// Drop simulates a broken connection.
func (c *FakeClient) Drop(err error) {
	c.mu.Lock()
	c.connected = false
	c.handlers = make(map[string]mqtt.MessageHandler)
	opts := c.opts
	c.mu.Unlock()
	if opts != nil && opts.OnConnectionLost != nil {
		opts.OnConnectionLost(c, err)
	}
}

// FailConnects scripts the outcome of the next Connect calls.
func (c *FakeClient) FailConnects(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErrs = append(c.connectErrs, errs...)
}

func (c *FakeClient) SetPublishError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// Deliver routes an inbound message to the handler subscribed on topic.
// It reports false if nothing is subscribed.
func (c *FakeClient) Deliver(topic string, payload []byte, duplicate bool) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(c, &FakeMessage{TopicName: topic, Body: payload, Dup: duplicate, QoSLevel: QoSAtLeastOnce})
	return true
}

func (c *FakeClient) ConnectCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectCalls
}

func (c *FakeClient) Subscribes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribes...)
}

func (c *FakeClient) Published() []FakePublication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]FakePublication(nil), c.published...)
}

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

// FakeMessage implements mqtt.Message.
type FakeMessage struct {
	TopicName string
	Body      []byte
	Dup       bool
	QoSLevel  byte
	ID        uint16
}

func (m *FakeMessage) Duplicate() bool   { return m.Dup }
func (m *FakeMessage) Qos() byte         { return m.QoSLevel }
func (m *FakeMessage) Retained() bool    { return false }
func (m *FakeMessage) Topic() string     { return m.TopicName }
func (m *FakeMessage) MessageID() uint16 { return m.ID }
func (m *FakeMessage) Payload() []byte   { return m.Body }
func (m *FakeMessage) Ack()              {}

// FakePublisher records publications for tests of publishing components.
type FakePublisher struct {
	mu   sync.Mutex
	pubs []FakePublication
	err  error
}

func NewFakePublisher() *FakePublisher { return &FakePublisher{} }

func (p *FakePublisher) PublishMessage(topic string, qos byte, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.pubs = append(p.pubs, FakePublication{Topic: topic, QoS: qos, Payload: append([]byte(nil), payload...)})
	return nil
}

// SetError makes subsequent publishes fail with err (nil restores success).
func (p *FakePublisher) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *FakePublisher) Published() []FakePublication {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]FakePublication(nil), p.pubs...)
}

// Reset clears recorded publications.
func (p *FakePublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pubs = nil
}
