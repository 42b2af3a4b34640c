package rabbitmq

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MessageHandler processes one inbound message. A returned error is logged.
type MessageHandler func(topic string, message mqtt.Message) error

// IConsumer registers a handler for a topic.
type IConsumer interface {
	ConsumeMessage(topic string, qos byte, handler MessageHandler) error
}

// ConsumeMessage registers handler for topic. The subscription is kept for
// the session lifetime and re-established after every reconnect; if the
// session is currently down it is only registered.
func (s *Session) ConsumeMessage(topic string, qos byte, handler MessageHandler) error {
	sub := subscription{qos: qos, handler: handler}
	s.mu.Lock()
	s.subs[topic] = sub
	s.mu.Unlock()

	if !s.client.IsConnectionOpen() {
		s.log.Debug("subscription deferred until connected", "topic", topic)
		return nil
	}
	return s.subscribe(s.client, topic, sub)
}

func (s *Session) subscribe(c mqtt.Client, topic string, sub subscription) error {
	token := c.Subscribe(topic, sub.qos, func(_ mqtt.Client, m mqtt.Message) {
		if err := sub.handler(topic, m); err != nil {
			s.log.Debug("message handler error", "topic", m.Topic(), "err", err)
		}
	})
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}
