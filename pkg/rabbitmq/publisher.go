package rabbitmq

import (
	"fmt"
)

// Delivery guarantees understood by the broker.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
)

// IPublisher publishes a payload on a topic.
type IPublisher interface {
	PublishMessage(topic string, qos byte, payload []byte) error
}

// PublishMessage hands payload to the broker and waits for the QoS handshake.
// While disconnected it fails fast with ErrNotConnected; nothing is buffered
// beyond what paho itself keeps in flight.
func (s *Session) PublishMessage(topic string, qos byte, payload []byte) error {
	if !s.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	_, err := s.breaker.Execute(func() (any, error) {
		token := s.client.Publish(topic, qos, false, payload)
		if !token.WaitTimeout(s.cfg.PublishTimeout) {
			return nil, ErrPublishTimeout
		}
		return nil, token.Error()
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}
