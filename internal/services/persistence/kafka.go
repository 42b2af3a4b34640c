package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/LeonardoBeccarini/sdcc_fleetsim/internal/model"
)

const (
	kafkaQueueSize = 1024
	kafkaBatchSize = 100
)

var errNoBrokers = errors.New("kafka: at least one broker is required")

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink queues records and delivers them from a single background loop,
// keyed by device id so each device's records stay ordered on one partition.
// A full queue drops the record rather than blocking the simulators.
type KafkaSink struct {
	writer kafkaMessageWriter
	log    *slog.Logger
	queue  chan kafka.Message

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewKafkaSink(cfg KafkaConfig, log *slog.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errNoBrokers
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka: topic must not be empty")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, log), nil
}

func newKafkaSink(w kafkaMessageWriter, log *slog.Logger) *KafkaSink {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &KafkaSink{
		writer: w,
		log:    log.With("component", "kafka-sink"),
		queue:  make(chan kafka.Message, kafkaQueueSize),
		cancel: cancel,
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s
}

func (s *KafkaSink) WriteTelemetry(rec model.TelemetryRecord) {
	s.enqueue(rec.DeviceID, "telemetry", rec)
}

func (s *KafkaSink) WriteStatus(rec model.StatusRecord) {
	s.enqueue(rec.ValveID, "status", rec)
}

func (s *KafkaSink) enqueue(key, kind string, rec any) {
	msg, err := recordMessage(key, kind, rec)
	if err != nil {
		s.log.Error("kafka encode error", "kind", kind, "key", key, "err", err)
		return
	}
	select {
	case s.queue <- msg:
	default:
		s.log.Warn("kafka queue full, record dropped", "kind", kind, "key", key)
	}
}

func recordMessage(key, kind string, rec any) (kafka.Message, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(kind)}},
	}, nil
}

func (s *KafkaSink) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case msg := <-s.queue:
			s.deliver(s.collect(msg))
		}
	}
}

// collect batches msg with whatever else is already queued, up to
// kafkaBatchSize messages, without waiting for more.
func (s *KafkaSink) collect(msg kafka.Message) []kafka.Message {
	batch := []kafka.Message{msg}
	for len(batch) < kafkaBatchSize {
		select {
		case next := <-s.queue:
			batch = append(batch, next)
		default:
			return batch
		}
	}
	return batch
}

func (s *KafkaSink) drain() {
	for {
		select {
		case msg := <-s.queue:
			s.deliver(s.collect(msg))
		default:
			return
		}
	}
}

func (s *KafkaSink) deliver(batch []kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, batch...); err != nil {
		s.log.Warn("kafka write error", "records", len(batch), "err", err)
	}
}

// Close stops the delivery loop after draining what is queued.
func (s *KafkaSink) Close() error {
	var err error
	s.stopOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		err = s.writer.Close()
	})
	return err
}
