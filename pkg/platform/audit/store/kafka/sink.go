package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"medssi/internal/platform/kafka/producer"
	audit "medssi/pkg/platform/audit"
	"medssi/pkg/platform/circuit"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "medssi.audit"

// Producer is the subset of the Kafka producer the sink needs.
type Producer interface {
	Produce(ctx context.Context, msg *producer.Message) error
}

// Sink publishes audit events as JSON records. Records are keyed by
// Event.Key so events about one credential land on one partition.
type Sink struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*Sink)

// WithBreaker replaces the default delivery breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Sink) {
		if b != nil {
			s.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func NewSink(p Producer, topic string, opts ...Option) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	s := &Sink{
		producer: p,
		topic:    topic,
		breaker:  circuit.New("audit_kafka"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	headers := map[string]string{"action": event.Action}
	if event.RequestID != "" {
		headers["request_id"] = event.RequestID
	}
	err = s.producer.Produce(ctx, &producer.Message{
		Topic:   s.topic,
		Key:     []byte(event.Key()),
		Value:   value,
		Headers: headers,
	})
	s.observe(ctx, err)
	return err
}

// Check reports an error while delivery is failing persistently; it backs
// the readiness probe.
func (s *Sink) Check(context.Context) error {
	if s.breaker.IsOpen() {
		return errors.New("audit delivery failing")
	}
	return nil
}

func (s *Sink) observe(ctx context.Context, err error) {
	change := s.breaker.Record(err)
	if s.logger == nil {
		return
	}
	switch {
	case change.Opened:
		s.logger.WarnContext(ctx, "audit kafka sink degraded", "topic", s.topic, "error", err)
	case change.Closed:
		s.logger.InfoContext(ctx, "audit kafka sink recovered", "topic", s.topic)
	}
}
