package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"fintrack/internal/obs"
)

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
	Close() error
}

// NoopPublisher drops every event. Used when no brokers are configured.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, *Event) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single Kafka topic keyed by aggregate ID.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, topic: topic, logger: logger}
}

// Publish sends evt. The request ID from ctx is stamped on the envelope and headers.
func (p *KafkaPublisher) Publish(ctx context.Context, evt *Event) error {
	if evt.RequestID == "" {
		evt.RequestID = obs.RequestIDFromContext(ctx)
	}
	data, err := evt.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
			{Key: "source", Value: []byte(evt.Source)},
		},
	}
	if evt.RequestID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "request_id", Value: []byte(evt.RequestID)})
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish event to %s: %w", p.topic, err)
	}

	p.logger.DebugContext(ctx, "event published",
		slog.String("topic", p.topic),
		slog.String("event_type", evt.EventType),
		slog.String("aggregate_id", evt.AggregateID),
	)
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
