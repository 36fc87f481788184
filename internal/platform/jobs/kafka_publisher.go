package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/campus-merch/api/internal/services"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaEventPublisher publishes domain events to a Kafka topic keyed by aggregate id, so every event
// for one order lands on the same partition.
type KafkaEventPublisher struct {
	writer messageWriter
}

// NewKafkaEventPublisher builds a publisher writing to topic on the given brokers.
func NewKafkaEventPublisher(brokers []string, topic string) (*KafkaEventPublisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka event publisher: brokers are required")
	}
	if topic == "" {
		return nil, errors.New("kafka event publisher: topic is required")
	}
	return &KafkaEventPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}, nil
}

// PublishEvent writes the event synchronously.
func (p *KafkaEventPublisher) PublishEvent(ctx context.Context, event services.DomainEvent) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka event publisher: not initialised")
	}
	data, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	attrs := eventAttributes(event)
	headers := make([]kafka.Header, 0, len(attrs))
	for _, key := range []string{"eventType", "aggregateType", "aggregateId"} {
		if value, ok := attrs[key]; ok {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}
	msg := kafka.Message{
		Key:     []byte(event.AggregateID),
		Value:   data,
		Headers: headers,
		Time:    event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaEventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
