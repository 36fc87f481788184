package jobs

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/campus-merch/api/internal/services"
)

// PubSubEventPublisher publishes domain events to a Pub/Sub topic. Messages are ordered per aggregate
// when the topic has message ordering enabled.
type PubSubEventPublisher struct {
	topic *pubsub.Topic
}

// NewPubSubEventPublisher constructs a Pub/Sub backed event publisher.
func NewPubSubEventPublisher(topic *pubsub.Topic) (*PubSubEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub event publisher: topic is required")
	}
	return &PubSubEventPublisher{topic: topic}, nil
}

// PublishEvent blocks until Pub/Sub acknowledges the message.
func (p *PubSubEventPublisher) PublishEvent(ctx context.Context, event services.DomainEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub event publisher: not initialised")
	}
	data, err := encodeEvent(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}
	msg := &pubsub.Message{Data: data, Attributes: eventAttributes(event)}
	if p.topic.EnableMessageOrdering {
		msg.OrderingKey = event.AggregateType + "/" + event.AggregateID
	}
	if _, err := p.topic.Publish(ctx, msg).Get(ctx); err != nil {
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}
	return nil
}

// Stop flushes pending messages.
func (p *PubSubEventPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
