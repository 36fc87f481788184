package services

import (
	"context"
	"maps"
	"time"
)

// EventPublisher publishes domain events for downstream consumers such as notification fan-out.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event DomainEvent) error
}

// DomainEvent captures metadata for an emitted domain event.
type DomainEvent struct {
	Type           string
	AggregateType  string
	AggregateID    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// Logger is the structured log adapter injected into services.
type Logger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

// Metrics records business counters such as orders created and payments reconciled.
type Metrics interface {
	Incr(ctx context.Context, name string, attrs map[string]string)
}

type noopMetrics struct{}

func (noopMetrics) Incr(context.Context, string, map[string]string) {}

// eventSink pairs a publisher with the logger used to report publish failures. Publishing is
// best effort and never fails the calling operation.
type eventSink struct {
	events EventPublisher
	logger Logger
	prefix string
}

func (s eventSink) publish(ctx context.Context, event DomainEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger(ctx, s.prefix+".event.publish.failed", map[string]any{
			"type":      event.Type,
			"aggregate": event.AggregateID,
			"status":    event.CurrentStatus,
			"error":     err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
