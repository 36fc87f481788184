package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/campus-merch/api/internal/repositories"
)

const (
	defaultEventKeyPrefix = "payments:webhook-event:"
	defaultEventTTL       = 72 * time.Hour
)

// EventLedger records processed gateway event IDs with SET NX so concurrent deliveries of
// the same event are applied at most once.
type EventLedger struct {
	client goredis.UniversalClient
	prefix string
}

var _ repositories.EventLedger = (*EventLedger)(nil)

// NewEventLedger binds the ledger to a Redis client.
func NewEventLedger(client goredis.UniversalClient) (*EventLedger, error) {
	if client == nil {
		return nil, errors.New("event ledger: redis client is required")
	}
	return &EventLedger{client: client, prefix: defaultEventKeyPrefix}, nil
}

// MarkProcessed stores eventID and reports false when it was already present.
func (l *EventLedger) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, errors.New("event ledger: event id is required")
	}
	if ttl <= 0 {
		ttl = defaultEventTTL
	}
	ok, err := l.client.SetNX(ctx, l.prefix+eventID, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, &Error{op: "event_ledger.mark_processed", err: err}
	}
	return ok, nil
}

// Release deletes the marker for eventID.
func (l *EventLedger) Release(ctx context.Context, eventID string) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil
	}
	if err := l.client.Del(ctx, l.prefix+eventID).Err(); err != nil {
		return &Error{op: "event_ledger.release", err: err}
	}
	return nil
}

// Error classifies Redis failures for services. Every Redis failure is treated as transient.
type Error struct {
	op  string
	err error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.op + ": " + e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool { return e != nil && errors.Is(e.err, goredis.Nil) }

func (e *Error) IsConflict() bool { return false }

func (e *Error) IsUnavailable() bool { return e != nil && !errors.Is(e.err, goredis.Nil) }
