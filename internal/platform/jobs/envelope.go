package jobs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/campus-merch/api/internal/services"
)

// eventEnvelope is the JSON body shared by every event backend.
type eventEnvelope struct {
	Type           string         `json:"type"`
	AggregateType  string         `json:"aggregateType"`
	AggregateID    string         `json:"aggregateId"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func encodeEvent(event services.DomainEvent) ([]byte, error) {
	return json.Marshal(eventEnvelope{
		Type:           event.Type,
		AggregateType:  event.AggregateType,
		AggregateID:    event.AggregateID,
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        event.ActorID,
		OccurredAt:     event.OccurredAt.UTC(),
		Metadata:       event.Metadata,
	})
}

// eventAttributes are routing hints so subscribers can filter without decoding the body.
func eventAttributes(event services.DomainEvent) map[string]string {
	attrs := make(map[string]string, 3)
	setAttr(attrs, "eventType", event.Type)
	setAttr(attrs, "aggregateType", event.AggregateType)
	setAttr(attrs, "aggregateId", event.AggregateID)
	return attrs
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
