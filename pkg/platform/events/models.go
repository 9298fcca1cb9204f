// Package events carries ledger domain events from transactions to external
// listeners. Transactions append to an outbox in the same unit of work as their
// registry writes; a relay publishes the outbox at-least-once.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is the transport-agnostic envelope for a domain event.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Type        string          `json:"type"`
	Namespace   string          `json:"namespace"`
	AggregateID string          `json:"aggregateId"`
	Timestamp   time.Time       `json:"timestamp"`
	RequestID   string          `json:"requestId,omitempty"`
	Payload     json.RawMessage `json:"payload"`
}

// New wraps payload in an envelope with a fresh ID.
func New(namespace, eventType, aggregateID string, payload any, now time.Time) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:          uuid.New(),
		Type:        eventType,
		Namespace:   namespace,
		AggregateID: aggregateID,
		Timestamp:   now,
		Payload:     raw,
	}, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Store is the append side of the outbox.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Outbox is the relay side of the outbox.
type Outbox interface {
	Store
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, batch []Event) error
}
