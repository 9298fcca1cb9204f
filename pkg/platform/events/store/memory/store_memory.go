package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"cityledger/pkg/platform/events"
)

// InMemoryStore is an ordered in-process outbox. Published events are
// dropped, so it holds only what the relay still has to deliver.
type InMemoryStore struct {
	mu        sync.RWMutex
	pending   []events.Event
	published int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, event)
	return nil
}

// Pending returns up to limit unpublished events, oldest first.
func (s *InMemoryStore) Pending(_ context.Context, limit int) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.pending)
	if limit > 0 && limit < n {
		n = limit
	}
	return slices.Clone(s.pending[:n]), nil
}

// MarkPublished removes the given events. Unknown or already removed ids are
// ignored so a relay retry after a partial failure is harmless.
func (s *InMemoryStore) MarkPublished(_ context.Context, ids []uuid.UUID, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	before := len(s.pending)
	s.pending = slices.DeleteFunc(s.pending, func(e events.Event) bool {
		_, ok := want[e.ID]
		return ok
	})
	s.published += before - len(s.pending)
	if len(s.pending) == 0 {
		s.pending = nil
	}
	return nil
}

// Published reports how many events have been relayed and dropped.
func (s *InMemoryStore) Published() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.published
}

// ListAll returns the events still awaiting relay.
func (s *InMemoryStore) ListAll(_ context.Context) ([]events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.pending), nil
}

// Clear drops all entries.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	s.published = 0
}
