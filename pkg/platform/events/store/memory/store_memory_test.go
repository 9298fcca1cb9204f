package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cityledger/pkg/platform/events"
)

func TestPendingAndMarkPublished(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	var ids []uuid.UUID
	for i := range 3 {
		e, err := events.New("org.cityledger", "PlacePropositionEvent", string(rune('1'+i)), map[string]int{"n": i}, time.Now())
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, e))
		ids = append(ids, e.ID)
	}

	pending, err := store.Pending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)

	require.NoError(t, store.MarkPublished(ctx, ids[:2], time.Now()))

	pending, err = store.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[2], pending[0].ID)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1, "published events are dropped")
	assert.Equal(t, 2, store.Published())

	require.NoError(t, store.MarkPublished(ctx, ids[:2], time.Now()), "re-marking is a no-op")
	assert.Equal(t, 2, store.Published())
}

func TestPublishedEventsDoNotAccumulate(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	for i := range 500 {
		e, err := events.New("org.cityledger", "DeliverPropositionEvent", "1", map[string]int{"n": i}, time.Now())
		require.NoError(t, err)
		require.NoError(t, store.Append(ctx, e))

		batch, err := store.Pending(ctx, 100)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		require.NoError(t, store.MarkPublished(ctx, []uuid.UUID{batch[0].ID}, time.Now()))
	}

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Equal(t, 500, store.Published())
}
