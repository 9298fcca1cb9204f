package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cityledger/pkg/platform/events"
	txcontext "cityledger/pkg/platform/tx"
)

// Store implements events.Outbox on the ledger_outbox table. Append joins the
// caller's transaction when one is carried in the context, so events commit or
// roll back with the registry writes that produced them.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL outbox store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append writes an event to the outbox.
func (s *Store) Append(ctx context.Context, event events.Event) error {
	query := `
		INSERT INTO ledger_outbox (id, event_type, namespace, aggregate_id, request_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := txcontext.Use(ctx, s.db).ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.Namespace,
		event.AggregateID,
		event.RequestID,
		[]byte(event.Payload),
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// Pending returns unpublished events, oldest first.
func (s *Store) Pending(ctx context.Context, limit int) ([]events.Event, error) {
	query := `
		SELECT id, event_type, namespace, aggregate_id, request_id, payload, created_at
		FROM ledger_outbox
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			e       events.Event
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Namespace, &e.AggregateID, &e.RequestID, &payload, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		e.Payload = payload
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox: %w", err)
	}
	return out, nil
}

// MarkPublished stamps the given events as relayed.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	// Plain placeholders keep the statement portable across the pgx and
	// lib/pq drivers.
	args := make([]any, 0, len(ids)+1)
	args = append(args, at)
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		args = append(args, id)
		placeholders[i] = "$" + strconv.Itoa(i+2)
	}
	query := `UPDATE ledger_outbox SET published_at = $1 WHERE published_at IS NULL AND id IN (` +
		strings.Join(placeholders, ", ") + `)`
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
