// Package postgres implements the ledger registries on PostgreSQL.
//
// RunInTx opens a *sql.Tx and carries it in the context; every registry and
// the outbox join it, so registry writes and emitted events commit together.
// Reads inside a transaction take row locks (SELECT ... FOR UPDATE) and
// updates are conditional on the stored version.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"cityledger/internal/ledger/ports"
	dErrors "cityledger/pkg/domain-errors"
	outboxstore "cityledger/pkg/platform/events/store/postgres"
	txcontext "cityledger/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

//go:embed schema.sql
var schema string

// Migrate creates the ledger tables when they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply ledger schema: %w", err)
	}
	return nil
}

// Ledger is the PostgreSQL-backed ledger.
type Ledger struct {
	db      *sql.DB
	outbox  *outboxstore.Store
	timeout time.Duration
}

type Option func(*Ledger)

// WithTxTimeout bounds transactions whose context has no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.timeout = d
		}
	}
}

func New(db *sql.DB, opts ...Option) *Ledger {
	l := &Ledger{db: db, outbox: outboxstore.New(db), timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Outbox exposes the event outbox the ledger writes to, for the relay.
func (l *Ledger) Outbox() *outboxstore.Store {
	return l.outbox
}

func (l *Ledger) RunInTx(ctx context.Context, fn func(ctx context.Context, r ports.Registries) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return txError(ctx, err, "failed to begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	txCtx := txcontext.WithTx(ctx, tx)
	regs := ports.Registries{
		Propositions: &propositionRegistry{db: l.db},
		Users:        &userRegistry{db: l.db},
		IDs:          &sequence{db: l.db},
		Events:       l.outbox,
	}
	if err := fn(txCtx, regs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return txError(ctx, err, "failed to commit transaction")
	}
	return nil
}

func txError(ctx context.Context, err error, msg string) error {
	if ctx.Err() != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

const uniqueViolation = "23505"

// isUniqueViolation recognises the error under either database/sql driver
// the server can run with (pgx or lib/pq).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func forUpdate(ctx context.Context) string {
	if txcontext.InTx(ctx) {
		return " FOR UPDATE"
	}
	return ""
}
