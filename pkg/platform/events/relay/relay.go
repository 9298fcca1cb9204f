// Package relay moves events from the outbox to a Publisher. Delivery is
// at-least-once: a batch is marked published only after the publisher accepts
// it, so a crash between the two republishes the batch.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cityledger/pkg/platform/events"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Relay polls an outbox and forwards pending events.
type Relay struct {
	outbox    events.Outbox
	publisher events.Publisher
	logger    *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	batchSize int
	now       func() time.Time
	breaker   *breaker
}

// Option configures the Relay.
type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithClock sets the time source for publish stamps and breaker cooldowns.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		if now != nil {
			r.now = now
		}
	}
}

// WithBreaker overrides the failure threshold and cooldown.
func WithBreaker(threshold int, cooldown time.Duration) Option {
	return func(r *Relay) {
		r.breaker = newBreaker(threshold, cooldown, r.clock)
	}
}

func New(outbox events.Outbox, publisher events.Publisher, opts ...Option) *Relay {
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		logger:    slog.New(slog.DiscardHandler),
		interval:  defaultInterval,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = newBreaker(0, 0, r.clock)
	}
	return r
}

func (r *Relay) clock() time.Time {
	return r.now()
}

// Run relays until ctx is cancelled. Publish failures are logged and retried
// on the next tick; they never stop the loop.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Flush(ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.logger.WarnContext(ctx, "event relay batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ErrBreakerOpen is returned by Flush while publishing is paused.
var ErrBreakerOpen = errors.New("relay paused after repeated publish failures")

// Flush relays one batch and returns how many events were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	if !r.breaker.allow() {
		r.setBreakerGauge()
		return 0, ErrBreakerOpen
	}
	start := r.now()
	batch, err := r.outbox.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := r.publisher.Publish(ctx, batch); err != nil {
		r.breaker.failure()
		r.setBreakerGauge()
		if r.metrics != nil {
			r.metrics.PublishErrors.Inc()
		}
		return 0, err
	}
	r.breaker.success()
	r.setBreakerGauge()

	ids := make([]uuid.UUID, len(batch))
	for i, e := range batch {
		ids[i] = e.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids, r.now()); err != nil {
		// The batch will be published again; subscribers must tolerate duplicates.
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.Published.Add(float64(len(batch)))
		r.metrics.BatchDurations.Observe(r.now().Sub(start).Seconds())
	}
	r.logger.DebugContext(ctx, "relayed ledger events", "count", len(batch))
	return len(batch), nil
}

func (r *Relay) setBreakerGauge() {
	if r.metrics == nil {
		return
	}
	if r.breaker.open() {
		r.metrics.BreakerOpen.Set(1)
		return
	}
	r.metrics.BreakerOpen.Set(0)
}
