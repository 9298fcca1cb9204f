package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cityledger/internal/ledger/ports"
	"cityledger/internal/platform/metrics"
	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
	"cityledger/pkg/platform/events"
	"cityledger/pkg/platform/sentinel"
	"cityledger/pkg/requestcontext"
)

const tracerName = "cityledger/proposition"

// Service executes the proposition transactions. Each transaction reads and
// writes the Proposition and MultipassUser registries inside one ledger unit
// of work, so the canonical proposition and the copy in the user's record
// never diverge once it returns.
type Service struct {
	ledger    ports.LedgerTx
	lifecycle *models.Lifecycle
	allocator ports.Allocator
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLifecycle replaces the default status set and transition graph.
func WithLifecycle(l *models.Lifecycle) Option {
	return func(s *Service) {
		if l != nil {
			s.lifecycle = l
		}
	}
}

// WithAllocator draws proposition identifiers from a shared sequence instead
// of the ledger's own.
func WithAllocator(a ports.Allocator) Option {
	return func(s *Service) {
		s.allocator = a
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service.
func New(ledger ports.LedgerTx, opts ...Option) *Service {
	s := &Service{
		ledger:    ledger,
		lifecycle: models.DefaultLifecycle(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lifecycle exposes the configured status graph.
func (s *Service) Lifecycle() *models.Lifecycle {
	return s.lifecycle
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish records the outcome of a transaction on span, metrics and log.
func (s *Service) finish(ctx context.Context, span trace.Span, name string, start time.Time, err error) {
	defer span.End()
	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		if s.logger != nil {
			level := slog.LevelWarn
			if outcome == string(dErrors.CodeInternal) {
				level = slog.LevelError
			}
			s.logger.Log(ctx, level, "transaction rejected",
				"transaction", name,
				"error", err,
				"request_id", requestcontext.RequestID(ctx),
			)
		}
	}
	if s.metrics != nil {
		s.metrics.ObserveTransaction(name, outcome, time.Since(start).Seconds())
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	if s.logger != nil {
		s.logger.InfoContext(ctx, event, args...)
	}
}

func (s *Service) nextID(ctx context.Context, r ports.Registries) (id.PropositionID, error) {
	alloc := r.IDs
	if s.allocator != nil {
		alloc = s.allocator
	}
	pid, err := alloc.Next(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to allocate proposition ID")
	}
	return pid, nil
}

func emit(ctx context.Context, r ports.Registries, eventType string, aggregateID string, payload any) error {
	e, err := events.New(id.Namespace, eventType, aggregateID, payload, requestcontext.Now(ctx))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build "+eventType)
	}
	e.RequestID = requestcontext.RequestID(ctx)
	if err := r.Events.Append(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit "+eventType)
	}
	return nil
}

// registryError translates registry sentinels into domain errors naming the
// record that caused them.
func registryError(err error, entity, subject string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NotFound(entity+" not found", subject)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeDuplicateKey, entity+" already exists").WithSubject(subject)
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, entity+" modified concurrently").WithSubject(subject)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+entity+" registry").WithSubject(subject)
	}
}

func requireRef(ref id.Ref, want id.EntityType, field string) error {
	if ref.IsZero() {
		return dErrors.New(dErrors.CodeValidation, field+" is required")
	}
	if ref.Type != want {
		return dErrors.New(dErrors.CodeValidation, field+" must reference a "+string(want)).WithSubject(ref.String())
	}
	return nil
}
