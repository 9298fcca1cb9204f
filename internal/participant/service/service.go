// Package service registers the participants of the ledger: businesses that
// place propositions and multipass users that receive them.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"cityledger/internal/ledger/ports"
	"cityledger/internal/platform/metrics"
	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
	"cityledger/pkg/platform/sentinel"
	"cityledger/pkg/requestcontext"
)

const maxNameLength = 256

type Service struct {
	store   ports.ParticipantStore
	logger  *slog.Logger
	metrics *metrics.Metrics
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

// New constructs a Service.
func New(store ports.ParticipantStore, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterBusiness adds a business to the participant registry.
func (s *Service) RegisterBusiness(ctx context.Context, rawID, name string) (*models.Business, error) {
	businessID, err := id.ParseBusinessID(strings.TrimSpace(rawID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid business ID")
	}
	name = strings.TrimSpace(name)
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "business name too long")
	}

	b := &models.Business{ID: businessID, Name: name}
	if err := s.store.AddBusiness(ctx, b); err != nil {
		return nil, wrapStoreErr(err, "business", businessID.String())
	}
	s.logAudit(ctx, "business_registered", "business_id", businessID.String())
	s.increment(string(id.TypeBusiness))
	return b, nil
}

// RegisterMultipassUser adds a user with no delivered propositions.
func (s *Service) RegisterMultipassUser(ctx context.Context, rawID string) (*models.MultipassUser, error) {
	userID, err := id.ParseMultipassUserID(strings.TrimSpace(rawID))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid multipass user ID")
	}

	u := &models.MultipassUser{ID: userID, Props: models.Props{}}
	if err := s.store.AddMultipassUser(ctx, u); err != nil {
		return nil, wrapStoreErr(err, "multipass user", userID.String())
	}
	s.logAudit(ctx, "multipass_user_registered", "user_id", userID.String())
	s.increment(string(id.TypeMultipassUser))
	return u, nil
}

func (s *Service) GetBusiness(ctx context.Context, businessID id.BusinessID) (*models.Business, error) {
	b, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, wrapStoreErr(err, "business", businessID.String())
	}
	return b, nil
}

// GetMultipassUser returns the user together with the propositions delivered to them.
func (s *Service) GetMultipassUser(ctx context.Context, userID id.MultipassUserID) (*models.MultipassUser, error) {
	u, err := s.store.GetMultipassUser(ctx, userID)
	if err != nil {
		return nil, wrapStoreErr(err, "multipass user", userID.String())
	}
	if u.Props == nil {
		u.Props = models.Props{}
	}
	return u, nil
}

func wrapStoreErr(err error, entity, subject string) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.NotFound(entity+" not found", subject)
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeDuplicateKey, entity+" already registered").WithSubject(subject)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access "+entity+" registry")
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

func (s *Service) increment(kind string) {
	if s.metrics != nil {
		s.metrics.IncrementParticipants(kind)
	}
}
