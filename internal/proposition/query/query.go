// Package query serves the named read queries over the proposition registry.
package query

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"cityledger/internal/ledger/ports"
	"cityledger/internal/proposition/models"
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
)

// Named queries.
const (
	SelectAllPropositions      = "selectAllPropositions"
	SelectPropositionsByOwner  = "selectPropositionsByOwner"
	SelectPropositionsByStatus = "selectPropositionsByStatus"
)

// Params carries the named query parameters.
type Params map[string]string

type namedQuery func(params Params) (ports.PropositionFilter, error)

// Service resolves a named query to a registry filter and runs it.
type Service struct {
	reader    ports.PropositionReader
	lifecycle *models.Lifecycle
	logger    *slog.Logger
	queries   map[string]namedQuery
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithLifecycle(l *models.Lifecycle) Option {
	return func(s *Service) {
		if l != nil {
			s.lifecycle = l
		}
	}
}

func New(reader ports.PropositionReader, opts ...Option) *Service {
	s := &Service{
		reader:    reader,
		lifecycle: models.DefaultLifecycle(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.queries = map[string]namedQuery{
		SelectAllPropositions: func(Params) (ports.PropositionFilter, error) {
			return ports.PropositionFilter{}, nil
		},
		SelectPropositionsByOwner: func(p Params) (ports.PropositionFilter, error) {
			raw, err := required(p, "owner")
			if err != nil {
				return ports.PropositionFilter{}, err
			}
			owner, err := id.ParseRef(raw, id.TypeBusiness)
			if err != nil {
				return ports.PropositionFilter{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid owner").WithSubject(raw)
			}
			return ports.PropositionFilter{Owner: owner}, nil
		},
		SelectPropositionsByStatus: s.byStatus,
	}
	return s
}

func (s *Service) byStatus(p Params) (ports.PropositionFilter, error) {
	raw, err := required(p, "status")
	if err != nil {
		return ports.PropositionFilter{}, err
	}
	status := models.Status(strings.ToUpper(raw))
	if !s.lifecycle.Contains(status) {
		return ports.PropositionFilter{}, dErrors.New(dErrors.CodeBadRequest, "unknown status").WithSubject(raw)
	}
	return ports.PropositionFilter{Status: status}, nil
}

// Names lists the registered query names in sorted order.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.queries))
	for name := range s.queries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Run executes the named query. Unknown names are NotFound; missing or
// malformed parameters are BadRequest.
func (s *Service) Run(ctx context.Context, name string, params Params) ([]*models.Proposition, error) {
	q, ok := s.queries[name]
	if !ok {
		return nil, dErrors.NotFound("unknown query", name)
	}
	filter, err := q(params)
	if err != nil {
		return nil, err
	}
	props, err := s.reader.ListPropositions(ctx, filter)
	if err != nil {
		if s.logger != nil {
			s.logger.ErrorContext(ctx, "query failed", "query", name, "error", err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to run query")
	}
	return props, nil
}

func required(p Params, key string) (string, error) {
	v := strings.TrimSpace(p[key])
	if v == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "missing parameter "+key)
	}
	return v, nil
}
