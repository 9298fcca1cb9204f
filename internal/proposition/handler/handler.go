package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cityledger/internal/platform/metrics"
	"cityledger/internal/platform/middleware"
	"cityledger/internal/proposition/models"
	"cityledger/internal/proposition/query"
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
	"cityledger/pkg/platform/httputil"
	"cityledger/pkg/requestcontext"
)

// Service defines the proposition transactions exposed over HTTP.
type Service interface {
	Place(ctx context.Context, tx models.PlaceProposition) (*models.Proposition, error)
	Deliver(ctx context.Context, tx models.DeliverProposition) (*models.Delivery, error)
	Update(ctx context.Context, tx models.UpdateProposition) (*models.Delivery, error)
	Get(ctx context.Context, propID id.PropositionID) (*models.Proposition, error)
}

// QueryService runs named read queries.
type QueryService interface {
	Run(ctx context.Context, name string, params query.Params) ([]*models.Proposition, error)
	Names() []string
}

// Handler serves the transaction submission and proposition read endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	queries      QueryService
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
	timeout      time.Duration
}

// New creates a new proposition Handler. A nil jwtValidator leaves the routes
// unauthenticated.
func New(
	service Service,
	queries QueryService,
	logger *slog.Logger,
	metrics *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
	timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Handler{
		logger:       logger,
		service:      service,
		queries:      queries,
		metrics:      metrics,
		jwtValidator: jwtValidator,
		timeout:      timeout,
	}
}

// Register registers the proposition routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(h.timeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))
		if h.jwtValidator != nil {
			r.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		}
		r.Post("/transactions/PlaceProposition", h.handlePlace)
		r.Post("/transactions/DeliverProposition", h.handleDeliver)
		r.Post("/transactions/UpdateProposition", h.handleUpdate)
		r.Get("/propositions/{propId}", h.handleGetProposition)
		r.Get("/queries", h.handleListQueries)
		r.Get("/queries/{name}", h.handleRunQuery)
	})
}

func (h *Handler) handlePlace(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req PlacePropositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Normalize(requestcontext.Submitter(ctx))
	tx, err := req.Transaction()
	if err != nil {
		h.fail(ctx, w, "invalid place proposition request", err)
		return
	}

	prop, err := h.service.Place(ctx, tx)
	if err != nil {
		h.fail(ctx, w, "place proposition failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, prop)
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req DeliverPropositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := req.Transaction()
	if err != nil {
		h.fail(ctx, w, "invalid deliver proposition request", err)
		return
	}

	delivery, err := h.service.Deliver(ctx, tx)
	if err != nil {
		h.fail(ctx, w, "deliver proposition failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, delivery)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req UpdatePropositionRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := req.Transaction()
	if err != nil {
		h.fail(ctx, w, "invalid update proposition request", err)
		return
	}

	delivery, err := h.service.Update(ctx, tx)
	if err != nil {
		h.fail(ctx, w, "update proposition failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, delivery)
}

func (h *Handler) handleGetProposition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propID, err := id.ParsePropositionID(chi.URLParam(r, "propId"))
	if err != nil {
		h.fail(ctx, w, "invalid proposition id", err)
		return
	}
	prop, err := h.service.Get(ctx, propID)
	if err != nil {
		h.fail(ctx, w, "get proposition failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, prop)
}

func (h *Handler) handleListQueries(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string][]string{"queries": h.queries.Names()})
}

func (h *Handler) handleRunQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := query.Params{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	props, err := h.queries.Run(ctx, chi.URLParam(r, "name"), params)
	if err != nil {
		h.fail(ctx, w, "query failed", err)
		return
	}
	if props == nil {
		props = []*models.Proposition{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"propositions": props})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	attrs := []any{"request_id", requestcontext.RequestID(ctx), "error", err.Error()}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
