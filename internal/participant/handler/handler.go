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
	id "cityledger/pkg/domain"
	dErrors "cityledger/pkg/domain-errors"
	"cityledger/pkg/platform/httputil"
	"cityledger/pkg/requestcontext"
)

// Service defines the participant registry operations.
type Service interface {
	RegisterBusiness(ctx context.Context, rawID, name string) (*models.Business, error)
	RegisterMultipassUser(ctx context.Context, rawID string) (*models.MultipassUser, error)
	GetBusiness(ctx context.Context, businessID id.BusinessID) (*models.Business, error)
	GetMultipassUser(ctx context.Context, userID id.MultipassUserID) (*models.MultipassUser, error)
}

type RegisterBusinessRequest struct {
	BusinessID string `json:"businessId"`
	Name       string `json:"name"`
}

type RegisterMultipassUserRequest struct {
	UserID string `json:"userId"`
}

// Handler serves participant registration, guarded by the admin token.
type Handler struct {
	logger     *slog.Logger
	service    Service
	metrics    *metrics.Metrics
	adminToken string
}

func New(service Service, logger *slog.Logger, metrics *metrics.Metrics, adminToken string) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		metrics:    metrics,
		adminToken: adminToken,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/participants", func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(h.metrics))
		r.With(middleware.RequireAdminToken(h.adminToken, h.logger)).Post("/businesses", h.handleRegisterBusiness)
		r.With(middleware.RequireAdminToken(h.adminToken, h.logger)).Post("/multipass-users", h.handleRegisterMultipassUser)
		r.Get("/businesses/{businessId}", h.handleGetBusiness)
		r.Get("/multipass-users/{userId}", h.handleGetMultipassUser)
	})
}

func (h *Handler) handleRegisterBusiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RegisterBusinessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(ctx, w, "invalid register business request", dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	b, err := h.service.RegisterBusiness(ctx, req.BusinessID, req.Name)
	if err != nil {
		h.fail(ctx, w, "register business failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, b)
}

func (h *Handler) handleRegisterMultipassUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req RegisterMultipassUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(ctx, w, "invalid register user request", dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	u, err := h.service.RegisterMultipassUser(ctx, req.UserID)
	if err != nil {
		h.fail(ctx, w, "register multipass user failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, u)
}

func (h *Handler) handleGetBusiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	businessID, err := id.ParseBusinessID(chi.URLParam(r, "businessId"))
	if err != nil {
		h.fail(ctx, w, "invalid business id", err)
		return
	}
	b, err := h.service.GetBusiness(ctx, businessID)
	if err != nil {
		h.fail(ctx, w, "get business failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) handleGetMultipassUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseMultipassUserID(chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(ctx, w, "invalid user id", err)
		return
	}
	u, err := h.service.GetMultipassUser(ctx, userID)
	if err != nil {
		h.fail(ctx, w, "get multipass user failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
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
