package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"proofdrop/internal/platform/metrics"
	"proofdrop/internal/verification/models"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/httputil"
	"proofdrop/pkg/requestcontext"
)

// Service is the registry surface the HTTP layer needs.
type Service interface {
	Hook(ctx context.Context, caller domain.Address, payload []byte) (*models.Record, error)
	Record(ctx context.Context, account domain.Address) (*models.Record, error)
	ScopeConfig(ctx context.Context) (*models.ScopeConfig, error)
	Scope(ctx context.Context) (domain.Bytes32, error)
	SetConfigID(ctx context.Context, caller domain.Address, configID domain.Bytes32) error
	SetScope(ctx context.Context, caller domain.Address, seed string) error
}

type Handler struct {
	registry Service
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(registry Service, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{registry: registry, logger: logger, metrics: m}
}

// Register mounts the Hub callback and the read surface.
func (h *Handler) Register(r chi.Router) {
	r.Post("/hub/verification", h.handleHook)
	r.Get("/verification/scope", h.handleGetScope)
	r.Get("/verification/{account}", h.handleGetStatus)
}

// RegisterAdmin mounts owner-only configuration.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Put("/admin/verification/config-id", h.handleSetConfigID)
	r.Put("/admin/verification/scope", h.handleSetScope)
}

func (h *Handler) handleHook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	defer func() {
		h.metrics.ObserveOperationLatency("verification_hook", time.Since(start).Seconds())
	}()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[HookRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	caller, _ := requestcontext.Caller(ctx)

	rec, err := h.registry.Hook(ctx, caller, req.decoded)
	if err != nil {
		h.logger.WarnContext(ctx, "verification hook rejected",
			"caller", caller.Hex(),
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, HookResponse{Account: rec.Account, ExpiresAt: rec.ExpiresAt.Unix()})
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, err := h.registry.Record(ctx, account)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read verification",
			"account", account.Hex(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, models.NewStatus(account, rec, requestcontext.Now(ctx)))
}

func (h *Handler) handleGetScope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.registry.ScopeConfig(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	scope, err := h.registry.Scope(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ScopeResponse{Scope: scope, ScopeSeed: cfg.ScopeSeed, ConfigID: cfg.ConfigID})
}

func (h *Handler) handleSetConfigID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[SetConfigIDRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	h.applyAdmin(w, r, func(caller domain.Address) error {
		return h.registry.SetConfigID(ctx, caller, req.value())
	})
}

func (h *Handler) handleSetScope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	req, ok := httputil.DecodeAndPrepare[SetScopeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	h.applyAdmin(w, r, func(caller domain.Address) error {
		return h.registry.SetScope(ctx, caller, req.ScopeSeed)
	})
}

// applyAdmin runs fn as the authenticated caller and answers with the
// resulting scope.
func (h *Handler) applyAdmin(w http.ResponseWriter, r *http.Request, fn func(caller domain.Address) error) {
	ctx := r.Context()
	caller, ok := requestcontext.Caller(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing caller"))
		return
	}
	if err := fn(caller); err != nil {
		h.logger.WarnContext(ctx, "registry configuration rejected",
			"caller", caller.Hex(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	h.handleGetScope(w, r)
}
