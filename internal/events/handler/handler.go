package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"proofdrop/internal/events"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/httputil"
	"proofdrop/pkg/requestcontext"
	"proofdrop/pkg/validation"
)

type Lister interface {
	List(ctx context.Context, filter events.Filter) ([]events.Event, error)
}

type Handler struct {
	events Lister
	logger *slog.Logger
}

func New(l Lister, logger *slog.Logger) *Handler {
	return &Handler{events: l, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/events", h.handleList)
}

type ListResponse struct {
	Events []events.Event `json:"events"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter := events.Filter{Name: events.Name(r.URL.Query().Get("name"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > validation.MaxEventPage {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and "+strconv.Itoa(validation.MaxEventPage)))
			return
		}
		filter.Limit = limit
	}
	list, err := h.events.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list events", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events"))
		return
	}
	if list == nil {
		list = []events.Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Events: list})
}
