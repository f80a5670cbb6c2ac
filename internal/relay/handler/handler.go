package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"proofdrop/internal/distribution/source"
	"proofdrop/internal/platform/metrics"
	"proofdrop/internal/relay/confirm"
	"proofdrop/internal/relay/receiver"
	"proofdrop/internal/relay/sender"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/httputil"
	"proofdrop/pkg/requestcontext"
)

type TrustedSenders interface {
	Add(ctx context.Context, caller domain.Address, sender domain.Bytes32) error
	Remove(ctx context.Context, caller domain.Address, sender domain.Bytes32) error
	SetEnforcement(ctx context.Context, caller domain.Address, enforce bool) error
	Enforced(ctx context.Context) (bool, error)
	IsTrusted(ctx context.Context, sender domain.Bytes32) (bool, error)
	List(ctx context.Context) ([]domain.Bytes32, error)
}

type Receiver interface {
	source.VerificationSource
	Handle(ctx context.Context, caller domain.Address, origin domain.Domain, sender domain.Bytes32, message []byte) (*receiver.Received, error)
	Mailbox(ctx context.Context) (domain.Address, error)
	SetMailbox(ctx context.Context, caller, mailbox domain.Address) error
}

type Sender interface {
	RelayVerificationTo(ctx context.Context, caller domain.Address, destination domain.Domain, recipient domain.Bytes32, account domain.Address, fee domain.Amount) (*sender.Relayed, error)
}

type Awaiter interface {
	Await(ctx context.Context, src source.VerificationSource, account domain.Address, after time.Time) (*confirm.Result, error)
}

type Handler struct {
	trusted  TrustedSenders
	receiver Receiver
	sender   Sender
	awaiter  Awaiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(trusted TrustedSenders, recv Receiver, send Sender, awaiter Awaiter, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{trusted: trusted, receiver: recv, sender: send, awaiter: awaiter, logger: logger, metrics: m}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/trusted-senders", h.handleListTrusted)
	r.Get("/trusted-senders/{id}", h.handleGetTrusted)
	r.Post("/relay", h.handleRelay)
	r.Post("/relay/await", h.handleAwait)
	r.Post("/mailbox/handle", h.handleMailbox)
	r.Get("/crosschain/verification/{account}", h.handleGetStatus)
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/trusted-senders", h.handleAddTrusted)
	r.Delete("/admin/trusted-senders", h.handleRemoveTrusted)
	r.Delete("/admin/trusted-senders/{id}", h.handleRemoveTrustedByID)
	r.Put("/admin/trusted-senders/enforcement", h.handleSetEnforcement)
	r.Put("/admin/relay/mailbox", h.handleSetMailbox)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	caller, ok := requestcontext.Caller(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing caller"))
	}
	return caller, ok
}

func (h *Handler) reject(ctx context.Context, w http.ResponseWriter, msg string, caller domain.Address, err error) {
	h.logger.WarnContext(ctx, msg,
		"caller", caller.Hex(),
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}

func (h *Handler) handleAddTrusted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[TrustedSenderRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.trusted.Add(ctx, caller, req.id); err != nil {
		h.reject(ctx, w, "trusted sender add rejected", caller, err)
		return
	}
	h.writeTrusted(w, r, req.id)
}

func (h *Handler) handleRemoveTrusted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[TrustedSenderRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	h.removeTrusted(w, r, req.id)
}

func (h *Handler) handleRemoveTrustedByID(w http.ResponseWriter, r *http.Request) {
	id, err := parseSenderID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.removeTrusted(w, r, id)
}

func (h *Handler) removeTrusted(w http.ResponseWriter, r *http.Request, id domain.Bytes32) {
	ctx := r.Context()
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.trusted.Remove(ctx, caller, id); err != nil {
		h.reject(ctx, w, "trusted sender removal rejected", caller, err)
		return
	}
	h.writeTrusted(w, r, id)
}

func (h *Handler) handleSetEnforcement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[EnforcementRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.trusted.SetEnforcement(ctx, caller, *req.Enforce); err != nil {
		h.reject(ctx, w, "enforcement toggle rejected", caller, err)
		return
	}
	h.handleListTrusted(w, r)
}

func (h *Handler) handleGetTrusted(w http.ResponseWriter, r *http.Request) {
	id, err := parseSenderID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.writeTrusted(w, r, id)
}

func (h *Handler) writeTrusted(w http.ResponseWriter, r *http.Request, id domain.Bytes32) {
	ctx := r.Context()
	trusted, err := h.trusted.IsTrusted(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	enforced, err := h.trusted.Enforced(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TrustedSenderResponse{Sender: id, Trusted: trusted, Enforced: enforced})
}

func (h *Handler) handleListTrusted(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := h.trusted.List(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	enforced, err := h.trusted.Enforced(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if list == nil {
		list = []domain.Bytes32{}
	}
	httputil.WriteJSON(w, http.StatusOK, TrustedSendersResponse{Senders: list, Enforced: enforced})
}

func (h *Handler) handleSetMailbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[MailboxRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.receiver.SetMailbox(ctx, caller, req.address()); err != nil {
		h.reject(ctx, w, "mailbox update rejected", caller, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MailboxResponse{Mailbox: req.address()})
}

func (h *Handler) handleRelay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	defer func() {
		h.metrics.ObserveOperationLatency("relay_send", time.Since(start).Seconds())
	}()
	req, ok := httputil.DecodeAndPrepare[RelayRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	relayed, err := h.sender.RelayVerificationTo(ctx, caller, domain.Domain(req.DestinationDomain), req.recipient, domain.MustAddress(req.Account), req.fee())
	if err != nil {
		h.reject(ctx, w, "relay rejected", caller, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, relayed)
}

func (h *Handler) handleMailbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[HandleRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	received, err := h.receiver.Handle(ctx, caller, domain.Domain(req.OriginDomain), req.sender, req.message)
	if err != nil {
		h.reject(ctx, w, "mailbox delivery rejected", caller, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, received)
}

func (h *Handler) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	exp, err := h.receiver.ExpiresAt(ctx, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusOf(account, exp, requestcontext.Now(ctx)))
}

func (h *Handler) handleAwait(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[AwaitRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	account := domain.MustAddress(req.Account)
	after := requestcontext.Now(ctx)
	if req.After > 0 {
		after = time.Unix(req.After, 0).UTC()
	}
	res, err := h.awaiter.Await(ctx, h.receiver, account, after)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AwaitResponse{Account: account, ExpiresAt: res.ExpiresAt.Unix(), Attempts: res.Attempts})
}
