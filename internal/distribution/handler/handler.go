// Package handler exposes the distribution layer (multisend, airdrops, the
// ledger and the Merkle helper) over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"proofdrop/internal/distribution/airdrop"
	"proofdrop/internal/distribution/multisend"
	"proofdrop/internal/merkle"
	"proofdrop/internal/platform/metrics"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/httputil"
	"proofdrop/pkg/requestcontext"
)

type MultiSend interface {
	BatchSendNative(ctx context.Context, caller domain.Address, recipients []domain.Address, amounts []domain.Amount, value domain.Amount) (*multisend.Result, error)
	BatchSendToken(ctx context.Context, caller, token domain.Address, recipients []domain.Address, amounts []domain.Amount, total domain.Amount) (*multisend.Result, error)
}

type Airdrops interface {
	CreateNative(ctx context.Context, caller domain.Address, id domain.AirdropID, root domain.Hash, value domain.Amount) (*airdrop.Airdrop, error)
	CreateToken(ctx context.Context, caller domain.Address, id domain.AirdropID, root domain.Hash, token domain.Address, total domain.Amount) (*airdrop.Airdrop, error)
	Get(ctx context.Context, id domain.AirdropID) (*airdrop.Airdrop, error)
	CanClaim(ctx context.Context, id domain.AirdropID, account domain.Address, index, amount domain.Amount, proof []domain.Hash) (bool, error)
	Claim(ctx context.Context, caller domain.Address, id domain.AirdropID, index, amount domain.Amount, proof []domain.Hash) (*airdrop.Claim, error)
	Cancel(ctx context.Context, caller domain.Address, id domain.AirdropID) (*airdrop.Airdrop, domain.Amount, error)
}

type Ledger interface {
	Balance(ctx context.Context, asset, account domain.Address) (domain.Amount, error)
	Allowance(ctx context.Context, token, owner, spender domain.Address) (domain.Amount, error)
	Approve(ctx context.Context, caller, token, spender domain.Address, amount domain.Amount) error
	Credit(ctx context.Context, caller, asset, account domain.Address, amount domain.Amount) (domain.Amount, error)
}

type Handler struct {
	multisend MultiSend
	airdrops  Airdrops
	ledger    Ledger
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func New(ms MultiSend, airdrops Airdrops, l Ledger, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{multisend: ms, airdrops: airdrops, ledger: l, logger: logger, metrics: m}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/multisend/native", h.handleBatchNative)
	r.Post("/multisend/token", h.handleBatchToken)
	r.Post("/airdrops/native", h.handleCreateNative)
	r.Post("/airdrops/token", h.handleCreateToken)
	r.Get("/airdrops/{id}", h.handleGetAirdrop)
	r.Post("/airdrops/{id}/can-claim", h.handleCanClaim)
	r.Post("/airdrops/{id}/claim", h.handleClaim)
	r.Post("/airdrops/{id}/cancel", h.handleCancel)
	r.Post("/merkle/tree", h.handleBuildTree)
	r.Get("/ledger/{asset}/{account}", h.handleBalance)
	r.Get("/ledger/{asset}/{account}/allowance/{spender}", h.handleAllowance)
	r.Post("/ledger/approve", h.handleApprove)
}

// RegisterAdmin mounts owner-only deposits.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/ledger/credit", h.handleCredit)
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

func (h *Handler) observe(op string, start time.Time) {
	h.metrics.ObserveOperationLatency(op, time.Since(start).Seconds())
}

func (h *Handler) handleBatchNative(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, false)
}

func (h *Handler) handleBatchToken(w http.ResponseWriter, r *http.Request) {
	h.batch(w, r, true)
}

func (h *Handler) batch(w http.ResponseWriter, r *http.Request, token bool) {
	ctx := r.Context()
	defer h.observe("multisend", time.Now())
	req, ok := httputil.DecodeAndPrepare[BatchRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var (
		res *multisend.Result
		err error
	)
	recipients, values := addresses(req.Recipients), amounts(req.Amounts)
	if token {
		if req.Token == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "token is required"))
			return
		}
		res, err = h.multisend.BatchSendToken(ctx, caller, domain.MustAddress(req.Token), recipients, values, req.offered(true))
	} else {
		res, err = h.multisend.BatchSendNative(ctx, caller, recipients, values, req.offered(false))
	}
	if err != nil {
		h.reject(ctx, w, "batch send rejected", caller, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreateNative(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, false)
}

func (h *Handler) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, true)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request, token bool) {
	ctx := r.Context()
	defer h.observe("airdrop_create", time.Now())
	req, ok := httputil.DecodeAndPrepare[CreateAirdropRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var (
		a   *airdrop.Airdrop
		err error
	)
	if token {
		if req.Token == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "token is required"))
			return
		}
		a, err = h.airdrops.CreateToken(ctx, caller, req.id(), req.root(), domain.MustAddress(req.Token), req.amount(true))
	} else {
		a, err = h.airdrops.CreateNative(ctx, caller, req.id(), req.root(), req.amount(false))
	}
	if err != nil {
		h.reject(ctx, w, "airdrop creation rejected", caller, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

func airdropID(r *http.Request) (domain.AirdropID, error) {
	return domain.ParseAirdropID(chi.URLParam(r, "id"))
}

func (h *Handler) handleGetAirdrop(w http.ResponseWriter, r *http.Request) {
	id, err := airdropID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	a, err := h.airdrops.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}

func (h *Handler) handleCanClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := airdropID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ClaimRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	var account domain.Address
	if req.Account != "" {
		account = domain.MustAddress(req.Account)
	} else if caller, ok := requestcontext.Caller(ctx); ok {
		account = caller
	}
	can, err := h.airdrops.CanClaim(ctx, id, account, domain.MustAmount(req.Index), domain.MustAmount(req.Amount), hashes(req.Proof))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CanClaimResponse{CanClaim: can})
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer h.observe("airdrop_claim", time.Now())
	id, err := airdropID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[ClaimRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	claim, err := h.airdrops.Claim(ctx, caller, id, domain.MustAmount(req.Index), domain.MustAmount(req.Amount), hashes(req.Proof))
	if err != nil {
		h.reject(ctx, w, "claim rejected", caller, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, claim)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := airdropID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, refund, err := h.airdrops.Cancel(ctx, caller, id)
	if err != nil {
		h.reject(ctx, w, "cancel rejected", caller, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CancelResponse{Airdrop: a, Refund: refund})
}

func (h *Handler) handleBuildTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[TreeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	dist, err := merkle.BuildDistribution(req.entries())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, dist)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	asset, err := parseAsset(chi.URLParam(r, "asset"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	account, err := domain.ParseAddress(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	bal, err := h.ledger.Balance(r.Context(), asset, account)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Asset: asset, Account: account, Balance: bal})
}

func (h *Handler) handleAllowance(w http.ResponseWriter, r *http.Request) {
	var addrs [3]domain.Address
	for i, key := range []string{"asset", "account", "spender"} {
		addr, err := domain.ParseAddress(chi.URLParam(r, key))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		addrs[i] = addr
	}
	allowance, err := h.ledger.Allowance(r.Context(), addrs[0], addrs[1], addrs[2])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AllowanceResponse{Token: addrs[0], Owner: addrs[1], Spender: addrs[2], Allowance: allowance})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[ApproveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	token, spender, amount := domain.MustAddress(req.Token), domain.MustAddress(req.Spender), domain.MustAmount(req.Amount)
	if err := h.ledger.Approve(ctx, caller, token, spender, amount); err != nil {
		h.reject(ctx, w, "approval rejected", caller, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, AllowanceResponse{Token: token, Owner: caller, Spender: spender, Allowance: amount})
}

func (h *Handler) handleCredit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[CreditRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	asset := domain.NativeAsset
	if req.Asset != "" {
		asset = domain.MustAddress(req.Asset)
	}
	account := domain.MustAddress(req.Account)
	bal, err := h.ledger.Credit(ctx, caller, asset, account, domain.MustAmount(req.Amount))
	if err != nil {
		h.reject(ctx, w, "credit rejected", caller, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Asset: asset, Account: account, Balance: bal})
}
