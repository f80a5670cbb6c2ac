// Package airdrop is the Merkle-proof distribution pool. A verified creator
// escrows funds under a root; verified recipients claim their leaf once;
// the creator may cancel and take back whatever is unclaimed.
package airdrop

import (
	"context"
	"errors"
	"log/slog"

	"proofdrop/internal/distribution/ledger"
	"proofdrop/internal/distribution/source"
	"proofdrop/internal/events"
	"proofdrop/internal/merkle"
	"proofdrop/internal/platform/metrics"
	"proofdrop/internal/platform/tracer"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/sentinel"
	platformsync "proofdrop/pkg/platform/sync"
	"proofdrop/pkg/requestcontext"
	"proofdrop/pkg/validation"
)

type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

type Service struct {
	store    Store
	verifier source.VerificationSource
	ledger   ledger.Ledger
	emitter  events.Emitter
	escrow   domain.Address
	locks    *platformsync.ShardedMutex
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

// New builds the service. escrow is the ledger account holding every
// pool's funds and the spender creators approve for token pools.
func New(store Store, verifier source.VerificationSource, l ledger.Ledger, emitter events.Emitter, escrow domain.Address, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		verifier: verifier,
		ledger:   l,
		emitter:  emitter,
		escrow:   escrow,
		locks:    platformsync.NewShardedMutex(),
		tracer:   tracer.NewNoop(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Account() domain.Address {
	return s.escrow
}

// CreateNative escrows value out of caller's native balance.
func (s *Service) CreateNative(ctx context.Context, caller domain.Address, id domain.AirdropID, root domain.Hash, value domain.Amount) (*Airdrop, error) {
	return s.create(ctx, "native", caller, id, root, domain.NativeAsset, value, func(ctx context.Context, tx ledger.Tx) error {
		return tx.Transfer(ctx, domain.NativeAsset, caller, s.escrow, value)
	})
}

// CreateToken pulls total through caller's allowance to the escrow account.
func (s *Service) CreateToken(ctx context.Context, caller domain.Address, id domain.AirdropID, root domain.Hash, token domain.Address, total domain.Amount) (*Airdrop, error) {
	if token == domain.NativeAsset {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token must not be the native asset")
	}
	return s.create(ctx, "token", caller, id, root, token, total, func(ctx context.Context, tx ledger.Tx) error {
		return tx.TransferFrom(ctx, token, s.escrow, caller, s.escrow, total)
	})
}

func (s *Service) create(ctx context.Context, kind string, caller domain.Address, id domain.AirdropID, root domain.Hash, token domain.Address, total domain.Amount, escrow func(context.Context, ledger.Tx) error) (*Airdrop, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAirdropCreate,
		tracer.String(tracer.AttrAirdropID, id.Hex()),
		tracer.Address(tracer.AttrAsset, token),
	)
	var err error
	defer func() { span.End(err) }()

	if err = s.requireVerified(ctx, caller); err != nil {
		return nil, err
	}
	if root.IsZero() {
		err = dErrors.New(dErrors.CodeInvalidInput, "merkle root must not be zero")
		return nil, err
	}
	if total.IsZero() {
		err = dErrors.New(dErrors.CodeInvalidInput, "airdrop amount must not be zero")
		return nil, err
	}

	s.locks.Lock(id.Hex())
	defer s.locks.Unlock(id.Hex())

	a := &Airdrop{
		ID:          id,
		MerkleRoot:  root,
		Token:       token,
		TotalAmount: total,
		Creator:     caller,
		CreatedAt:   requestcontext.Now(ctx),
	}
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if _, err := s.store.Get(ctx, id); err == nil {
			return dErrors.New(dErrors.CodeAirdropExists, "airdrop id already used")
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		if err := escrow(ctx, tx); err != nil {
			return err
		}
		if err := s.emit(ctx, "failed to emit airdrop event", events.New(events.AirdropCreated,
			"airdrop_id", id.Hex(),
			"creator", caller.Hex(),
			"token", token.Hex(),
			"merkle_root", root.Hex(),
			"total_amount", total.String(),
		)); err != nil {
			return err
		}
		if err := s.store.Create(ctx, a); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeAirdropExists, "airdrop id already used")
			}
			return err
		}
		return nil
	})
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to create airdrop")
		return nil, err
	}

	s.metrics.IncAirdropsCreated(kind)
	s.logger.InfoContext(ctx, "airdrop created",
		"airdrop_id", id.Hex(),
		"creator", caller.Hex(),
		"token", token.Hex(),
		"total", total.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return a, nil
}

// CanClaim reports whether the leaf for (index, account, amount) is provable
// against the root, unclaimed, and the airdrop still open. It does not look
// at account's verification.
func (s *Service) CanClaim(ctx context.Context, id domain.AirdropID, account domain.Address, index, amount domain.Amount, proof []domain.Hash) (bool, error) {
	if len(proof) > validation.MaxProofDepth {
		return false, nil
	}
	a, err := s.find(ctx, id)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeAirdropNotFound) {
			return false, nil
		}
		return false, err
	}
	if a.Cancelled {
		return false, nil
	}
	leaf := merkle.Leaf(index, account, amount)
	claimed, err := s.store.IsClaimed(ctx, id, leaf)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read claims")
	}
	if claimed {
		return false, nil
	}
	return merkle.Verify(proof, a.MerkleRoot, leaf), nil
}

// Claim pays amount to caller for the leaf (index, caller, amount).
func (s *Service) Claim(ctx context.Context, caller domain.Address, id domain.AirdropID, index, amount domain.Amount, proof []domain.Hash) (*Claim, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAirdropClaim,
		tracer.String(tracer.AttrAirdropID, id.Hex()),
		tracer.Address(tracer.AttrAccount, caller),
	)
	var err error
	defer func() {
		span.End(err)
		s.metrics.IncClaims(claimOutcome(err))
	}()

	if err = s.requireVerified(ctx, caller); err != nil {
		return nil, err
	}
	if err = validation.CheckSliceCount("proof", len(proof), validation.MaxProofDepth); err != nil {
		return nil, err
	}

	s.locks.Lock(id.Hex())
	defer s.locks.Unlock(id.Hex())

	leaf := merkle.Leaf(index, caller, amount)
	claim := &Claim{
		AirdropID: id,
		Leaf:      leaf,
		Index:     index,
		Account:   caller,
		Amount:    amount,
		ClaimedAt: requestcontext.Now(ctx),
	}
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		a, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if a.Cancelled {
			return dErrors.New(dErrors.CodeAirdropAlreadyCancelled, "airdrop is cancelled")
		}
		claimed, err := s.store.IsClaimed(ctx, id, leaf)
		if err != nil {
			return err
		}
		if claimed {
			return dErrors.New(dErrors.CodeAlreadyClaimed, "leaf already claimed")
		}
		if !merkle.Verify(proof, a.MerkleRoot, leaf) {
			return dErrors.New(dErrors.CodeInvalidProof, "proof does not match the airdrop root")
		}
		next, err := a.ClaimedAmount.Add(amount)
		if err != nil || next.Gt(a.TotalAmount) {
			return dErrors.New(dErrors.CodeInvariantViolation, "claim would exceed the airdrop total")
		}

		if err := tx.Transfer(ctx, a.Token, s.escrow, caller, amount); err != nil {
			return err
		}
		if err := s.emit(ctx, "failed to emit claim event", events.New(events.Claimed,
			"airdrop_id", id.Hex(),
			"index", index.String(),
			"account", caller.Hex(),
			"amount", amount.String(),
		)); err != nil {
			return err
		}
		if err := s.store.RecordClaim(ctx, claim); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeAlreadyClaimed, "leaf already claimed")
			}
			return err
		}
		a.ClaimedAmount = next
		return s.store.Update(ctx, a)
	})
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim")
		return nil, err
	}

	s.logger.InfoContext(ctx, "airdrop claimed",
		"airdrop_id", id.Hex(),
		"account", caller.Hex(),
		"index", index.String(),
		"amount", amount.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return claim, nil
}

// Cancel refunds the unclaimed remainder to the creator and closes the
// airdrop for good. Claims already paid stay paid.
func (s *Service) Cancel(ctx context.Context, caller domain.Address, id domain.AirdropID) (*Airdrop, domain.Amount, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanAirdropCancel, tracer.String(tracer.AttrAirdropID, id.Hex()))
	var err error
	defer func() { span.End(err) }()

	s.locks.Lock(id.Hex())
	defer s.locks.Unlock(id.Hex())

	var (
		cancelled *Airdrop
		refund    domain.Amount
	)
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		a, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		if a.Creator != caller {
			return dErrors.New(dErrors.CodeNotCreator, "only the creator may cancel")
		}
		if a.Cancelled {
			return dErrors.New(dErrors.CodeAirdropAlreadyCancelled, "airdrop is already cancelled")
		}
		refund = a.Remaining()
		if err := tx.Transfer(ctx, a.Token, s.escrow, a.Creator, refund); err != nil {
			return err
		}
		if err := s.emit(ctx, "failed to emit cancel event", events.New(events.AirdropCancelled,
			"airdrop_id", id.Hex(),
			"creator", caller.Hex(),
			"refund", refund.String(),
		)); err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		a.Cancelled = true
		a.CancelledAt = &now
		if err := s.store.Update(ctx, a); err != nil {
			return err
		}
		cancelled = a
		return nil
	})
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel airdrop")
		return nil, domain.Amount{}, err
	}

	s.metrics.IncAirdropsCancelled()
	s.logger.InfoContext(ctx, "airdrop cancelled",
		"airdrop_id", id.Hex(),
		"creator", caller.Hex(),
		"refund", refund.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return cancelled, refund, nil
}

// emit runs inside the unit of work, after the ledger movements and before
// the store writes: in-memory stores apply writes immediately and have
// nothing to roll back.
func (s *Service) emit(ctx context.Context, msg string, event events.Event) error {
	if err := s.emitter.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
	return nil
}

// Get is the airdrops(id) read.
func (s *Service) Get(ctx context.Context, id domain.AirdropID) (*Airdrop, error) {
	return s.find(ctx, id)
}

func (s *Service) Claims(ctx context.Context, id domain.AirdropID) ([]Claim, error) {
	if _, err := s.find(ctx, id); err != nil {
		return nil, err
	}
	claims, err := s.store.Claims(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list claims")
	}
	return claims, nil
}

func (s *Service) find(ctx context.Context, id domain.AirdropID) (*Airdrop, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeAirdropNotFound, "airdrop not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read airdrop")
	}
	return a, nil
}

func (s *Service) requireVerified(ctx context.Context, account domain.Address) error {
	ok, err := s.verifier.IsVerified(ctx, account)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verification")
	}
	if !ok {
		return dErrors.New(dErrors.CodeNotVerified, "caller is not verified")
	}
	return nil
}

func claimOutcome(err error) string {
	if err == nil {
		return "claimed"
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeAlreadyClaimed:
		return "already_claimed"
	case dErrors.CodeInvalidProof:
		return "invalid_proof"
	case dErrors.CodeNotVerified:
		return "not_verified"
	default:
		return "rejected"
	}
}
