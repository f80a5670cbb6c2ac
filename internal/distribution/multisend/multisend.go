// Package multisend disburses native value or tokens to many recipients in
// one unit of work. The contract account holds nothing between calls: every
// batch either fully disburses and refunds, or reverts.
package multisend

import (
	"context"
	"log/slog"
	"strconv"

	"proofdrop/internal/distribution/ledger"
	"proofdrop/internal/distribution/source"
	"proofdrop/internal/events"
	"proofdrop/internal/platform/metrics"
	"proofdrop/internal/platform/tracer"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/requestcontext"
)

// MaxRecipients bounds one batch.
const MaxRecipients = 200

// Result summarises one batch.
type Result struct {
	Sender  domain.Address `json:"sender"`
	Asset   domain.Address `json:"asset"`
	Count   int            `json:"count"`
	Total   domain.Amount  `json:"total"`
	Refund  domain.Amount  `json:"refund"`
	Offered domain.Amount  `json:"offered"`
}

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
	verifier source.VerificationSource
	ledger   ledger.Ledger
	emitter  events.Emitter
	account  domain.Address
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

// New builds the service. account is the contract's own ledger account,
// used as the pass-through for value and the spender for token pulls.
func New(verifier source.VerificationSource, l ledger.Ledger, emitter events.Emitter, account domain.Address, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		verifier: verifier,
		ledger:   l,
		emitter:  emitter,
		account:  account,
		tracer:   tracer.NewNoop(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Account is the ledger account callers approve for token batches.
func (s *Service) Account() domain.Address {
	return s.account
}

// BatchSendNative pays amounts[i] to recipients[i] out of value, returning
// value minus the sum to the caller.
func (s *Service) BatchSendNative(ctx context.Context, caller domain.Address, recipients []domain.Address, amounts []domain.Amount, value domain.Amount) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanMultiSendNative,
		tracer.Address(tracer.AttrAccount, caller),
		tracer.Int(tracer.AttrRecipients, len(recipients)),
	)
	var err error
	defer func() { span.End(err) }()

	var sum domain.Amount
	if sum, err = s.check(ctx, caller, recipients, amounts, value); err != nil {
		return nil, err
	}
	var refund domain.Amount
	if refund, err = value.Sub(sum); err != nil {
		return nil, err
	}

	err = s.ledger.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Transfer(ctx, domain.NativeAsset, caller, s.account, value); err != nil {
			return err
		}
		if err := s.disburse(ctx, tx, domain.NativeAsset, caller, recipients, amounts, refund); err != nil {
			return err
		}
		return s.emit(ctx, caller, domain.NativeAsset, len(recipients), sum, refund)
	})
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "native batch failed")
		return nil, err
	}
	return s.finish(ctx, "native", caller, domain.NativeAsset, len(recipients), sum, refund, value), nil
}

// BatchSendToken pulls total from the caller through its allowance to the
// contract account, pays amounts[i] to recipients[i], and returns the rest.
func (s *Service) BatchSendToken(ctx context.Context, caller, token domain.Address, recipients []domain.Address, amounts []domain.Amount, total domain.Amount) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanMultiSendToken,
		tracer.Address(tracer.AttrAccount, caller),
		tracer.Address(tracer.AttrAsset, token),
		tracer.Int(tracer.AttrRecipients, len(recipients)),
	)
	var err error
	defer func() { span.End(err) }()

	var sum domain.Amount
	if sum, err = s.check(ctx, caller, recipients, amounts, total); err != nil {
		return nil, err
	}
	if token == domain.NativeAsset {
		err = dErrors.New(dErrors.CodeInvalidInput, "token must not be the native asset")
		return nil, err
	}
	var refund domain.Amount
	if refund, err = total.Sub(sum); err != nil {
		return nil, err
	}

	err = s.ledger.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.TransferFrom(ctx, token, s.account, caller, s.account, total); err != nil {
			return err
		}
		if err := s.disburse(ctx, tx, token, caller, recipients, amounts, refund); err != nil {
			return err
		}
		return s.emit(ctx, caller, token, len(recipients), sum, refund)
	})
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "token batch failed")
		return nil, err
	}
	return s.finish(ctx, "token", caller, token, len(recipients), sum, refund, total), nil
}

// check applies the admission checks in order and returns the batch sum.
func (s *Service) check(ctx context.Context, caller domain.Address, recipients []domain.Address, amounts []domain.Amount, offered domain.Amount) (domain.Amount, error) {
	verified, err := s.verifier.IsVerified(ctx, caller)
	if err != nil {
		return domain.Amount{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verification")
	}
	if !verified {
		return domain.Amount{}, dErrors.New(dErrors.CodeSenderNotVerified, "sender is not verified")
	}
	if len(recipients) == 0 || len(recipients) != len(amounts) {
		return domain.Amount{}, dErrors.New(dErrors.CodeLengthMismatch, "recipients and amounts must be non-empty and the same length")
	}
	if len(recipients) > MaxRecipients {
		return domain.Amount{}, dErrors.New(dErrors.CodeTooManyRecipients, "at most "+strconv.Itoa(MaxRecipients)+" recipients per batch")
	}
	for i, r := range recipients {
		if r.IsZero() {
			return domain.Amount{}, dErrors.New(dErrors.CodeZeroAddress, "recipient "+strconv.Itoa(i)+" is the zero address")
		}
	}
	sum, err := domain.Sum(amounts)
	if err != nil {
		return domain.Amount{}, err
	}
	if sum.Gt(offered) {
		return domain.Amount{}, dErrors.New(dErrors.CodeInsufficientValue, "amounts exceed the value provided")
	}
	return sum, nil
}

func (s *Service) disburse(ctx context.Context, tx ledger.Tx, asset, caller domain.Address, recipients []domain.Address, amounts []domain.Amount, refund domain.Amount) error {
	for i, r := range recipients {
		if err := tx.Transfer(ctx, asset, s.account, r, amounts[i]); err != nil {
			return err
		}
	}
	return tx.Transfer(ctx, asset, s.account, caller, refund)
}

// emit is the last step of the unit of work so a failed emit reverts the batch.
func (s *Service) emit(ctx context.Context, caller, asset domain.Address, count int, sum, refund domain.Amount) error {
	if err := s.emitter.Emit(ctx, events.New(events.BatchSent,
		"sender", caller.Hex(),
		"asset", asset.Hex(),
		"count", strconv.Itoa(count),
		"total", sum.String(),
		"refund", refund.String(),
	)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit batch event")
	}
	return nil
}

func (s *Service) finish(ctx context.Context, kind string, caller, asset domain.Address, count int, sum, refund, offered domain.Amount) *Result {
	s.metrics.ObserveBatch(kind, count)
	s.logger.InfoContext(ctx, "batch sent",
		"kind", kind,
		"sender", caller.Hex(),
		"asset", asset.Hex(),
		"count", count,
		"total", sum.String(),
		"refund", refund.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &Result{Sender: caller, Asset: asset, Count: count, Total: sum, Refund: refund, Offered: offered}
}
