package multisend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"proofdrop/internal/distribution/ledger"
	"proofdrop/internal/events"
	eventsmemory "proofdrop/internal/events/store/memory"
	"proofdrop/internal/platform/logger"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/requestcontext"
	"proofdrop/pkg/testutil"
)

var contract = testutil.Accounts.Contract

type MultiSendSuite struct {
	suite.Suite
	ctx     context.Context
	ledger  *ledger.Memory
	events  *eventsmemory.Store
	service *Service
	alice   domain.Address
	token   domain.Address
}

func TestMultiSendSuite(t *testing.T) {
	suite.Run(t, new(MultiSendSuite))
}

func (s *MultiSendSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), testutil.FixedNow)
	s.ledger = ledger.NewMemory()
	s.events = eventsmemory.New()
	s.alice = testutil.Accounts.Alice
	s.token = testutil.Accounts.Token
	s.service = New(testutil.NewVerifiedAccounts(s.alice), s.ledger, events.NewPublisher(s.events), contract, logger.Discard())

	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Credit(ctx, domain.NativeAsset, s.alice, domain.NewAmount(1000)); err != nil {
			return err
		}
		if err := tx.Credit(ctx, s.token, s.alice, domain.NewAmount(1000)); err != nil {
			return err
		}
		return tx.Approve(ctx, s.token, s.alice, contract, domain.NewAmount(500))
	}))
}

func (s *MultiSendSuite) balance(asset, account domain.Address) string {
	bal, err := s.ledger.Balance(s.ctx, asset, account)
	s.Require().NoError(err)
	return bal.String()
}

func amounts(values ...uint64) []domain.Amount {
	out := make([]domain.Amount, len(values))
	for i, v := range values {
		out[i] = domain.NewAmount(v)
	}
	return out
}

func recipients(n int) []domain.Address {
	out := make([]domain.Address, n)
	for i := range out {
		out[i] = testutil.NumberedAccount(i)
	}
	return out
}

func (s *MultiSendSuite) TestNativeRefundsDust() {
	res, err := s.service.BatchSendNative(s.ctx, s.alice, recipients(3), amounts(10, 20, 30), domain.NewAmount(100))
	s.Require().NoError(err)

	s.Equal("60", res.Total.String())
	s.Equal("40", res.Refund.String())
	s.Equal("10", s.balance(domain.NativeAsset, testutil.NumberedAccount(0)))
	s.Equal("30", s.balance(domain.NativeAsset, testutil.NumberedAccount(2)))
	s.Equal("940", s.balance(domain.NativeAsset, s.alice))
	s.Equal("0", s.balance(domain.NativeAsset, contract), "contract holds nothing after the batch")

	got, err := s.events.List(s.ctx, events.Filter{Name: events.BatchSent})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal("3", got[0].Attr("count"))
	s.Equal("40", got[0].Attr("refund"))
}

func (s *MultiSendSuite) TestTokenRefundsUnspentPull() {
	res, err := s.service.BatchSendToken(s.ctx, s.alice, s.token, recipients(2), amounts(100, 150), domain.NewAmount(300))
	s.Require().NoError(err)

	s.Equal("50", res.Refund.String())
	s.Equal("750", s.balance(s.token, s.alice))
	s.Equal("150", s.balance(s.token, testutil.NumberedAccount(1)))
	s.Equal("0", s.balance(s.token, contract))

	allowed, err := s.ledger.Allowance(s.ctx, s.token, s.alice, contract)
	s.Require().NoError(err)
	s.Equal("200", allowed.String())
}

func (s *MultiSendSuite) TestTokenPullBeyondAllowance() {
	_, err := s.service.BatchSendToken(s.ctx, s.alice, s.token, recipients(1), amounts(10), domain.NewAmount(501))
	s.True(dErrors.HasCode(err, dErrors.CodeTransferFailed))
	s.Equal("1000", s.balance(s.token, s.alice))
}

func (s *MultiSendSuite) TestAdmissionChecksInOrder() {
	bob := testutil.Accounts.Bob

	s.Run("unverified sender first", func() {
		_, err := s.service.BatchSendNative(s.ctx, bob, nil, nil, domain.Amount{})
		s.True(dErrors.HasCode(err, dErrors.CodeSenderNotVerified))
	})

	s.Run("empty batch", func() {
		_, err := s.service.BatchSendNative(s.ctx, s.alice, nil, nil, domain.NewAmount(1))
		s.True(dErrors.HasCode(err, dErrors.CodeLengthMismatch))
	})

	s.Run("length mismatch", func() {
		_, err := s.service.BatchSendNative(s.ctx, s.alice, recipients(2), amounts(1), domain.NewAmount(1))
		s.True(dErrors.HasCode(err, dErrors.CodeLengthMismatch))
	})

	s.Run("too many recipients", func() {
		n := MaxRecipients + 1
		_, err := s.service.BatchSendNative(s.ctx, s.alice, recipients(n), make([]domain.Amount, n), domain.NewAmount(1))
		s.True(dErrors.HasCode(err, dErrors.CodeTooManyRecipients))
	})

	s.Run("zero recipient", func() {
		rs := recipients(2)
		rs[1] = domain.Address{}
		_, err := s.service.BatchSendNative(s.ctx, s.alice, rs, amounts(1, 1), domain.NewAmount(2))
		s.True(dErrors.HasCode(err, dErrors.CodeZeroAddress))
	})

	s.Run("amounts exceed value", func() {
		_, err := s.service.BatchSendNative(s.ctx, s.alice, recipients(2), amounts(5, 6), domain.NewAmount(10))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientValue))
	})

	s.Equal("1000", s.balance(domain.NativeAsset, s.alice))
}

func (s *MultiSendSuite) TestExactlyMaxRecipients() {
	rs := recipients(MaxRecipients)
	as := make([]domain.Amount, MaxRecipients)
	for i := range as {
		as[i] = domain.NewAmount(1)
	}
	res, err := s.service.BatchSendNative(s.ctx, s.alice, rs, as, domain.NewAmount(MaxRecipients))
	s.Require().NoError(err)
	s.Equal(MaxRecipients, res.Count)
	s.True(res.Refund.IsZero())
}

func (s *MultiSendSuite) TestValueBeyondBalanceReverts() {
	_, err := s.service.BatchSendNative(s.ctx, s.alice, recipients(1), amounts(1), domain.NewAmount(1001))
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientValue))
	s.Equal("1000", s.balance(domain.NativeAsset, s.alice))
	s.Equal("0", s.balance(domain.NativeAsset, testutil.NumberedAccount(0)))
}

func (s *MultiSendSuite) TestNativeAssetIsNotAToken() {
	_, err := s.service.BatchSendToken(s.ctx, s.alice, domain.NativeAsset, recipients(1), amounts(1), domain.NewAmount(1))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *MultiSendSuite) TestFailedEmitRevertsBatch() {
	emitter := testutil.NewFaultyEmitter(events.NewPublisher(s.events))
	svc := New(testutil.NewVerifiedAccounts(s.alice), s.ledger, emitter, contract, logger.Discard())

	emitter.Break()
	_, err := svc.BatchSendNative(s.ctx, s.alice, recipients(2), amounts(10, 20), domain.NewAmount(40))
	s.Require().ErrorIs(err, testutil.ErrEmitFailed)
	_, err = svc.BatchSendToken(s.ctx, s.alice, s.token, recipients(2), amounts(10, 20), domain.NewAmount(40))
	s.Require().ErrorIs(err, testutil.ErrEmitFailed)

	s.Equal("1000", s.balance(domain.NativeAsset, s.alice))
	s.Equal("1000", s.balance(s.token, s.alice))
	s.Equal("0", s.balance(domain.NativeAsset, testutil.NumberedAccount(0)))
	allowed, err := s.ledger.Allowance(s.ctx, s.token, s.alice, contract)
	s.Require().NoError(err)
	s.Equal("500", allowed.String())

	emitter.Fix()
	_, err = svc.BatchSendNative(s.ctx, s.alice, recipients(2), amounts(10, 20), domain.NewAmount(40))
	s.Require().NoError(err)
	s.Equal("20", s.balance(domain.NativeAsset, testutil.NumberedAccount(1)))
}

// stepLog records ledger transfers and emitted events in the order they happen.
type stepLog struct {
	steps []string
}

type recordingLedger struct {
	*ledger.Memory
	log *stepLog
}

func (l recordingLedger) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return l.Memory.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, recordingTx{Tx: tx, log: l.log})
	})
}

type recordingTx struct {
	ledger.Tx
	log *stepLog
}

func (t recordingTx) Transfer(ctx context.Context, asset, from, to domain.Address, amount domain.Amount) error {
	t.log.steps = append(t.log.steps, "transfer "+to.Hex()+" "+amount.String())
	return t.Tx.Transfer(ctx, asset, from, to, amount)
}

type recordingEmitter struct {
	next events.Emitter
	log  *stepLog
}

func (e recordingEmitter) Emit(ctx context.Context, event events.Event) error {
	e.log.steps = append(e.log.steps, "emit "+string(event.Name))
	return e.next.Emit(ctx, event)
}

func (s *MultiSendSuite) TestNativeBatchPaysInRecipientOrder() {
	log := &stepLog{}
	svc := New(testutil.NewVerifiedAccounts(s.alice),
		recordingLedger{Memory: s.ledger, log: log},
		recordingEmitter{next: events.NewPublisher(s.events), log: log},
		contract, logger.Discard())

	rs := []domain.Address{testutil.NumberedAccount(2), testutil.NumberedAccount(0), testutil.NumberedAccount(1)}
	_, err := svc.BatchSendNative(s.ctx, s.alice, rs, amounts(30, 10, 20), domain.NewAmount(65))
	s.Require().NoError(err)

	s.Equal([]string{
		"transfer " + contract.Hex() + " 65",
		"transfer " + rs[0].Hex() + " 30",
		"transfer " + rs[1].Hex() + " 10",
		"transfer " + rs[2].Hex() + " 20",
		"transfer " + s.alice.Hex() + " 5",
		"emit " + string(events.BatchSent),
	}, log.steps)

	got, err := s.events.List(s.ctx, events.Filter{Name: events.BatchSent})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(domain.NativeAsset.Hex(), got[0].Attr("asset"))
	s.Equal("60", got[0].Attr("total"))
	s.Equal("5", got[0].Attr("refund"))
}
