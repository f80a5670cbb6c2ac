//go:build integration

package airdrop_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"proofdrop/internal/distribution/airdrop"
	"proofdrop/internal/distribution/ledger"
	"proofdrop/internal/events"
	eventsmemory "proofdrop/internal/events/store/memory"
	eventspostgres "proofdrop/internal/events/store/postgres"
	"proofdrop/internal/merkle"
	"proofdrop/internal/platform/logger"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/outbox"
	"proofdrop/pkg/platform/sentinel"
	"proofdrop/pkg/requestcontext"
	"proofdrop/pkg/testutil"
	"proofdrop/pkg/testutil/containers"
)

type PostgresAirdropSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *airdrop.PostgresStore
	ledger   *ledger.Postgres
	service  *airdrop.Service
	verified *testutil.VerifiedAccounts
	dist     *merkle.Distribution
	id       domain.AirdropID
}

func TestPostgresAirdropSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresAirdropSuite))
}

func (s *PostgresAirdropSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = airdrop.NewPostgresStore(s.postgres.DB)
	s.ledger = ledger.NewPostgres(s.postgres.DB)
	s.dist = testutil.NewDistributionBuilder().AddMany(3, 10).Build()
	s.id = domain.AirdropID(domain.BytesToBytes32([]byte("pg-drop")))

	s.verified = testutil.NewVerifiedAccounts(testutil.Accounts.Alice)
	for _, a := range s.dist.Allocations {
		s.verified.Set(a.Account, testutil.FixedNow.Add(time.Hour))
	}
	s.service = airdrop.New(s.store, s.verified, s.ledger, events.NewPublisher(eventsmemory.New()), testutil.Accounts.Contract, logger.Discard())
}

func (s *PostgresAirdropSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateModuleTables(ctx))
	s.postgres.SeedBalance(ctx, s.T(), domain.NativeAsset, testutil.Accounts.Alice, domain.NewAmount(100))
}

func (s *PostgresAirdropSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), testutil.FixedNow)
}

func (s *PostgresAirdropSuite) TestStoreRoundTrip() {
	ctx := s.ctx()
	_, err := s.store.Get(ctx, s.id)
	s.ErrorIs(err, sentinel.ErrNotFound)

	a := &airdrop.Airdrop{
		ID:          s.id,
		MerkleRoot:  s.dist.Root,
		Token:       domain.NativeAsset,
		TotalAmount: s.dist.Total,
		Creator:     testutil.Accounts.Alice,
		CreatedAt:   testutil.FixedNow,
	}
	s.Require().NoError(s.store.Create(ctx, a))
	s.ErrorIs(s.store.Create(ctx, a), sentinel.ErrConflict)

	got, err := s.store.Get(ctx, s.id)
	s.Require().NoError(err)
	s.Equal(s.dist.Root, got.MerkleRoot)
	s.Equal("30", got.TotalAmount.String())
	s.Nil(got.CancelledAt)

	leaf := s.dist.Allocations[0].Leaf
	claim := &airdrop.Claim{AirdropID: s.id, Leaf: leaf, Index: domain.NewAmount(0), Account: s.dist.Allocations[0].Account, Amount: domain.NewAmount(10), ClaimedAt: testutil.FixedNow}
	s.Require().NoError(s.store.RecordClaim(ctx, claim))
	s.ErrorIs(s.store.RecordClaim(ctx, claim), sentinel.ErrConflict)

	claimed, err := s.store.IsClaimed(ctx, s.id, leaf)
	s.Require().NoError(err)
	s.True(claimed)
}

func (s *PostgresAirdropSuite) TestConcurrentClaimsPayOnce() {
	ctx := s.ctx()
	_, err := s.service.CreateNative(ctx, testutil.Accounts.Alice, s.id, s.dist.Root, s.dist.Total)
	s.Require().NoError(err)

	alloc := s.dist.Allocations[1]
	result := testutil.RunConcurrent(8, func(int) error {
		_, err := s.service.Claim(ctx, alloc.Account, s.id, alloc.Index, alloc.Amount, alloc.Proof)
		if err != nil && !dErrors.HasCode(err, dErrors.CodeAlreadyClaimed) {
			s.T().Errorf("unexpected claim error: %v", err)
		}
		return err
	})
	s.Equal(int32(1), result.Successes)

	bal, err := s.ledger.Balance(ctx, domain.NativeAsset, alloc.Account)
	s.Require().NoError(err)
	s.Equal("10", bal.String())
}

func (s *PostgresAirdropSuite) TestCancelRefundsRemainder() {
	ctx := s.ctx()
	_, err := s.service.CreateNative(ctx, testutil.Accounts.Alice, s.id, s.dist.Root, s.dist.Total)
	s.Require().NoError(err)
	alloc := s.dist.Allocations[0]
	_, err = s.service.Claim(ctx, alloc.Account, s.id, alloc.Index, alloc.Amount, alloc.Proof)
	s.Require().NoError(err)

	a, refund, err := s.service.Cancel(ctx, testutil.Accounts.Alice, s.id)
	s.Require().NoError(err)
	s.Equal("20", refund.String())
	s.True(a.Cancelled)

	bal, err := s.ledger.Balance(ctx, domain.NativeAsset, testutil.Accounts.Alice)
	s.Require().NoError(err)
	s.Equal("90", bal.String())
}

type unavailableOutbox struct {
	outbox.Store
}

func (unavailableOutbox) Append(context.Context, *outbox.Entry) error {
	return errors.New("outbox unavailable")
}

func (s *PostgresAirdropSuite) TestFailedEmitRollsBackClaimAndEventRow() {
	ctx := s.ctx()
	_, err := s.service.CreateNative(ctx, testutil.Accounts.Alice, s.id, s.dist.Root, s.dist.Total)
	s.Require().NoError(err)

	log := eventspostgres.New(s.postgres.DB)
	broken := airdrop.New(s.store, s.verified, s.ledger,
		events.NewPublisher(log, events.WithOutbox(unavailableOutbox{}, "proofdrop.events")),
		testutil.Accounts.Contract, logger.Discard())
	alloc := s.dist.Allocations[0]
	_, err = broken.Claim(ctx, alloc.Account, s.id, alloc.Index, alloc.Amount, alloc.Proof)
	s.Require().Error(err)

	bal, err := s.ledger.Balance(ctx, domain.NativeAsset, alloc.Account)
	s.Require().NoError(err)
	s.Equal("0", bal.String())
	claimed, err := s.store.IsClaimed(ctx, s.id, alloc.Leaf)
	s.Require().NoError(err)
	s.False(claimed)
	rows, err := log.List(ctx, events.Filter{Name: events.Claimed})
	s.Require().NoError(err)
	s.Empty(rows, "the event row written before the outbox failure rolled back too")

	_, err = s.service.Claim(ctx, alloc.Account, s.id, alloc.Index, alloc.Amount, alloc.Proof)
	s.Require().NoError(err)
}
