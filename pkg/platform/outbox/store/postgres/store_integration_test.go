//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"proofdrop/internal/platform/database"
	"proofdrop/pkg/platform/outbox"
	outboxpostgres "proofdrop/pkg/platform/outbox/store/postgres"
	"proofdrop/pkg/testutil/containers"
)

type OutboxPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *outboxpostgres.Store
	now      time.Time
}

func TestOutboxPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxPostgresSuite))
}

func (s *OutboxPostgresSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = outboxpostgres.New(s.postgres.DB)
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *OutboxPostgresSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateModuleTables(context.Background()))
}

func (s *OutboxPostgresSuite) entry(aggregateID string, offset time.Duration) *outbox.Entry {
	return outbox.NewEntry("proofdrop.events", "event", aggregateID, "Claimed", []byte(`{"k":"v"}`), s.now.Add(offset))
}

func (s *OutboxPostgresSuite) TestAppendJoinsAmbientTransaction() {
	ctx := context.Background()

	err := database.RunInTx(ctx, s.postgres.DB, func(ctx context.Context) error {
		s.Require().NoError(s.store.Append(ctx, s.entry("rolled-back", 0)))
		return errors.New("abort")
	})
	s.Require().Error(err)

	n, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Zero(n)

	err = database.RunInTx(ctx, s.postgres.DB, func(ctx context.Context) error {
		return s.store.Append(ctx, s.entry("committed", 0))
	})
	s.Require().NoError(err)

	n, err = s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *OutboxPostgresSuite) TestFetchMarkAndPurge() {
	ctx := context.Background()
	second := s.entry("b", time.Second)
	first := s.entry("a", 0)
	s.Require().NoError(s.store.Append(ctx, second))
	s.Require().NoError(s.store.Append(ctx, first))

	entries, err := s.store.FetchUnprocessed(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(first.ID, entries[0].ID)
	s.Equal("proofdrop.events", entries[0].Topic)
	s.JSONEq(`{"k":"v"}`, string(entries[0].Payload))

	s.Require().NoError(s.store.MarkProcessed(ctx, first.ID, s.now))
	s.Error(s.store.MarkProcessed(ctx, first.ID, s.now))

	deleted, err := s.store.DeleteProcessedBefore(ctx, s.now.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	n, err := s.store.CountPending(ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}
