package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"proofdrop/pkg/platform/outbox"
)

type MemoryOutboxSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
	t0    time.Time
}

func TestMemoryOutboxSuite(t *testing.T) {
	suite.Run(t, new(MemoryOutboxSuite))
}

func (s *MemoryOutboxSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
	s.t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *MemoryOutboxSuite) append(seconds int) *outbox.Entry {
	e := outbox.NewEntry("proofdrop.events", "event", "id", "Claimed", []byte(`{}`), s.t0.Add(time.Duration(seconds)*time.Second))
	s.Require().NoError(s.store.Append(s.ctx, e))
	return e
}

func (s *MemoryOutboxSuite) TestFetchOldestFirstAndLimit() {
	late := s.append(10)
	early := s.append(1)
	s.append(5)

	got, err := s.store.FetchUnprocessed(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal(early.ID, got[0].ID)
	s.NotEqual(late.ID, got[1].ID)
}

func (s *MemoryOutboxSuite) TestMarkProcessedOnce() {
	e := s.append(0)
	s.Require().NoError(s.store.MarkProcessed(s.ctx, e.ID, s.t0))
	s.Error(s.store.MarkProcessed(s.ctx, e.ID, s.t0))

	n, err := s.store.CountPending(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *MemoryOutboxSuite) TestDeleteProcessedBefore() {
	old := s.append(0)
	fresh := s.append(1)
	pending := s.append(2)
	s.Require().NoError(s.store.MarkProcessed(s.ctx, old.ID, s.t0))
	s.Require().NoError(s.store.MarkProcessed(s.ctx, fresh.ID, s.t0.Add(time.Hour)))

	deleted, err := s.store.DeleteProcessedBefore(s.ctx, s.t0.Add(time.Minute))
	s.Require().NoError(err)
	s.Equal(int64(1), deleted)

	ids := map[string]bool{}
	for _, e := range s.store.All() {
		ids[e.ID.String()] = true
	}
	s.True(ids[fresh.ID.String()])
	s.True(ids[pending.ID.String()])
	s.False(ids[old.ID.String()])
}
