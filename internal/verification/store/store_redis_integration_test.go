//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"proofdrop/internal/platform/database"
	"proofdrop/internal/platform/logger"
	"proofdrop/internal/platform/metrics"
	"proofdrop/internal/verification/models"
	"proofdrop/internal/verification/store"
	"proofdrop/pkg/testutil"
	"proofdrop/pkg/testutil/containers"
)

// CachedPostgresSuite runs the cache-aside decorator the way production
// does: Postgres underneath, a real Redis on top.
type CachedPostgresSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redis    *containers.RedisContainer
	primary  *store.PostgresStore
	cache    *store.CachedStore
}

func TestCachedPostgresSuite(t *testing.T) {
	suite.Run(t, new(CachedPostgresSuite))
}

func (s *CachedPostgresSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.redis = containers.GetManager().GetRedis(s.T())
	s.primary = store.NewPostgres(s.postgres.DB, store.TableRegistry)
	s.cache = store.NewCachedStore(s.primary, s.redis.Client, "registry", 10*time.Minute,
		metrics.NewWith(prometheus.NewRegistry()), logger.Discard())
}

func (s *CachedPostgresSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateModuleTables(ctx))
	s.Require().NoError(s.redis.Flush(ctx))
}

func (s *CachedPostgresSuite) cachedKeys() []string {
	keys, err := s.redis.Client.Keys(context.Background(), "verification:registry:*").Result()
	s.Require().NoError(err)
	return keys
}

func (s *CachedPostgresSuite) TestReadThroughHonoursRemainingValidity() {
	ctx := context.Background()
	alice := testutil.Accounts.Alice
	expiry := time.Now().UTC().Add(90 * time.Second).Truncate(time.Microsecond)
	s.Require().NoError(s.cache.Put(ctx, &models.Record{Account: alice, ExpiresAt: expiry, UpdatedAt: time.Now().UTC()}))

	rec, err := s.cache.Get(ctx, alice)
	s.Require().NoError(err)
	s.True(expiry.Equal(rec.ExpiresAt))

	keys := s.cachedKeys()
	s.Require().Len(keys, 1)
	ttl, err := s.redis.Client.TTL(ctx, keys[0]).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, 90*time.Second)
}

func (s *CachedPostgresSuite) TestRolledBackPutLeavesNoCachedValue() {
	ctx := context.Background()
	alice := testutil.Accounts.Alice
	committed := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	s.Require().NoError(s.cache.Put(ctx, &models.Record{Account: alice, ExpiresAt: committed, UpdatedAt: time.Now().UTC()}))

	err := database.RunInTx(ctx, s.postgres.DB, func(ctx context.Context) error {
		s.Require().NoError(s.cache.Put(ctx, &models.Record{Account: alice, ExpiresAt: committed.Add(time.Hour), UpdatedAt: time.Now().UTC()}))
		return errors.New("abort")
	})
	s.Require().Error(err)

	rec, err := s.cache.Get(ctx, alice)
	s.Require().NoError(err)
	s.True(committed.Equal(rec.ExpiresAt))
}
