package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"proofdrop/internal/platform/metrics"
	"proofdrop/internal/verification/models"
	"proofdrop/pkg/domain"
	"proofdrop/pkg/platform/circuit"
	"proofdrop/pkg/requestcontext"
)

const redisKeyPrefix = "verification:"

// RecordStore is the part of a store the cache decorates.
type RecordStore interface {
	Get(ctx context.Context, account domain.Address) (*models.Record, error)
	Put(ctx context.Context, record *models.Record) error
}

// CachedStore is a cache-aside decorator over a primary RecordStore. Reads
// try Redis first; writes go to the primary and then invalidate the key, so
// a rolled-back transaction can never leave a cached value behind.
//
// A cached entry never outlives the credential it holds: the TTL is the
// smaller of the configured TTL and the record's remaining validity.
type CachedStore struct {
	primary RecordStore
	client  *redis.Client
	ttl     time.Duration
	ns      string
	breaker *circuit.Breaker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type cachedRecord struct {
	ExpiresAt time.Time `json:"expires_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewCachedStore namespaces keys by ns so the registry and receiver caches
// never collide. opts tune the breaker that bypasses an unreachable Redis.
func NewCachedStore(primary RecordStore, client *redis.Client, ns string, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger, opts ...circuit.Option) *CachedStore {
	return &CachedStore{
		primary: primary,
		client:  client,
		ttl:     ttl,
		ns:      ns,
		breaker: circuit.New("verification-cache-"+ns, opts...),
		metrics: m,
		logger:  logger,
	}
}

func (c *CachedStore) key(account domain.Address) string {
	return redisKeyPrefix + c.ns + ":" + account.Key()
}

func (c *CachedStore) Get(ctx context.Context, account domain.Address) (*models.Record, error) {
	if rec, ok := c.read(ctx, account); ok {
		return rec, nil
	}

	rec, err := c.primary.Get(ctx, account)
	if err != nil {
		return nil, err
	}
	c.write(ctx, rec)
	return rec, nil
}

func (c *CachedStore) Put(ctx context.Context, record *models.Record) error {
	if err := c.primary.Put(ctx, record); err != nil {
		return err
	}
	if err := c.client.Del(ctx, c.key(record.Account)).Err(); err != nil {
		c.fail(ctx, "invalidate", err)
	}
	return nil
}

func (c *CachedStore) read(ctx context.Context, account domain.Address) (*models.Record, bool) {
	if !c.breaker.Allow() {
		c.metrics.IncVerificationCache("bypass")
		return nil, false
	}
	data, err := c.client.Get(ctx, c.key(account)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.succeed(ctx)
			c.metrics.IncVerificationCache("miss")
			return nil, false
		}
		c.fail(ctx, "read", err)
		return nil, false
	}
	c.succeed(ctx)

	var cached cachedRecord
	if err := json.Unmarshal(data, &cached); err != nil {
		c.fail(ctx, "decode", err)
		return nil, false
	}
	c.metrics.IncVerificationCache("hit")
	return &models.Record{Account: account, ExpiresAt: cached.ExpiresAt, UpdatedAt: cached.UpdatedAt}, true
}

func (c *CachedStore) write(ctx context.Context, rec *models.Record) {
	if !c.breaker.Allow() {
		return
	}
	ttl := c.ttl
	if remaining := rec.ExpiresAt.Sub(requestcontext.Now(ctx)); remaining < ttl {
		ttl = remaining
	}
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(cachedRecord{ExpiresAt: rec.ExpiresAt, UpdatedAt: rec.UpdatedAt})
	if err != nil {
		c.fail(ctx, "encode", fmt.Errorf("encode cached record: %w", err))
		return
	}
	if err := c.client.Set(ctx, c.key(rec.Account), data, ttl).Err(); err != nil {
		c.fail(ctx, "write", err)
	}
}

func (c *CachedStore) fail(ctx context.Context, op string, err error) {
	c.metrics.IncVerificationCache("error")
	if change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "verification cache circuit opened", "breaker", c.breaker.Name())
	}
	c.logger.WarnContext(ctx, "verification cache "+op+" failed", "error", err)
}

func (c *CachedStore) succeed(ctx context.Context) {
	if change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "verification cache circuit closed", "breaker", c.breaker.Name())
	}
}
