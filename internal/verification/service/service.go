// Package service is the issuing-chain verification registry. The Hub calls
// Hook after validating an identity proof; everything downstream reads
// IsVerified.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"proofdrop/internal/events"
	"proofdrop/internal/platform/database"
	"proofdrop/internal/platform/metrics"
	"proofdrop/internal/platform/tracer"
	"proofdrop/internal/verification/models"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/access"
	"proofdrop/pkg/platform/sentinel"
	platformsync "proofdrop/pkg/platform/sync"
	"proofdrop/pkg/requestcontext"
	"proofdrop/pkg/validation"
)

// Store defines the persistence interface for verification records.
// Error Contract:
// - Get and GetScope return sentinel.ErrNotFound when nothing is stored
// - Put overwrites unconditionally
type Store interface {
	Get(ctx context.Context, account domain.Address) (*models.Record, error)
	Put(ctx context.Context, record *models.Record) error
	GetScope(ctx context.Context) (*models.ScopeConfig, error)
	PutScope(ctx context.Context, scope *models.ScopeConfig) error
}

// DefaultTTL is how long one successful Hub callback keeps an account verified.
const DefaultTTL = 30 * 24 * time.Hour

// Config carries the registry's identity and privileged callers.
type Config struct {
	// Address is this registry's own address; it salts the scope hash.
	Address   domain.Address
	Owner     domain.Address
	Hub       domain.Address
	ScopeSeed string
}

type Option func(*Registry)

func WithTTL(ttl time.Duration) Option {
	return func(r *Registry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(r *Registry) {
		r.tracer = t
	}
}

// WithTransactor makes each write and its event one unit of work.
func WithTransactor(uow database.Transactor) Option {
	return func(r *Registry) {
		r.uow = uow
	}
}

// Registry issues and reads credentials on the issuing chain.
type Registry struct {
	store   Store
	emitter events.Emitter
	uow     database.Transactor
	cfg     Config
	ttl     time.Duration
	locks   *platformsync.ShardedMutex
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	logger  *slog.Logger
}

func New(store Store, emitter events.Emitter, cfg Config, logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		store:   store,
		emitter: emitter,
		uow:     database.NewTransactor(nil),
		cfg:     cfg,
		ttl:     DefaultTTL,
		locks:   platformsync.NewShardedMutex(),
		tracer:  tracer.NewNoop(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Hook records a fresh credential for the account named in payload.
// Only the configured Hub may call it. The new expiry is now+TTL, kept
// monotonic against any later expiry already stored.
func (r *Registry) Hook(ctx context.Context, caller domain.Address, payload []byte) (*models.Record, error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanRegistryHook)
	var err error
	defer func() { span.End(err) }()

	if err = access.Hub(r.cfg.Hub).Require(caller); err != nil {
		return nil, err
	}
	if err = validation.CheckByteLength("payload", payload, validation.MaxHookPayloadLength); err != nil {
		return nil, err
	}
	var decoded *HookPayload
	if decoded, err = DecodeHookPayload(payload); err != nil {
		return nil, err
	}
	account := decoded.Account()
	if account.IsZero() {
		err = dErrors.New(dErrors.CodeZeroAddress, "user identifier resolves to the zero address")
		return nil, err
	}
	span.SetAttributes(tracer.Address(tracer.AttrAccount, account))

	now := requestcontext.Now(ctx)
	record := &models.Record{Account: account, ExpiresAt: now.Add(r.ttl), UpdatedAt: now}

	r.locks.Lock(account.Key())
	defer r.locks.Unlock(account.Key())

	var existing *models.Record
	if existing, err = r.find(ctx, account); err != nil {
		return nil, err
	}
	if existing != nil && existing.ExpiresAt.After(record.ExpiresAt) {
		record.ExpiresAt = existing.ExpiresAt
	}
	err = r.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.emitter.Emit(ctx, events.New(events.Verified,
			"account", account.Hex(),
			"expires_at", formatTime(record.ExpiresAt),
			"destination_chain_id", decoded.DestinationChainID.Hex(),
		)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit verification event")
		}
		if err := r.store.Put(ctx, record); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store verification")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.metrics.IncVerificationsRecorded()
	r.logger.InfoContext(ctx, "account verified",
		"account", account.Hex(),
		"expires_at", record.ExpiresAt,
		"destination_chain", decoded.DestinationChainID.Hex(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return record, nil
}

// Record returns the stored record, or nil when the account was never verified.
func (r *Registry) Record(ctx context.Context, account domain.Address) (*models.Record, error) {
	return r.find(ctx, account)
}

// IsVerified is true iff the stored expiry is strictly after now.
func (r *Registry) IsVerified(ctx context.Context, account domain.Address) (bool, error) {
	rec, err := r.find(ctx, account)
	if err != nil {
		return false, err
	}
	return rec.IsValidAt(requestcontext.Now(ctx)), nil
}

// ExpiresAt returns the zero time for accounts never verified.
func (r *Registry) ExpiresAt(ctx context.Context, account domain.Address) (time.Time, error) {
	rec, err := r.find(ctx, account)
	if err != nil || rec == nil {
		return time.Time{}, err
	}
	return rec.ExpiresAt, nil
}

func (r *Registry) find(ctx context.Context, account domain.Address) (*models.Record, error) {
	rec, err := r.store.Get(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read verification")
	}
	return rec, nil
}

// SetConfigID is owner-only.
func (r *Registry) SetConfigID(ctx context.Context, caller domain.Address, configID domain.Bytes32) error {
	return r.updateScope(ctx, caller, func(cfg *models.ScopeConfig) events.Event {
		cfg.ConfigID = configID
		return events.New(events.ConfigIDUpdated, "config_id", configID.Hex())
	})
}

// SetScope replaces the scope seed. Owner-only.
func (r *Registry) SetScope(ctx context.Context, caller domain.Address, seed string) error {
	if seed == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "scope seed must not be empty")
	}
	return r.updateScope(ctx, caller, func(cfg *models.ScopeConfig) events.Event {
		cfg.ScopeSeed = seed
		return events.New(events.ScopeUpdated, "scope_seed", seed, "scope", ScopeHash(seed, r.cfg.Address).Hex())
	})
}

func (r *Registry) updateScope(ctx context.Context, caller domain.Address, mutate func(*models.ScopeConfig) events.Event) error {
	if err := access.Owner(r.cfg.Owner).Require(caller); err != nil {
		return err
	}
	r.locks.Lock("")
	defer r.locks.Unlock("")

	cfg, err := r.ScopeConfig(ctx)
	if err != nil {
		return err
	}
	event := mutate(cfg)
	err = r.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.emitter.Emit(ctx, event); err != nil {
			return err
		}
		if err := r.store.PutScope(ctx, cfg); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store scope")
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "registry scope updated",
		"scope_seed", cfg.ScopeSeed,
		"config_id", cfg.ConfigID.Hex(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// ScopeConfig returns the stored configuration, falling back to the
// configured seed and a zero config id before the owner sets either.
func (r *Registry) ScopeConfig(ctx context.Context) (*models.ScopeConfig, error) {
	cfg, err := r.store.GetScope(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.ScopeConfig{ScopeSeed: r.cfg.ScopeSeed}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read scope")
	}
	return cfg, nil
}

// Scope is the hash binding the policy seed to this registry's address.
func (r *Registry) Scope(ctx context.Context) (domain.Bytes32, error) {
	cfg, err := r.ScopeConfig(ctx)
	if err != nil {
		return domain.Bytes32{}, err
	}
	return ScopeHash(cfg.ScopeSeed, r.cfg.Address), nil
}

// ScopeHash is keccak256(encodePacked(registry, seed)). Two deployments
// sharing a seed at different addresses get different scopes, so a proof
// bound to one cannot be replayed against the other.
func ScopeHash(seed string, registry domain.Address) domain.Bytes32 {
	return domain.Bytes32(crypto.Keccak256Hash(registry.Bytes(), []byte(seed)))
}

func formatTime(t time.Time) string {
	return time.Unix(t.Unix(), 0).UTC().Format(time.RFC3339)
}
