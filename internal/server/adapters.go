package server

import (
	"context"

	"proofdrop/internal/verification/models"
	"proofdrop/internal/verification/store"
	"proofdrop/pkg/domain"
)

// scopeStore is the singleton scope row, which the record cache does not
// cover.
type scopeStore interface {
	GetScope(ctx context.Context) (*models.ScopeConfig, error)
	PutScope(ctx context.Context, scope *models.ScopeConfig) error
}

// cachedRegistryStore adapts a CachedStore to the registry's Store: records
// go through the cache, the scope straight to the primary.
type cachedRegistryStore struct {
	records *store.CachedStore
	scopes  scopeStore
}

func (s *cachedRegistryStore) Get(ctx context.Context, account domain.Address) (*models.Record, error) {
	return s.records.Get(ctx, account)
}

func (s *cachedRegistryStore) Put(ctx context.Context, record *models.Record) error {
	return s.records.Put(ctx, record)
}

func (s *cachedRegistryStore) GetScope(ctx context.Context) (*models.ScopeConfig, error) {
	return s.scopes.GetScope(ctx)
}

func (s *cachedRegistryStore) PutScope(ctx context.Context, scope *models.ScopeConfig) error {
	return s.scopes.PutScope(ctx, scope)
}
