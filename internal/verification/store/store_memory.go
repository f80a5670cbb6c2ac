package store

import (
	"context"
	"sync"

	"proofdrop/internal/verification/models"
	"proofdrop/pkg/domain"
	"proofdrop/pkg/platform/sentinel"
)

// Error Contract:
// - Get returns sentinel.ErrNotFound when the account has no record
// - Put overwrites unconditionally; the caller decides the write policy

// InMemoryStore keeps records and the scope configuration in maps.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[domain.Address]models.Record
	scope   *models.ScopeConfig
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[domain.Address]models.Record)}
}

func (s *InMemoryStore) Get(_ context.Context, account domain.Address) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[account]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &r, nil
}

func (s *InMemoryStore) Put(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Account] = *record
	return nil
}

func (s *InMemoryStore) GetScope(_ context.Context) (*models.ScopeConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.scope == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.scope
	return &cp, nil
}

func (s *InMemoryStore) PutScope(_ context.Context, scope *models.ScopeConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *scope
	s.scope = &cp
	return nil
}
