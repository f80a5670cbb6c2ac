package airdrop

import (
	"context"
	"sync"

	"proofdrop/pkg/domain"
	"proofdrop/pkg/platform/sentinel"
)

// Store persists airdrops and their claimed leaves.
// Error Contract:
// - Get returns sentinel.ErrNotFound for unknown ids
// - Create returns sentinel.ErrConflict when the id was ever used
// - RecordClaim returns sentinel.ErrConflict for an already claimed leaf
type Store interface {
	Create(ctx context.Context, a *Airdrop) error
	Get(ctx context.Context, id domain.AirdropID) (*Airdrop, error)
	Update(ctx context.Context, a *Airdrop) error
	IsClaimed(ctx context.Context, id domain.AirdropID, leaf domain.Hash) (bool, error)
	RecordClaim(ctx context.Context, c *Claim) error
	Claims(ctx context.Context, id domain.AirdropID) ([]Claim, error)
}

type claimKey struct {
	id   domain.AirdropID
	leaf domain.Hash
}

type InMemoryStore struct {
	mu       sync.RWMutex
	airdrops map[domain.AirdropID]Airdrop
	claimed  map[claimKey]Claim
	order    map[domain.AirdropID][]domain.Hash
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		airdrops: make(map[domain.AirdropID]Airdrop),
		claimed:  make(map[claimKey]Claim),
		order:    make(map[domain.AirdropID][]domain.Hash),
	}
}

func (s *InMemoryStore) Create(_ context.Context, a *Airdrop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.airdrops[a.ID]; ok {
		return sentinel.ErrConflict
	}
	s.airdrops[a.ID] = *a
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.AirdropID) (*Airdrop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.airdrops[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &a, nil
}

func (s *InMemoryStore) Update(_ context.Context, a *Airdrop) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.airdrops[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.airdrops[a.ID] = *a
	return nil
}

func (s *InMemoryStore) IsClaimed(_ context.Context, id domain.AirdropID, leaf domain.Hash) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.claimed[claimKey{id, leaf}]
	return ok, nil
}

func (s *InMemoryStore) RecordClaim(_ context.Context, c *Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := claimKey{c.AirdropID, c.Leaf}
	if _, ok := s.claimed[k]; ok {
		return sentinel.ErrConflict
	}
	s.claimed[k] = *c
	s.order[c.AirdropID] = append(s.order[c.AirdropID], c.Leaf)
	return nil
}

func (s *InMemoryStore) Claims(_ context.Context, id domain.AirdropID) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Claim, 0, len(s.order[id]))
	for _, leaf := range s.order[id] {
		out = append(out, s.claimed[claimKey{id, leaf}])
	}
	return out, nil
}
