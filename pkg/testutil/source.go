package testutil

import (
	"context"
	"sync"
	"time"

	"proofdrop/pkg/domain"
	"proofdrop/pkg/requestcontext"
)

// VerifiedAccounts is an in-memory verification source for service tests.
type VerifiedAccounts struct {
	mu      sync.RWMutex
	expires map[domain.Address]time.Time
}

// NewVerifiedAccounts marks each account verified until FixedNow plus 30 days.
func NewVerifiedAccounts(accounts ...domain.Address) *VerifiedAccounts {
	v := &VerifiedAccounts{expires: make(map[domain.Address]time.Time)}
	for _, a := range accounts {
		v.Set(a, FixedNow.Add(30*24*time.Hour))
	}
	return v
}

func (v *VerifiedAccounts) Set(account domain.Address, expiresAt time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expires[account] = expiresAt
}

func (v *VerifiedAccounts) IsVerified(ctx context.Context, account domain.Address) (bool, error) {
	exp, _ := v.ExpiresAt(ctx, account)
	return exp.After(requestcontext.Now(ctx)), nil
}

func (v *VerifiedAccounts) ExpiresAt(_ context.Context, account domain.Address) (time.Time, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.expires[account], nil
}
