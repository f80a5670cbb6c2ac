// Package models holds the verification credential types shared by the local
// registry and the cross-chain receiver.
package models

import (
	"time"

	"proofdrop/pkg/domain"
)

// Record is one account's credential. A zero ExpiresAt means the account was
// never verified.
type Record struct {
	Account   domain.Address
	ExpiresAt time.Time
	UpdatedAt time.Time
}

// IsValidAt reports whether the credential admits the account at now.
// There is no grace period: the instant of expiry is already invalid.
func (r *Record) IsValidAt(now time.Time) bool {
	if r == nil || r.ExpiresAt.IsZero() {
		return false
	}
	return r.ExpiresAt.After(now)
}

// ScopeConfig identifies the verification policy a registry enforces.
type ScopeConfig struct {
	ScopeSeed string
	ConfigID  domain.Bytes32
}

// Status is the read surface for one account.
type Status struct {
	Account   domain.Address `json:"account"`
	Verified  bool           `json:"verified"`
	ExpiresAt int64          `json:"expires_at"`
}

// NewStatus renders r at now. A nil record reports never-verified.
func NewStatus(account domain.Address, r *Record, now time.Time) Status {
	st := Status{Account: account}
	if r != nil && !r.ExpiresAt.IsZero() {
		st.ExpiresAt = r.ExpiresAt.Unix()
		st.Verified = r.IsValidAt(now)
	}
	return st
}
