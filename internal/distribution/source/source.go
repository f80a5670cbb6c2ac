// Package source picks which registry gates distribution: the local one
// fed by the Hub, or the cross-chain receiver fed by relays.
package source

import (
	"context"
	"fmt"
	"time"

	"proofdrop/pkg/domain"
)

// VerificationSource answers whether an account currently holds a credential.
type VerificationSource interface {
	IsVerified(ctx context.Context, account domain.Address) (bool, error)
	// ExpiresAt is the zero time for accounts never verified.
	ExpiresAt(ctx context.Context, account domain.Address) (time.Time, error)
}

const (
	KindLocal      = "local"
	KindCrossChain = "crosschain"
)

// Select returns the source named by kind.
func Select(kind string, local, crosschain VerificationSource) (VerificationSource, error) {
	switch kind {
	case KindLocal, "":
		if local == nil {
			return nil, fmt.Errorf("verification source %q is not configured", KindLocal)
		}
		return local, nil
	case KindCrossChain:
		if crosschain == nil {
			return nil, fmt.Errorf("verification source %q is not configured", KindCrossChain)
		}
		return crosschain, nil
	default:
		return nil, fmt.Errorf("unknown verification source %q", kind)
	}
}
