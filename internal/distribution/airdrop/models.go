package airdrop

import (
	"time"

	"proofdrop/pkg/domain"
)

// Airdrop is one escrowed pool. Records are never deleted; a cancelled id
// stays taken.
type Airdrop struct {
	ID            domain.AirdropID `json:"id"`
	MerkleRoot    domain.Hash      `json:"merkle_root"`
	Token         domain.Address   `json:"token"`
	TotalAmount   domain.Amount    `json:"total_amount"`
	ClaimedAmount domain.Amount    `json:"claimed_amount"`
	Creator       domain.Address   `json:"creator"`
	Cancelled     bool             `json:"cancelled"`
	CreatedAt     time.Time        `json:"created_at"`
	CancelledAt   *time.Time       `json:"cancelled_at,omitempty"`
}

func (a *Airdrop) IsNative() bool {
	return a.Token == domain.NativeAsset
}

// Remaining is what a cancellation would refund.
func (a *Airdrop) Remaining() domain.Amount {
	rest, err := a.TotalAmount.Sub(a.ClaimedAmount)
	if err != nil {
		return domain.Amount{}
	}
	return rest
}

// Claim is one spent leaf.
type Claim struct {
	AirdropID domain.AirdropID `json:"airdrop_id"`
	Leaf      domain.Hash      `json:"leaf"`
	Index     domain.Amount    `json:"index"`
	Account   domain.Address   `json:"account"`
	Amount    domain.Amount    `json:"amount"`
	ClaimedAt time.Time        `json:"claimed_at"`
}
