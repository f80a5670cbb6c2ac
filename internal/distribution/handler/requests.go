package handler

import (
	"strings"

	"proofdrop/internal/distribution/airdrop"
	"proofdrop/internal/merkle"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	strutil "proofdrop/pkg/string"
	"proofdrop/pkg/validation"
)

func addresses(values []string) []domain.Address {
	out := make([]domain.Address, len(values))
	for i, v := range values {
		out[i] = domain.MustAddress(v)
	}
	return out
}

func amounts(values []string) []domain.Amount {
	out := make([]domain.Amount, len(values))
	for i, v := range values {
		out[i] = domain.MustAmount(v)
	}
	return out
}

func hashes(values []string) []domain.Hash {
	out := make([]domain.Hash, len(values))
	for i, v := range values {
		out[i] = domain.MustBytes32(v)
	}
	return out
}

// BatchRequest carries both multisend shapes. Value is the native amount
// offered; Total is the token amount pulled through the allowance.
type BatchRequest struct {
	Token      string   `json:"token" validate:"omitempty,eth_addr"`
	Recipients []string `json:"recipients" validate:"dive,eth_addr"`
	Amounts    []string `json:"amounts" validate:"dive,uint256"`
	Value      string   `json:"value" validate:"omitempty,uint256"`
	Total      string   `json:"total" validate:"omitempty,uint256"`
}

func (r *BatchRequest) Normalize() {
	strutil.TrimStrings(&r.Token, &r.Value, &r.Total)
	strutil.TrimSlices(r.Recipients, r.Amounts)
}

func (r *BatchRequest) Validate() error {
	return validation.Validate(r)
}

func (r *BatchRequest) offered(token bool) domain.Amount {
	v := r.Value
	if token {
		v = r.Total
	}
	if v == "" {
		return domain.Amount{}
	}
	return domain.MustAmount(v)
}

type CreateAirdropRequest struct {
	ID         string `json:"id" validate:"required,bytes32"`
	MerkleRoot string `json:"merkle_root" validate:"required,bytes32"`
	Token      string `json:"token" validate:"omitempty,eth_addr"`
	Value      string `json:"value" validate:"omitempty,uint256"`
	Total      string `json:"total" validate:"omitempty,uint256"`
}

func (r *CreateAirdropRequest) Normalize() {
	strutil.TrimStrings(&r.ID, &r.MerkleRoot, &r.Token, &r.Value, &r.Total)
}

func (r *CreateAirdropRequest) Validate() error {
	return validation.Validate(r)
}

func (r *CreateAirdropRequest) id() domain.AirdropID {
	return domain.AirdropID(domain.MustBytes32(r.ID))
}

func (r *CreateAirdropRequest) root() domain.Hash {
	return domain.MustBytes32(r.MerkleRoot)
}

func (r *CreateAirdropRequest) amount(token bool) domain.Amount {
	v := r.Value
	if token {
		v = r.Total
	}
	if v == "" {
		return domain.Amount{}
	}
	return domain.MustAmount(v)
}

// ClaimRequest is one leaf and its proof. Account is only read by
// can-claim; a claim always pays the caller.
type ClaimRequest struct {
	Account string   `json:"account" validate:"omitempty,eth_addr"`
	Index   string   `json:"index" validate:"required,uint256"`
	Amount  string   `json:"amount" validate:"required,uint256"`
	Proof   []string `json:"proof" validate:"dive,bytes32"`
}

func (r *ClaimRequest) Normalize() {
	strutil.TrimStrings(&r.Account, &r.Index, &r.Amount)
	strutil.TrimSlices(r.Proof)
}

func (r *ClaimRequest) Validate() error {
	if err := validation.CheckSliceCount("proof", len(r.Proof), validation.MaxProofDepth); err != nil {
		return err
	}
	return validation.Validate(r)
}

type TreeEntry struct {
	Account string `json:"account" validate:"required,eth_addr"`
	Amount  string `json:"amount" validate:"required,uint256"`
}

// TreeRequest lists allocations; each entry's index is its position.
type TreeRequest struct {
	Entries []TreeEntry `json:"entries" validate:"required,min=1,dive"`
}

func (r *TreeRequest) Normalize() {
	for i := range r.Entries {
		strutil.TrimStrings(&r.Entries[i].Account, &r.Entries[i].Amount)
	}
}

func (r *TreeRequest) Validate() error {
	if err := validation.CheckSliceCount("entries", len(r.Entries), validation.MaxTreeEntries); err != nil {
		return err
	}
	return validation.Validate(r)
}

func (r *TreeRequest) entries() []merkle.Entry {
	out := make([]merkle.Entry, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = merkle.Entry{
			Index:   domain.NewAmount(uint64(i)),
			Account: domain.MustAddress(e.Account),
			Amount:  domain.MustAmount(e.Amount),
		}
	}
	return out
}

type ApproveRequest struct {
	Token   string `json:"token" validate:"required,eth_addr"`
	Spender string `json:"spender" validate:"required,eth_addr"`
	Amount  string `json:"amount" validate:"required,uint256"`
}

func (r *ApproveRequest) Normalize() {
	strutil.TrimStrings(&r.Token, &r.Spender, &r.Amount)
}

func (r *ApproveRequest) Validate() error {
	return validation.Validate(r)
}

// CreditRequest deposits into account. An empty asset is the native asset.
type CreditRequest struct {
	Asset   string `json:"asset" validate:"omitempty,eth_addr"`
	Account string `json:"account" validate:"required,eth_addr"`
	Amount  string `json:"amount" validate:"required,uint256"`
}

func (r *CreditRequest) Normalize() {
	strutil.TrimStrings(&r.Asset, &r.Account, &r.Amount)
}

func (r *CreditRequest) Validate() error {
	return validation.Validate(r)
}

// parseAsset maps "native" and the empty string to the native asset.
func parseAsset(s string) (domain.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "native") {
		return domain.NativeAsset, nil
	}
	addr, err := domain.ParseAddress(s)
	if err != nil {
		return domain.Address{}, dErrors.New(dErrors.CodeValidation, "asset must be \"native\" or a token address")
	}
	return addr, nil
}

type CanClaimResponse struct {
	CanClaim bool `json:"can_claim"`
}

type CancelResponse struct {
	Airdrop *airdrop.Airdrop `json:"airdrop"`
	Refund  domain.Amount    `json:"refund"`
}

type BalanceResponse struct {
	Asset   domain.Address `json:"asset"`
	Account domain.Address `json:"account"`
	Balance domain.Amount  `json:"balance"`
}

type AllowanceResponse struct {
	Token     domain.Address `json:"token"`
	Owner     domain.Address `json:"owner"`
	Spender   domain.Address `json:"spender"`
	Allowance domain.Amount  `json:"allowance"`
}
