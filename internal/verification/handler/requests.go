package handler

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/validation"
)

// HookRequest carries the Hub's ABI-encoded payload as 0x-hex.
type HookRequest struct {
	Payload string `json:"payload" validate:"required,hexadecimal"`

	decoded []byte
}

func (r *HookRequest) Normalize() {
	r.Payload = strings.TrimSpace(r.Payload)
}

func (r *HookRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	raw, err := hexutil.Decode(r.Payload)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "payload must be 0x-prefixed hex")
	}
	if err := validation.CheckByteLength("payload", raw, validation.MaxHookPayloadLength); err != nil {
		return err
	}
	r.decoded = raw
	return nil
}

type SetConfigIDRequest struct {
	ConfigID string `json:"config_id" validate:"required,bytes32"`
}

func (r *SetConfigIDRequest) Normalize() {
	r.ConfigID = strings.TrimSpace(r.ConfigID)
}

func (r *SetConfigIDRequest) Validate() error {
	return validation.Validate(r)
}

func (r *SetConfigIDRequest) value() domain.Bytes32 {
	return domain.MustBytes32(r.ConfigID)
}

type SetScopeRequest struct {
	ScopeSeed string `json:"scope_seed" validate:"required,notblank,max=256"`
}

func (r *SetScopeRequest) Normalize() {
	r.ScopeSeed = strings.TrimSpace(r.ScopeSeed)
}

func (r *SetScopeRequest) Validate() error {
	return validation.Validate(r)
}

type ScopeResponse struct {
	Scope     domain.Bytes32 `json:"scope"`
	ScopeSeed string         `json:"scope_seed"`
	ConfigID  domain.Bytes32 `json:"config_id"`
}

type HookResponse struct {
	Account   domain.Address `json:"account"`
	ExpiresAt int64          `json:"expires_at"`
}
