package handler

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"proofdrop/internal/verification/models"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/validation"
)

// parseSenderID accepts a 20-byte address (left-padded) or a raw bytes32 id.
func parseSenderID(s string) (domain.Bytes32, error) {
	s = strings.TrimSpace(s)
	if len(s) == 42 {
		addr, err := domain.ParseAddress(s)
		if err != nil {
			return domain.Bytes32{}, err
		}
		return domain.SenderIDFromAddress(addr), nil
	}
	id, err := domain.ParseBytes32(s)
	if err != nil {
		return domain.Bytes32{}, dErrors.New(dErrors.CodeValidation, "sender must be an address or a 32-byte hex id")
	}
	return id, nil
}

type TrustedSenderRequest struct {
	Sender string `json:"sender" validate:"required"`

	id domain.Bytes32
}

func (r *TrustedSenderRequest) Normalize() {
	r.Sender = strings.TrimSpace(r.Sender)
}

func (r *TrustedSenderRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	id, err := parseSenderID(r.Sender)
	if err != nil {
		return err
	}
	r.id = id
	return nil
}

type EnforcementRequest struct {
	Enforce *bool `json:"enforce" validate:"required"`
}

func (r *EnforcementRequest) Validate() error {
	return validation.Validate(r)
}

type MailboxRequest struct {
	Mailbox string `json:"mailbox" validate:"required,eth_addr"`
}

func (r *MailboxRequest) Normalize() {
	r.Mailbox = strings.TrimSpace(r.Mailbox)
}

func (r *MailboxRequest) Validate() error {
	return validation.Validate(r)
}

func (r *MailboxRequest) address() domain.Address {
	return domain.MustAddress(r.Mailbox)
}

type RelayRequest struct {
	DestinationDomain uint32 `json:"destination_domain" validate:"required"`
	Recipient         string `json:"recipient" validate:"required"`
	Account           string `json:"account" validate:"required,eth_addr"`
	Fee               string `json:"fee" validate:"omitempty,uint256"`

	recipient domain.Bytes32
}

func (r *RelayRequest) Normalize() {
	r.Recipient = strings.TrimSpace(r.Recipient)
	r.Account = strings.TrimSpace(r.Account)
	r.Fee = strings.TrimSpace(r.Fee)
}

func (r *RelayRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	id, err := parseSenderID(r.Recipient)
	if err != nil {
		return err
	}
	r.recipient = id
	return nil
}

func (r *RelayRequest) fee() domain.Amount {
	if r.Fee == "" {
		return domain.Amount{}
	}
	return domain.MustAmount(r.Fee)
}

type HandleRequest struct {
	OriginDomain uint32 `json:"origin_domain"`
	Sender       string `json:"sender" validate:"required"`
	Message      string `json:"message"`

	sender  domain.Bytes32
	message []byte
}

func (r *HandleRequest) Normalize() {
	r.Sender = strings.TrimSpace(r.Sender)
	r.Message = strings.TrimSpace(r.Message)
}

func (r *HandleRequest) Validate() error {
	if err := validation.Validate(r); err != nil {
		return err
	}
	sender, err := parseSenderID(r.Sender)
	if err != nil {
		return err
	}
	r.sender = sender
	if r.Message == "" || r.Message == "0x" {
		return nil
	}
	raw, err := hexutil.Decode(r.Message)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "message must be 0x-prefixed hex")
	}
	if err := validation.CheckByteLength("message", raw, validation.MaxMessageLength); err != nil {
		return err
	}
	r.message = raw
	return nil
}

type AwaitRequest struct {
	Account string `json:"account" validate:"required,eth_addr"`
	// After is a unix timestamp; zero means the request time.
	After int64 `json:"after" validate:"gte=0"`
}

func (r *AwaitRequest) Normalize() {
	r.Account = strings.TrimSpace(r.Account)
}

func (r *AwaitRequest) Validate() error {
	return validation.Validate(r)
}

type TrustedSenderResponse struct {
	Sender   domain.Bytes32 `json:"sender"`
	Trusted  bool           `json:"trusted"`
	Enforced bool           `json:"enforced"`
}

type TrustedSendersResponse struct {
	Senders  []domain.Bytes32 `json:"senders"`
	Enforced bool             `json:"enforced"`
}

type MailboxResponse struct {
	Mailbox domain.Address `json:"mailbox"`
}

type AwaitResponse struct {
	Account   domain.Address `json:"account"`
	ExpiresAt int64          `json:"expires_at"`
	Attempts  int            `json:"attempts"`
}

func statusOf(account domain.Address, expiresAt, now time.Time) models.Status {
	var rec *models.Record
	if !expiresAt.IsZero() {
		rec = &models.Record{Account: account, ExpiresAt: expiresAt}
	}
	return models.NewStatus(account, rec, now)
}
