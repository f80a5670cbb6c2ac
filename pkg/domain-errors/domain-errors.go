package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in business logic terms, not HTTP terms.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	// Admission: the caller or account holds no valid credential.
	CodeNotVerified        Code = "not_verified"
	CodeSenderNotVerified  Code = "sender_not_verified"
	CodeAccountNotVerified Code = "account_not_verified"

	// Authorization beyond the generic owner check.
	CodeOnlyMailbox Code = "only_mailbox"
	CodeNotCreator  Code = "not_creator"

	// Cross-chain integrity.
	CodeInvalidOrigin        Code = "invalid_origin"
	CodeUntrustedSender      Code = "untrusted_sender"
	CodeMailboxNotConfigured Code = "mailbox_not_configured"

	// Airdrop state.
	CodeAirdropNotFound         Code = "airdrop_not_found"
	CodeAirdropExists           Code = "airdrop_exists"
	CodeAirdropAlreadyCancelled Code = "airdrop_already_cancelled"
	CodeAlreadyClaimed          Code = "already_claimed"

	// Input validation.
	CodeLengthMismatch    Code = "length_mismatch"
	CodeZeroAddress       Code = "zero_address"
	CodeEmptyMessage      Code = "empty_message"
	CodeTooManyRecipients Code = "too_many_recipients"
	CodeInsufficientValue Code = "insufficient_value"
	CodeTransferFailed    Code = "transfer_failed"

	CodeInvalidProof Code = "invalid_proof"
)

// Category groups codes the way callers are expected to react to them.
type Category string

const (
	CategoryAdmission     Category = "admission"
	CategoryAuthorization Category = "authorization"
	CategoryCrossChain    Category = "cross_chain"
	CategoryState         Category = "state"
	CategoryInput         Category = "input"
	CategoryProof         Category = "proof"
	CategoryTransient     Category = "transient"
	CategoryInternal      Category = "internal"
)

// CategoryOf classifies a code.
func CategoryOf(code Code) Category {
	switch code {
	case CodeNotVerified, CodeSenderNotVerified, CodeAccountNotVerified:
		return CategoryAdmission
	case CodeUnauthorized, CodeForbidden, CodeOnlyMailbox, CodeNotCreator:
		return CategoryAuthorization
	case CodeInvalidOrigin, CodeUntrustedSender, CodeMailboxNotConfigured:
		return CategoryCrossChain
	case CodeAirdropNotFound, CodeAirdropExists, CodeAirdropAlreadyCancelled, CodeAlreadyClaimed,
		CodeNotFound, CodeConflict, CodeInvariantViolation:
		return CategoryState
	case CodeBadRequest, CodeInvalidInput, CodeValidation, CodeLengthMismatch, CodeZeroAddress,
		CodeEmptyMessage, CodeTooManyRecipients, CodeInsufficientValue, CodeTransferFailed:
		return CategoryInput
	case CodeInvalidProof:
		return CategoryProof
	case CodeTimeout:
		return CategoryTransient
	default:
		return CategoryInternal
	}
}

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the domain code of err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsRetryable reports whether the caller may retry the same input later.
// Only transient failures qualify; admission and proof errors never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return CategoryOf(CodeOf(err)) == CategoryTransient
}
