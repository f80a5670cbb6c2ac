package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "proofdrop/pkg/domain-errors"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Retryable   bool   `json:"retryable"`
}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode failure can only truncate the body.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError centralizes domain error translation to HTTP responses.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if errors.As(err, &domainErr) {
		WriteJSON(w, DomainCodeToHTTPStatus(domainErr.Code), ErrorResponse{
			Error:       DomainCodeToHTTPCode(domainErr.Code),
			Description: domainErr.Message,
			Retryable:   dErrors.IsRetryable(err),
		})
		return
	}

	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: DomainCodeToHTTPCode(dErrors.CodeInternal),
	})
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeNotFound, dErrors.CodeAirdropNotFound:
		return http.StatusNotFound
	case dErrors.CodeBadRequest, dErrors.CodeValidation, dErrors.CodeInvalidInput,
		dErrors.CodeLengthMismatch, dErrors.CodeZeroAddress, dErrors.CodeEmptyMessage,
		dErrors.CodeTooManyRecipients, dErrors.CodeInsufficientValue:
		return http.StatusBadRequest
	case dErrors.CodeInvalidProof, dErrors.CodeTransferFailed:
		return http.StatusUnprocessableEntity
	case dErrors.CodeConflict, dErrors.CodeAirdropExists, dErrors.CodeAirdropAlreadyCancelled,
		dErrors.CodeAlreadyClaimed, dErrors.CodeInvariantViolation:
		return http.StatusConflict
	case dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden, dErrors.CodeOnlyMailbox, dErrors.CodeNotCreator,
		dErrors.CodeInvalidOrigin, dErrors.CodeUntrustedSender:
		return http.StatusForbidden
	case dErrors.CodeNotVerified, dErrors.CodeSenderNotVerified, dErrors.CodeAccountNotVerified:
		return http.StatusPreconditionFailed
	case dErrors.CodeMailboxNotConfigured:
		return http.StatusServiceUnavailable
	case dErrors.CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DomainCodeToHTTPCode translates domain error codes to the JSON "error" field.
// Protocol-specific codes pass through unchanged.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	switch code {
	case dErrors.CodeNotFound:
		return "not_found"
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return "bad_request"
	case dErrors.CodeValidation:
		return "validation_error"
	case dErrors.CodeInvariantViolation:
		return "invariant_violation"
	case dErrors.CodeConflict:
		return "conflict"
	case dErrors.CodeUnauthorized:
		return "unauthorized"
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeTimeout:
		return "timeout"
	case "", dErrors.CodeInternal:
		return "internal_error"
	default:
		if dErrors.CategoryOf(code) == dErrors.CategoryInternal {
			return "internal_error"
		}
		return string(code)
	}
}
