package validation

import (
	"fmt"

	dErrors "proofdrop/pkg/domain-errors"
)

// MaxBodySize bounds every JSON request body (256 KB, enough for a full
// recipient batch or a large /merkle/tree request).
const MaxBodySize = 256 * 1024

const (
	// MaxProofDepth allows trees of up to 2^64 leaves.
	MaxProofDepth = 64

	// MaxTreeEntries caps the /merkle/tree helper.
	MaxTreeEntries = 10_000

	// MaxMessageLength caps an inbound relay message body.
	MaxMessageLength = 4096

	// MaxHookPayloadLength caps the Hub hook payload.
	MaxHookPayloadLength = 8192

	// MaxEventPage caps GET /events.
	MaxEventPage = 500
)

// CheckSliceCount validates that a slice does not exceed the maximum count.
func CheckSliceCount(fieldName string, count, max int) error {
	if count > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("too many %s: max %d allowed", fieldName, max))
	}
	return nil
}

// CheckByteLength validates that a decoded payload does not exceed max bytes.
func CheckByteLength(fieldName string, value []byte, max int) error {
	if len(value) > max {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s exceeds max length of %d bytes", fieldName, max))
	}
	return nil
}
