// Package domain provides the chain-level primitives (addresses, 32-byte ids,
// 256-bit amounts) and type-safe service identifiers shared by every module.
package domain

import (
	"github.com/google/uuid"

	dErrors "proofdrop/pkg/domain-errors"
)

// EventID is a distinct type so an event id cannot be passed where a raw
// uuid from another table is expected.
type EventID uuid.UUID

func NewEventID() EventID { return EventID(uuid.New()) }

func ParseEventID(s string) (EventID, error) {
	id, err := parseUUID(s, "event ID")
	return EventID(id), err
}

func (id EventID) String() string { return uuid.UUID(id).String() }
func (id EventID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id EventID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *EventID) UnmarshalText(text []byte) error {
	parsed, err := ParseEventID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
