// Package events records the protocol's observable events (Verified,
// Claimed, ...) in an append-only log and optionally fans them out to Kafka
// through the transactional outbox.
package events

import (
	"time"

	id "proofdrop/pkg/domain"
)

type Name string

const (
	Verified                        Name = "Verified"
	VerificationUpdated             Name = "VerificationUpdated"
	VerificationReceived            Name = "VerificationReceived"
	VerificationRelayed             Name = "VerificationRelayed"
	TrustedSenderAdded              Name = "TrustedSenderAdded"
	TrustedSenderRemoved            Name = "TrustedSenderRemoved"
	TrustedSenderEnforcementToggled Name = "TrustedSenderEnforcementToggled"
	MailboxUpdated                  Name = "MailboxUpdated"
	ScopeUpdated                    Name = "ScopeUpdated"
	ConfigIDUpdated                 Name = "ConfigIdUpdated"
	BatchSent                       Name = "BatchSent"
	AirdropCreated                  Name = "AirdropCreated"
	Claimed                         Name = "Claimed"
	AirdropCancelled                Name = "AirdropCancelled"
)

// Event is one log entry. Attributes carry the event's indexed and data
// fields as strings (addresses hex, amounts decimal, times RFC 3339).
type Event struct {
	ID         id.EventID        `json:"id"`
	Name       Name              `json:"name"`
	Timestamp  time.Time         `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
	RequestID  string            `json:"request_id,omitempty"`
}

// New builds an event from alternating key/value pairs. A trailing key
// without a value is dropped.
func New(name Name, kv ...string) Event {
	attrs := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs[kv[i]] = kv[i+1]
	}
	return Event{Name: name, Attributes: attrs}
}

func (e Event) Attr(key string) string {
	return e.Attributes[key]
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Name  Name
	Limit int
}
