// Package mailbox is the cross-chain transport seam: an at-least-once,
// unordered, asynchronous channel of envelopes between domains. Two
// dispatchers exist: Local (in-process goroutine delivery) and Outbox
// (transactional outbox published to Kafka, consumed by Inbound).
package mailbox

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"proofdrop/pkg/domain"
)

// Envelope is one dispatched message.
type Envelope struct {
	ID                domain.MessageID `json:"id"`
	Nonce             uint64           `json:"nonce"`
	OriginDomain      domain.Domain    `json:"origin_domain"`
	DestinationDomain domain.Domain    `json:"destination_domain"`
	Sender            domain.Bytes32   `json:"sender"`
	Recipient         domain.Bytes32   `json:"recipient"`
	Body              hexutil.Bytes    `json:"body"`
	Fee               domain.Amount    `json:"fee"`
	DispatchedAt      time.Time        `json:"dispatched_at"`
}

// Outgoing is what a sender hands the dispatcher; the dispatcher assigns
// nonce, origin and id.
type Outgoing struct {
	DestinationDomain domain.Domain
	Sender            domain.Bytes32
	Recipient         domain.Bytes32
	Body              []byte
	Fee               domain.Amount
}

// Packed is nonce(8) ‖ origin(4) ‖ sender(32) ‖ destination(4) ‖ recipient(32) ‖ body.
func (e *Envelope) Packed() []byte {
	buf := make([]byte, 0, 8+4+32+4+32+len(e.Body))
	buf = binary.BigEndian.AppendUint64(buf, e.Nonce)
	buf = binary.BigEndian.AppendUint32(buf, uint32(e.OriginDomain))
	buf = append(buf, e.Sender.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(e.DestinationDomain))
	buf = append(buf, e.Recipient.Bytes()...)
	buf = append(buf, e.Body...)
	return buf
}

// ComputeID is keccak256 over the packed message; the fee is not part of it.
func (e *Envelope) ComputeID() domain.MessageID {
	return domain.MessageID(crypto.Keccak256Hash(e.Packed()))
}

// Seal assigns the id.
func (e *Envelope) Seal() *Envelope {
	e.ID = e.ComputeID()
	return e
}

func newEnvelope(nonce uint64, origin domain.Domain, msg Outgoing, now time.Time) *Envelope {
	body := make([]byte, len(msg.Body))
	copy(body, msg.Body)
	env := &Envelope{
		Nonce:             nonce,
		OriginDomain:      origin,
		DestinationDomain: msg.DestinationDomain,
		Sender:            msg.Sender,
		Recipient:         msg.Recipient,
		Body:              body,
		Fee:               msg.Fee,
		DispatchedAt:      now,
	}
	return env.Seal()
}
