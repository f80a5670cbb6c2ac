package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"proofdrop/pkg/domain"
	"proofdrop/pkg/platform/outbox"
	"proofdrop/pkg/requestcontext"
)

// Dispatcher sends an envelope towards its destination domain. Returning
// means accepted for delivery, never delivered.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Outgoing) (*Envelope, error)
	// Count is the number of envelopes dispatched from this origin.
	Count(ctx context.Context) (uint64, error)
}

// Recipient is the destination-side entrypoint. caller is the mailbox
// address the delivery arrives from.
type Recipient interface {
	HandleEnvelope(ctx context.Context, caller domain.Address, env *Envelope) error
}

// TopicFunc names the Kafka topic for a destination domain.
type TopicFunc func(destination domain.Domain) string

// OutboxDispatcher appends envelopes to the transactional outbox. The
// envelope is committed with the caller's other writes and published by the
// outbox worker afterwards.
type OutboxDispatcher struct {
	origin domain.Domain
	nonces NonceStore
	outbox outbox.Store
	topic  TopicFunc
	logger *slog.Logger
}

func NewOutboxDispatcher(origin domain.Domain, nonces NonceStore, store outbox.Store, topic TopicFunc, logger *slog.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{origin: origin, nonces: nonces, outbox: store, topic: topic, logger: logger}
}

func (d *OutboxDispatcher) Dispatch(ctx context.Context, msg Outgoing) (*Envelope, error) {
	nonce, err := d.nonces.Next(ctx, d.origin)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	env := newEnvelope(nonce, d.origin, msg, now)

	payload, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	entry := outbox.NewEntry(d.topic(env.DestinationDomain), "envelope", env.ID.Hex(), "Dispatch", payload, now)
	if err := d.outbox.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("append envelope to outbox: %w", err)
	}
	d.logger.InfoContext(ctx, "envelope dispatched",
		"message_id", env.ID.Hex(),
		"nonce", env.Nonce,
		"destination", env.DestinationDomain,
		"transport", "kafka",
		"request_id", requestcontext.RequestID(ctx),
	)
	return env, nil
}

func (d *OutboxDispatcher) Count(ctx context.Context) (uint64, error) {
	return d.nonces.Count(ctx, d.origin)
}
