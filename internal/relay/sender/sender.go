// Package sender relays a locally held credential to a registry on another
// domain. Anyone may relay anyone's credential; only validity is checked.
package sender

import (
	"context"
	"log/slog"
	"time"

	"proofdrop/internal/distribution/ledger"
	"proofdrop/internal/distribution/source"
	"proofdrop/internal/events"
	"proofdrop/internal/platform/metrics"
	"proofdrop/internal/platform/tracer"
	"proofdrop/internal/relay/mailbox"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/requestcontext"
)

// Relayed describes one accepted relay. Accepted is not delivered.
type Relayed struct {
	MessageID         domain.MessageID `json:"message_id"`
	Nonce             uint64           `json:"nonce"`
	Account           domain.Address   `json:"account"`
	DestinationDomain domain.Domain    `json:"destination_domain"`
	Recipient         domain.Bytes32   `json:"recipient"`
	ExpiresAt         time.Time        `json:"expires_at"`
	Fee               domain.Amount    `json:"fee"`
}

type Config struct {
	// Registry is the local registry address; receivers see it as the sender.
	Registry domain.Address
	// FeeSink is the ledger account relay fees are paid into.
	FeeSink domain.Address
}

type Option func(*Sender)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sender) {
		s.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Sender) {
		s.tracer = t
	}
}

type Sender struct {
	local      source.VerificationSource
	dispatcher mailbox.Dispatcher
	ledger     ledger.Ledger
	emitter    events.Emitter
	cfg        Config
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	logger     *slog.Logger
}

// New builds a sender. A nil dispatcher is allowed; every relay then fails
// with CodeMailboxNotConfigured.
func New(local source.VerificationSource, dispatcher mailbox.Dispatcher, l ledger.Ledger, emitter events.Emitter, cfg Config, logger *slog.Logger, opts ...Option) *Sender {
	s := &Sender{
		local:      local,
		dispatcher: dispatcher,
		ledger:     l,
		emitter:    emitter,
		cfg:        cfg,
		tracer:     tracer.NewNoop(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RelayVerificationTo sends account's current expiry to recipient on
// destination, paying fee from caller's native balance.
func (s *Sender) RelayVerificationTo(ctx context.Context, caller domain.Address, destination domain.Domain, recipient domain.Bytes32, account domain.Address, fee domain.Amount) (*Relayed, error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRelaySend,
		tracer.Address(tracer.AttrAccount, account),
		tracer.ChainDomain(tracer.AttrDomain, destination),
	)
	var err error
	defer func() { span.End(err) }()

	if s.dispatcher == nil {
		err = dErrors.New(dErrors.CodeMailboxNotConfigured, "mailbox not configured")
		return nil, err
	}
	if recipient.IsZero() {
		err = dErrors.New(dErrors.CodeZeroAddress, "recipient must not be zero")
		return nil, err
	}

	var verified bool
	if verified, err = s.local.IsVerified(ctx, account); err != nil {
		return nil, err
	}
	if !verified {
		err = dErrors.New(dErrors.CodeAccountNotVerified, "account is not verified")
		return nil, err
	}
	var expiresAt time.Time
	if expiresAt, err = s.local.ExpiresAt(ctx, account); err != nil {
		return nil, err
	}
	var body []byte
	if body, err = mailbox.EncodeVerification(account, expiresAt); err != nil {
		return nil, err
	}

	var env *mailbox.Envelope
	err = s.ledger.RunInTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		if err := tx.Transfer(ctx, domain.NativeAsset, caller, s.cfg.FeeSink, fee); err != nil {
			return err
		}
		var err error
		env, err = s.dispatcher.Dispatch(ctx, mailbox.Outgoing{
			DestinationDomain: destination,
			Sender:            domain.SenderIDFromAddress(s.cfg.Registry),
			Recipient:         recipient,
			Body:              body,
			Fee:               fee,
		})
		if err != nil {
			return err
		}
		if err := s.emitter.Emit(ctx, events.New(events.VerificationRelayed,
			"account", account.Hex(),
			"destination_domain", destination.String(),
			"recipient", recipient.Hex(),
			"expires_at", expiresAt.UTC().Format(time.RFC3339),
			"message_id", env.ID.Hex(),
		)); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit relay event")
		}
		return nil
	})
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "failed to dispatch relay")
		return nil, err
	}
	span.SetAttributes(tracer.String(tracer.AttrMessageID, env.ID.Hex()))

	s.metrics.IncRelaysSent()
	s.logger.InfoContext(ctx, "verification relayed",
		"account", account.Hex(),
		"destination", destination,
		"recipient", recipient.Hex(),
		"message_id", env.ID.Hex(),
		"caller", caller.Hex(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &Relayed{
		MessageID:         env.ID,
		Nonce:             env.Nonce,
		Account:           account,
		DestinationDomain: destination,
		Recipient:         recipient,
		ExpiresAt:         expiresAt,
		Fee:               fee,
	}, nil
}

// Count is the number of envelopes dispatched so far.
func (s *Sender) Count(ctx context.Context) (uint64, error) {
	if s.dispatcher == nil {
		return 0, dErrors.New(dErrors.CodeMailboxNotConfigured, "mailbox not configured")
	}
	return s.dispatcher.Count(ctx)
}
