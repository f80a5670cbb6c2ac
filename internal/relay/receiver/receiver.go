// Package receiver is the destination-side registry. It accepts relayed
// credentials from the mailbox, from one configured origin domain, and
// (when enforcement is on) only from allow-listed remote registries.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"proofdrop/internal/events"
	"proofdrop/internal/platform/database"
	"proofdrop/internal/platform/metrics"
	"proofdrop/internal/platform/tracer"
	"proofdrop/internal/relay/mailbox"
	"proofdrop/internal/verification/models"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/access"
	"proofdrop/pkg/platform/sentinel"
	platformsync "proofdrop/pkg/platform/sync"
	"proofdrop/pkg/requestcontext"
)

// WritePolicy decides how an incoming expiry combines with the stored one.
type WritePolicy string

const (
	// WritePolicyMax keeps the later of the stored and incoming expiry, so a
	// late-arriving older message never shortens a credential.
	WritePolicyMax WritePolicy = "max"
	// WritePolicyOverwrite stores whatever arrived last.
	WritePolicyOverwrite WritePolicy = "overwrite"
)

func ParseWritePolicy(s string) (WritePolicy, error) {
	switch WritePolicy(s) {
	case WritePolicyMax, "":
		return WritePolicyMax, nil
	case WritePolicyOverwrite:
		return WritePolicyOverwrite, nil
	default:
		return "", fmt.Errorf("unknown write policy %q", s)
	}
}

// RecordStore holds the relayed records.
type RecordStore interface {
	Get(ctx context.Context, account domain.Address) (*models.Record, error)
	Put(ctx context.Context, record *models.Record) error
}

// Admission is the trusted-sender check.
type Admission interface {
	Accepts(ctx context.Context, sender domain.Bytes32) (bool, error)
}

type Config struct {
	Owner domain.Address
	// Mailbox is used until the owner sets one.
	Mailbox      domain.Address
	SourceDomain domain.Domain
	WritePolicy  WritePolicy
}

type Option func(*Receiver)

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Receiver) {
		r.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(r *Receiver) {
		r.tracer = t
	}
}

// WithTransactor runs each delivery's writes and events as one unit of work.
func WithTransactor(uow database.Transactor) Option {
	return func(r *Receiver) {
		r.uow = uow
	}
}

type Receiver struct {
	records    RecordStore
	deliveries DeliveryStore
	settings   SettingsStore
	admission  Admission
	emitter    events.Emitter
	uow        database.Transactor
	cfg        Config
	owner      access.Guard
	locks      *platformsync.ShardedMutex
	metrics    *metrics.Metrics
	tracer     tracer.Tracer
	logger     *slog.Logger
}

func New(records RecordStore, deliveries DeliveryStore, settings SettingsStore, admission Admission, emitter events.Emitter, cfg Config, logger *slog.Logger, opts ...Option) *Receiver {
	if cfg.WritePolicy == "" {
		cfg.WritePolicy = WritePolicyMax
	}
	r := &Receiver{
		records:    records,
		deliveries: deliveries,
		settings:   settings,
		admission:  admission,
		emitter:    emitter,
		uow:        database.NewTransactor(nil),
		cfg:        cfg,
		owner:      access.Owner(cfg.Owner),
		locks:      platformsync.NewShardedMutex(),
		tracer:     tracer.NewNoop(),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Received is the outcome of one accepted delivery.
type Received struct {
	Account   domain.Address `json:"account"`
	ExpiresAt time.Time      `json:"expires_at"`
	// Stored is the expiry after the write policy was applied.
	Stored    time.Time `json:"stored_expires_at"`
	Duplicate bool      `json:"duplicate"`
}

// Handle is the raw mailbox entrypoint. Every call that passes the checks
// writes the record and emits both events.
func (r *Receiver) Handle(ctx context.Context, caller domain.Address, origin domain.Domain, sender domain.Bytes32, message []byte) (*Received, error) {
	return r.receive(ctx, caller, origin, sender, message, nil)
}

// HandleEnvelope is Handle for a mailbox envelope. Redelivery of the same
// message id re-applies the write but does not emit events again.
func (r *Receiver) HandleEnvelope(ctx context.Context, caller domain.Address, env *mailbox.Envelope) error {
	_, err := r.receive(ctx, caller, env.OriginDomain, env.Sender, env.Body, &env.ID)
	return err
}

func (r *Receiver) receive(ctx context.Context, caller domain.Address, origin domain.Domain, sender domain.Bytes32, message []byte, id *domain.MessageID) (*Received, error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanRelayReceive, tracer.ChainDomain(tracer.AttrOrigin, origin))
	var err error
	defer func() { span.End(err) }()

	var mb domain.Address
	if mb, err = r.Mailbox(ctx); err != nil {
		return nil, err
	}
	if err = access.Mailbox(mb).Require(caller); err != nil {
		r.metrics.IncMessagesReceived("rejected")
		return nil, err
	}
	if origin != r.cfg.SourceDomain {
		r.metrics.IncMessagesReceived("rejected")
		err = dErrors.New(dErrors.CodeInvalidOrigin, "unexpected origin domain "+origin.String())
		return nil, err
	}
	var accepted bool
	if accepted, err = r.admission.Accepts(ctx, sender); err != nil {
		return nil, err
	}
	if !accepted {
		r.metrics.IncMessagesReceived("rejected")
		err = dErrors.New(dErrors.CodeUntrustedSender, "sender is not trusted")
		return nil, err
	}
	var (
		account   domain.Address
		expiresAt time.Time
	)
	if account, expiresAt, err = mailbox.DecodeVerification(message); err != nil {
		r.metrics.IncMessagesReceived("rejected")
		return nil, err
	}
	span.SetAttributes(tracer.Address(tracer.AttrAccount, account))

	r.locks.Lock(account.Key())
	defer r.locks.Unlock(account.Key())

	stored := expiresAt
	if r.cfg.WritePolicy == WritePolicyMax {
		var existing *models.Record
		if existing, err = r.find(ctx, account); err != nil {
			return nil, err
		}
		if existing != nil && existing.ExpiresAt.After(stored) {
			stored = existing.ExpiresAt
		}
	}
	out := &Received{Account: account, ExpiresAt: expiresAt, Stored: stored}
	err = r.uow.RunInTx(ctx, func(ctx context.Context) error {
		if id != nil {
			first, err := r.deliveries.MarkDelivered(ctx, *id, origin, account)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record delivery")
			}
			out.Duplicate = !first
		}
		if !out.Duplicate {
			if err := r.emitReceived(ctx, out, origin, sender); err != nil {
				return err
			}
		}
		if err := r.records.Put(ctx, &models.Record{Account: account, ExpiresAt: stored, UpdatedAt: requestcontext.Now(ctx)}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store relayed verification")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if id != nil {
		span.SetAttributes(tracer.String(tracer.AttrMessageID, id.Hex()), tracer.Bool(tracer.AttrDuplicate, out.Duplicate))
	}
	if out.Duplicate {
		r.metrics.IncMessagesReceived("duplicate")
		r.logger.InfoContext(ctx, "duplicate delivery re-applied",
			"account", account.Hex(),
			"message_id", id.Hex(),
		)
		return out, nil
	}

	r.metrics.IncMessagesReceived("accepted")
	r.logger.InfoContext(ctx, "relayed verification received",
		"account", account.Hex(),
		"expires_at", expiresAt,
		"stored_expires_at", stored,
		"origin", origin,
		"sender", sender.Hex(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return out, nil
}

func (r *Receiver) emitReceived(ctx context.Context, out *Received, origin domain.Domain, sender domain.Bytes32) error {
	if err := r.emitter.Emit(ctx, events.New(events.VerificationUpdated,
		"account", out.Account.Hex(),
		"expires_at", out.Stored.UTC().Format(time.RFC3339),
	)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit verification event")
	}
	if err := r.emitter.Emit(ctx, events.New(events.VerificationReceived,
		"account", out.Account.Hex(),
		"expires_at", out.ExpiresAt.UTC().Format(time.RFC3339),
		"origin_domain", origin.String(),
		"sender", sender.Hex(),
	)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to emit verification event")
	}
	return nil
}

func (r *Receiver) IsVerified(ctx context.Context, account domain.Address) (bool, error) {
	rec, err := r.find(ctx, account)
	if err != nil {
		return false, err
	}
	return rec.IsValidAt(requestcontext.Now(ctx)), nil
}

func (r *Receiver) ExpiresAt(ctx context.Context, account domain.Address) (time.Time, error) {
	rec, err := r.find(ctx, account)
	if err != nil || rec == nil {
		return time.Time{}, err
	}
	return rec.ExpiresAt, nil
}

func (r *Receiver) find(ctx context.Context, account domain.Address) (*models.Record, error) {
	rec, err := r.records.Get(ctx, account)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read relayed verification")
	}
	return rec, nil
}

// Mailbox is the address deliveries must come from.
func (r *Receiver) Mailbox(ctx context.Context) (domain.Address, error) {
	mb, err := r.settings.Mailbox(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return r.cfg.Mailbox, nil
		}
		return domain.Address{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read mailbox")
	}
	return mb, nil
}

// SetMailbox is owner-only.
func (r *Receiver) SetMailbox(ctx context.Context, caller, mb domain.Address) error {
	if err := r.owner.Require(caller); err != nil {
		return err
	}
	if mb.IsZero() {
		return dErrors.New(dErrors.CodeZeroAddress, "mailbox must not be zero")
	}
	err := r.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := r.emitter.Emit(ctx, events.New(events.MailboxUpdated, "mailbox", mb.Hex())); err != nil {
			return err
		}
		if err := r.settings.SetMailbox(ctx, mb); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set mailbox")
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "receiver mailbox updated",
		"mailbox", mb.Hex(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}
