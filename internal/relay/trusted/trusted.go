// Package trusted is the allow-list of remote registries whose relayed
// verifications a destination registry accepts. With enforcement off every
// sender is accepted (bootstrap mode).
package trusted

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"proofdrop/internal/events"
	"proofdrop/internal/platform/database"
	"proofdrop/internal/platform/metrics"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/access"
	"proofdrop/pkg/platform/sentinel"
	"proofdrop/pkg/requestcontext"
)

type Set struct {
	store          Store
	emitter        events.Emitter
	uow            database.Transactor
	owner          access.Guard
	defaultEnforce bool
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

type Option func(*Set)

// WithTransactor makes each allow-list change and its event one unit of work.
func WithTransactor(uow database.Transactor) Option {
	return func(s *Set) {
		s.uow = uow
	}
}

// New builds the set. defaultEnforce applies until the owner toggles
// enforcement for the first time.
func New(store Store, emitter events.Emitter, owner domain.Address, defaultEnforce bool, m *metrics.Metrics, logger *slog.Logger, opts ...Option) *Set {
	s := &Set{
		store:          store,
		emitter:        emitter,
		uow:            database.NewTransactor(nil),
		owner:          access.Owner(owner),
		defaultEnforce: defaultEnforce,
		metrics:        m,
		logger:         logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// apply emits event, then runs write, in one unit of work.
func (s *Set) apply(ctx context.Context, event events.Event, msg string, write func(ctx context.Context) error) error {
	return s.uow.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.emitter.Emit(ctx, event); err != nil {
			return err
		}
		if err := write(ctx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, msg)
		}
		return nil
	})
}

// Add allow-lists a raw 32-byte sender id. Adding twice is a no-op apart
// from the event.
func (s *Set) Add(ctx context.Context, caller domain.Address, sender domain.Bytes32) error {
	if err := s.owner.Require(caller); err != nil {
		return err
	}
	if sender.IsZero() {
		return dErrors.New(dErrors.CodeZeroAddress, "trusted sender must not be zero")
	}
	err := s.apply(ctx, events.New(events.TrustedSenderAdded, "sender", sender.Hex()), "failed to add trusted sender",
		func(ctx context.Context) error { return s.store.Add(ctx, sender) })
	if err != nil {
		return err
	}
	s.metrics.IncTrustedSenderChange("added")
	s.logger.InfoContext(ctx, "trusted sender added",
		"sender", sender.Hex(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// AddAddress allow-lists a remote registry by address.
func (s *Set) AddAddress(ctx context.Context, caller domain.Address, remote domain.Address) error {
	return s.Add(ctx, caller, domain.SenderIDFromAddress(remote))
}

// Remove is idempotent and always emits.
func (s *Set) Remove(ctx context.Context, caller domain.Address, sender domain.Bytes32) error {
	if err := s.owner.Require(caller); err != nil {
		return err
	}
	err := s.apply(ctx, events.New(events.TrustedSenderRemoved, "sender", sender.Hex()), "failed to remove trusted sender",
		func(ctx context.Context) error { return s.store.Remove(ctx, sender) })
	if err != nil {
		return err
	}
	s.metrics.IncTrustedSenderChange("removed")
	s.logger.InfoContext(ctx, "trusted sender removed",
		"sender", sender.Hex(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Set) RemoveAddress(ctx context.Context, caller domain.Address, remote domain.Address) error {
	return s.Remove(ctx, caller, domain.SenderIDFromAddress(remote))
}

func (s *Set) SetEnforcement(ctx context.Context, caller domain.Address, enforce bool) error {
	if err := s.owner.Require(caller); err != nil {
		return err
	}
	event := events.New(events.TrustedSenderEnforcementToggled, "enforce", strconv.FormatBool(enforce))
	err := s.apply(ctx, event, "failed to set enforcement",
		func(ctx context.Context) error { return s.store.SetEnforcement(ctx, enforce) })
	if err != nil {
		return err
	}
	s.metrics.IncTrustedSenderChange("enforcement")
	s.logger.InfoContext(ctx, "trusted sender enforcement toggled",
		"enforce", enforce,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Set) Enforced(ctx context.Context) (bool, error) {
	enforce, err := s.store.Enforcement(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return s.defaultEnforce, nil
		}
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read enforcement")
	}
	return enforce, nil
}

func (s *Set) IsTrusted(ctx context.Context, sender domain.Bytes32) (bool, error) {
	ok, err := s.store.Contains(ctx, sender)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read trusted senders")
	}
	return ok, nil
}

func (s *Set) IsTrustedAddress(ctx context.Context, remote domain.Address) (bool, error) {
	return s.IsTrusted(ctx, domain.SenderIDFromAddress(remote))
}

// Accepts is the receiver's admission check: open mode accepts anyone,
// enforcing mode only members.
func (s *Set) Accepts(ctx context.Context, sender domain.Bytes32) (bool, error) {
	enforce, err := s.Enforced(ctx)
	if err != nil {
		return false, err
	}
	if !enforce {
		return true, nil
	}
	return s.IsTrusted(ctx, sender)
}

func (s *Set) List(ctx context.Context) ([]domain.Bytes32, error) {
	out, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list trusted senders")
	}
	return out, nil
}
