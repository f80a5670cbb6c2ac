package mailbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"proofdrop/internal/platform/database"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/requestcontext"
)

// Local delivers envelopes in-process on a goroutine per dispatch, to the
// Recipient registered for the destination domain. Nothing orders two
// deliveries, matching the contract of a real transport. Delivery starts
// once the dispatching unit of work commits. Envelopes are retained so
// tests can force a redelivery.
type Local struct {
	origin  domain.Domain
	mailbox domain.Address
	nonces  NonceStore
	clock   func() time.Time
	logger  *slog.Logger

	mu         sync.RWMutex
	recipients map[domain.Domain]Recipient
	sent       map[domain.MessageID]*Envelope
	failures   map[domain.MessageID]error
	wg         sync.WaitGroup
}

type LocalOption func(*Local)

// WithDeliveryClock pins the "now" a delivery is evaluated at.
func WithDeliveryClock(clock func() time.Time) LocalOption {
	return func(l *Local) {
		l.clock = clock
	}
}

// NewLocal delivers as mailbox: the address recipients see as the caller.
func NewLocal(origin domain.Domain, mailbox domain.Address, nonces NonceStore, logger *slog.Logger, opts ...LocalOption) *Local {
	l := &Local{
		origin:     origin,
		mailbox:    mailbox,
		nonces:     nonces,
		clock:      time.Now,
		logger:     logger,
		recipients: make(map[domain.Domain]Recipient),
		sent:       make(map[domain.MessageID]*Envelope),
		failures:   make(map[domain.MessageID]error),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Register routes envelopes for d to r.
func (l *Local) Register(d domain.Domain, r Recipient) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recipients[d] = r
}

func (l *Local) Dispatch(ctx context.Context, msg Outgoing) (*Envelope, error) {
	nonce, err := l.nonces.Next(ctx, l.origin)
	if err != nil {
		return nil, err
	}
	env := newEnvelope(nonce, l.origin, msg, requestcontext.Now(ctx))

	l.logger.InfoContext(ctx, "envelope dispatched",
		"message_id", env.ID.Hex(),
		"nonce", env.Nonce,
		"destination", env.DestinationDomain,
		"transport", "local",
		"request_id", requestcontext.RequestID(ctx),
	)
	database.AfterCommit(ctx, func() {
		l.mu.Lock()
		l.sent[env.ID] = env
		l.mu.Unlock()
		l.deliverAsync(env)
	})
	return env, nil
}

func (l *Local) Count(ctx context.Context) (uint64, error) {
	return l.nonces.Count(ctx, l.origin)
}

// Redeliver hands a previously dispatched envelope to its recipient again.
func (l *Local) Redeliver(id domain.MessageID) error {
	l.mu.RLock()
	env, ok := l.sent[id]
	l.mu.RUnlock()
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "unknown message id")
	}
	l.deliverAsync(env)
	return nil
}

// Wait blocks until every in-flight delivery has returned.
func (l *Local) Wait() {
	l.wg.Wait()
}

// Failure returns the error of the most recent delivery of id, if it failed.
func (l *Local) Failure(id domain.MessageID) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.failures[id]
}

func (l *Local) deliverAsync(env *Envelope) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.deliver(env)
	}()
}

func (l *Local) deliver(env *Envelope) {
	l.mu.RLock()
	recipient, ok := l.recipients[env.DestinationDomain]
	l.mu.RUnlock()

	ctx := requestcontext.WithTime(context.Background(), l.clock())
	var err error
	if !ok {
		err = dErrors.New(dErrors.CodeNotFound, "no recipient for domain "+env.DestinationDomain.String())
	} else {
		err = recipient.HandleEnvelope(ctx, l.mailbox, env)
	}

	l.mu.Lock()
	if err != nil {
		l.failures[env.ID] = err
	} else {
		delete(l.failures, env.ID)
	}
	l.mu.Unlock()

	if err != nil {
		l.logger.WarnContext(ctx, "local delivery failed",
			"message_id", env.ID.Hex(),
			"destination", env.DestinationDomain,
			"error", err,
		)
	}
}
