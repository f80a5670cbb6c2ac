// Package confirm waits for a relayed credential to land on the destination
// registry. Delivery is asynchronous, so the only signal is the destination
// expiry moving past a reference time.
package confirm

import (
	"context"
	"log/slog"
	"time"

	"proofdrop/internal/distribution/source"
	"proofdrop/internal/platform/metrics"
	"proofdrop/internal/platform/tracer"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
)

const (
	DefaultInterval = 2 * time.Second
	DefaultAttempts = 30
)

type Poller struct {
	interval time.Duration
	attempts int
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	logger   *slog.Logger
}

type Option func(*Poller)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(p *Poller) {
		p.tracer = t
	}
}

// New falls back to the defaults for non-positive interval or attempts.
func New(interval time.Duration, attempts int, logger *slog.Logger, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	p := &Poller{interval: interval, attempts: attempts, tracer: tracer.NewNoop(), logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result reports what the destination held when the wait ended.
type Result struct {
	ExpiresAt time.Time `json:"expires_at"`
	Attempts  int       `json:"attempts"`
}

// Await polls src until account's expiry is strictly after after. Running
// out of attempts is a retryable CodeTimeout, not a failure of the relay.
func (p *Poller) Await(ctx context.Context, src source.VerificationSource, account domain.Address, after time.Time) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, tracer.SpanRelayAwait, tracer.Address(tracer.AttrAccount, account))
	var err error
	defer func() { span.End(err) }()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		var exp time.Time
		if exp, err = src.ExpiresAt(ctx, account); err != nil {
			return nil, err
		}
		if exp.After(after) {
			p.metrics.ObserveRelayAwaitAttempts(attempt)
			span.SetAttributes(tracer.Int(tracer.AttrAttempts, attempt))
			return &Result{ExpiresAt: exp, Attempts: attempt}, nil
		}
		if attempt >= p.attempts {
			p.metrics.ObserveRelayAwaitAttempts(attempt)
			p.logger.WarnContext(ctx, "relay not confirmed",
				"account", account.Hex(),
				"attempts", attempt,
			)
			err = dErrors.New(dErrors.CodeTimeout, "verification not yet delivered; try again later")
			return nil, err
		}
		select {
		case <-ctx.Done():
			err = dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "wait for delivery cancelled")
			return nil, err
		case <-ticker.C:
		}
	}
}
