package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	id "proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/platform/outbox"
	"proofdrop/pkg/requestcontext"
	"proofdrop/pkg/validation"
)

// Emitter is what services depend on.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Publisher is the append-only event sink. In sync mode (the default) Emit
// writes the store and the outbox with the caller's ctx. Services emit from
// inside their unit of work, so on Postgres the event commits or rolls back
// with the state change it describes. The async buffer persists outside
// that transaction and is only suitable when events are informational.
type Publisher struct {
	store  Store
	outbox outbox.Store
	topic  string
	logger *slog.Logger

	events chan Event
	wg     sync.WaitGroup
	async  bool
}

type Option func(*Publisher)

// WithAsyncBuffer persists events from a background goroutine.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan Event, size)
			p.async = true
		}
	}
}

// WithOutbox additionally appends every event to the outbox for topic.
func WithOutbox(store outbox.Store, topic string) Option {
	return func(p *Publisher) {
		p.outbox = store
		p.topic = topic
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.processEvents()
	}
	return p
}

func (p *Publisher) processEvents() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.persist(context.Background(), event); err != nil {
			p.logger.Error("failed to persist event", "error", err, "event", event.Name, "event_id", event.ID)
		}
	}
}

// Close drains the async buffer.
func (p *Publisher) Close() {
	if p.async && p.events != nil {
		close(p.events)
		p.wg.Wait()
	}
}

// Emit stamps the event with an id, the request time and the request id,
// logs it, then persists it.
func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	args := make([]any, 0, 2*len(event.Attributes)+4)
	args = append(args, "event", string(event.Name), "log_type", "event")
	for k, v := range event.Attributes {
		args = append(args, k, v)
	}
	p.logger.InfoContext(ctx, string(event.Name), args...)

	if p.async {
		select {
		case p.events <- event:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
			p.logger.Warn("event buffer full, event dropped", "event", event.Name)
			return dErrors.New(dErrors.CodeInternal, "event buffer full")
		}
	}
	return p.persist(ctx, event)
}

func (p *Publisher) persist(ctx context.Context, event Event) error {
	if err := p.store.Append(ctx, event); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if p.outbox == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	entry := outbox.NewEntry(p.topic, "event", event.ID.String(), string(event.Name), payload, event.Timestamp)
	if err := p.outbox.Append(ctx, entry); err != nil {
		return fmt.Errorf("append event to outbox: %w", err)
	}
	return nil
}

// List reads the log, clamping the limit to the page maximum.
func (p *Publisher) List(ctx context.Context, filter Filter) ([]Event, error) {
	if filter.Limit <= 0 || filter.Limit > validation.MaxEventPage {
		filter.Limit = validation.MaxEventPage
	}
	return p.store.List(ctx, filter)
}
