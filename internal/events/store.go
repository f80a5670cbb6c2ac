package events

import "context"

// Store persists events. Append joins the transaction carried by ctx when the
// backend supports one.
type Store interface {
	Append(ctx context.Context, event Event) error
	// List returns matching events newest first.
	List(ctx context.Context, filter Filter) ([]Event, error)
}
