// Package requestcontext holds the request-scoped values every layer reads:
// the request id, the captured "now", and the authenticated caller.
package requestcontext

import (
	"context"
	"time"

	"proofdrop/pkg/domain"
)

type (
	requestIDKey struct{}
	nowKey       struct{}
	callerKey    struct{}
	userAgentKey struct{}
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns "" outside an HTTP request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// WithTime pins "now" for everything downstream: one request, one clock reading.
// Workers and tests use it to evaluate expiry at a chosen instant.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, nowKey{}, t)
}

// Now returns the pinned time, or the wall clock when none was pinned.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(nowKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

func WithCaller(ctx context.Context, caller domain.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Caller returns the authenticated account and whether one was set.
func Caller(ctx context.Context) (domain.Address, bool) {
	a, ok := ctx.Value(callerKey{}).(domain.Address)
	return a, ok
}

func WithUserAgent(ctx context.Context, family string) context.Context {
	return context.WithValue(ctx, userAgentKey{}, family)
}

func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey{}).(string)
	return ua
}
