// Package tracer is a small tracing abstraction so services can emit spans
// without importing OpenTelemetry directly.
//
// Implementations:
//   - NoopTracer: tests and deployments without a collector
//   - OTelTracer: OpenTelemetry adapter
package tracer

import (
	"context"
	"time"

	"proofdrop/pkg/domain"
)

// Span is an active trace span. End must be called exactly once.
type Span interface {
	End(err error)
	SetAttributes(attrs ...Attribute)
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int(key string, value int) Attribute {
	return Attribute{Key: key, Value: int64(value)}
}

func Address(key string, value domain.Address) Attribute {
	return Attribute{Key: key, Value: value}
}

func Amount(key string, value domain.Amount) Attribute {
	return Attribute{Key: key, Value: value}
}

func ChainDomain(key string, value domain.Domain) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration records value in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanRegistryHook    = "verification.hook"
	SpanRelaySend       = "relay.send"
	SpanRelayReceive    = "relay.receive"
	SpanRelayAwait      = "relay.await"
	SpanMultiSendNative = "multisend.native"
	SpanMultiSendToken  = "multisend.token"
	SpanAirdropCreate   = "airdrop.create"
	SpanAirdropClaim    = "airdrop.claim"
	SpanAirdropCancel   = "airdrop.cancel"
)

// Attribute keys.
const (
	AttrAccount    = "account"
	AttrAsset      = "asset"
	AttrAirdropID  = "airdrop.id"
	AttrMessageID  = "message.id"
	AttrOrigin     = "message.origin"
	AttrDomain     = "message.destination"
	AttrRecipients = "recipients"
	AttrCacheHit   = "cache.hit"
	AttrDuplicate  = "message.duplicate"
	AttrAttempts   = "attempts"
	AttrAmount     = "amount"

	AttrChainDomain   = "chain.domain"
	AttrEnvironment   = "deployment.environment"
	AttrErrorCode     = "error.code"
	AttrErrorCategory = "error.category"
)
