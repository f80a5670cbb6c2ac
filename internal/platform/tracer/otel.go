package tracer

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
)

// OTelTracer adapts an OpenTelemetry tracer to Tracer. Every span it starts
// carries the deployment's chain domain, so spans of one relay can be
// followed from the origin deployment to the destination.
type OTelTracer struct {
	tracer trace.Tracer
	common []attribute.KeyValue
}

type OTelOption func(*OTelTracer)

// WithOTelTracer injects a configured tracer (tests use an in-memory provider).
func WithOTelTracer(t trace.Tracer) OTelOption {
	return func(o *OTelTracer) {
		o.tracer = t
	}
}

func WithChainDomain(d domain.Domain) OTelOption {
	return func(o *OTelTracer) {
		o.common = append(o.common, attribute.Int64(AttrChainDomain, int64(d)))
	}
}

func WithEnvironment(env string) OTelOption {
	return func(o *OTelTracer) {
		if env != "" {
			o.common = append(o.common, attribute.String(AttrEnvironment, env))
		}
	}
}

// NewOTel defaults to the global provider under the "proofdrop" instrumentation name.
func NewOTel(opts ...OTelOption) *OTelTracer {
	t := &OTelTracer{}
	for _, opt := range opts {
		opt(t)
	}
	if t.tracer == nil {
		t.tracer = otel.Tracer("proofdrop")
	}
	return t
}

func (t *OTelTracer) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	kv := make([]attribute.KeyValue, 0, len(t.common)+len(attrs))
	kv = append(kv, t.common...)
	kv = append(kv, toOTelAttributes(attrs)...)
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(kv...))
	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

// End tags a failed call with its domain error code. Rejections such as an
// unverified caller or a spent leaf are expected outcomes and leave the
// status unset; only internal and transient failures mark the span as
// errored.
func (s *otelSpan) End(err error) {
	if err != nil {
		code := dErrors.CodeOf(err)
		category := dErrors.CategoryOf(code)
		s.span.SetAttributes(
			attribute.String(AttrErrorCode, string(code)),
			attribute.String(AttrErrorCategory, string(category)),
		)
		switch category {
		case dErrors.CategoryInternal, dErrors.CategoryTransient:
			s.span.RecordError(err)
			s.span.SetStatus(codes.Error, err.Error())
		default:
			s.span.AddEvent("rejected", trace.WithAttributes(attribute.String(AttrErrorCode, string(code))))
		}
	}
	s.span.End()
}

func (s *otelSpan) SetAttributes(attrs ...Attribute) {
	s.span.SetAttributes(toOTelAttributes(attrs)...)
}

func (s *otelSpan) AddEvent(name string, attrs ...Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(toOTelAttributes(attrs)...))
}

func toOTelAttributes(attrs []Attribute) []attribute.KeyValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, a := range attrs {
		switch v := a.Value.(type) {
		case string:
			out = append(out, attribute.String(a.Key, v))
		case bool:
			out = append(out, attribute.Bool(a.Key, v))
		case int64:
			out = append(out, attribute.Int64(a.Key, v))
		case domain.Address:
			out = append(out, attribute.String(a.Key, v.Hex()))
		case domain.Domain:
			out = append(out, attribute.Int64(a.Key, int64(v)))
		case domain.Amount:
			out = append(out, attribute.String(a.Key, v.String()))
		}
	}
	return out
}

var (
	_ Tracer = (*OTelTracer)(nil)
	_ Span   = (*otelSpan)(nil)
)
