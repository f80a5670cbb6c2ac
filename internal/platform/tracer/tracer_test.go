package tracer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"proofdrop/internal/platform/tracer"
	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
	"proofdrop/pkg/testutil"
)

type recordedSpan struct {
	noop.Span
	name   string
	attrs  map[attribute.Key]attribute.Value
	events []string
	status codes.Code
	errs   []error
	ended  bool
}

func (s *recordedSpan) SetAttributes(kv ...attribute.KeyValue) {
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func (s *recordedSpan) AddEvent(name string, _ ...trace.EventOption) {
	s.events = append(s.events, name)
}

func (s *recordedSpan) SetStatus(code codes.Code, _ string) { s.status = code }

func (s *recordedSpan) RecordError(err error, _ ...trace.EventOption) {
	s.errs = append(s.errs, err)
}

func (s *recordedSpan) End(...trace.SpanEndOption) { s.ended = true }

type recordingTracer struct {
	noop.Tracer
	spans []*recordedSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	span := &recordedSpan{name: name, attrs: map[attribute.Key]attribute.Value{}}
	cfg := trace.NewSpanStartConfig(opts...)
	span.SetAttributes(cfg.Attributes()...)
	t.spans = append(t.spans, span)
	return ctx, span
}

func TestNoopTracer_Start(t *testing.T) {
	tr := tracer.NewNoop()
	ctx := context.Background()

	newCtx, span := tr.Start(ctx, tracer.SpanAirdropClaim,
		tracer.String(tracer.AttrAccount, "0xabc"),
		tracer.Bool(tracer.AttrDuplicate, false),
	)

	assert.Equal(t, ctx, newCtx)
	require.NotNil(t, span)

	span.SetAttributes(tracer.Int(tracer.AttrRecipients, 3))
	span.AddEvent("ledger.transfer", tracer.Int64("amount", 42))
	span.End(errors.New("reverted"))
}

func TestOTelTracer_WithInjectedTracer(t *testing.T) {
	tr := tracer.NewOTel(tracer.WithOTelTracer(noop.NewTracerProvider().Tracer("test")))

	ctx, span := tr.Start(context.Background(), tracer.SpanRelayReceive, tracer.String(tracer.AttrOrigin, "10"))
	require.NotNil(t, ctx)
	span.SetAttributes(tracer.Duration("elapsed", 150*time.Millisecond))
	span.End(nil)
}

func TestAttributeConstructors(t *testing.T) {
	assert.Equal(t, tracer.Attribute{Key: "k", Value: "v"}, tracer.String("k", "v"))
	assert.Equal(t, tracer.Attribute{Key: "n", Value: int64(7)}, tracer.Int("n", 7))
	assert.Equal(t, tracer.Attribute{Key: "d", Value: int64(150)}, tracer.Duration("d", 150*time.Millisecond))
}

func newRecording(opts ...tracer.OTelOption) (*recordingTracer, *tracer.OTelTracer) {
	rec := &recordingTracer{}
	return rec, tracer.NewOTel(append([]tracer.OTelOption{tracer.WithOTelTracer(rec)}, opts...)...)
}

func TestOTelTracer_TagsSpansWithDeployment(t *testing.T) {
	rec, tr := newRecording(tracer.WithChainDomain(domain.Domain(10)), tracer.WithEnvironment("staging"))

	_, span := tr.Start(context.Background(), tracer.SpanRelaySend,
		tracer.Address(tracer.AttrAccount, testutil.Accounts.Alice),
		tracer.ChainDomain(tracer.AttrDomain, domain.Domain(20)),
		tracer.Amount(tracer.AttrAmount, domain.NewAmount(42)),
	)
	span.End(nil)

	require.Len(t, rec.spans, 1)
	got := rec.spans[0]
	assert.Equal(t, tracer.SpanRelaySend, got.name)
	assert.Equal(t, int64(10), got.attrs[tracer.AttrChainDomain].AsInt64())
	assert.Equal(t, "staging", got.attrs[tracer.AttrEnvironment].AsString())
	assert.Equal(t, testutil.Accounts.Alice.Hex(), got.attrs[tracer.AttrAccount].AsString())
	assert.Equal(t, int64(20), got.attrs[tracer.AttrDomain].AsInt64())
	assert.Equal(t, "42", got.attrs[tracer.AttrAmount].AsString())
	assert.Equal(t, codes.Unset, got.status)
	assert.True(t, got.ended)
}

func TestOTelTracer_EmptyEnvironmentIsOmitted(t *testing.T) {
	rec, tr := newRecording(tracer.WithEnvironment(""))

	_, span := tr.Start(context.Background(), tracer.SpanAirdropClaim)
	span.End(nil)

	_, ok := rec.spans[0].attrs[tracer.AttrEnvironment]
	assert.False(t, ok)
}

func TestOTelTracer_EndClassifiesErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     string
		category string
		status   codes.Code
		recorded int
		events   []string
	}{
		{
			name:     "rejection leaves status unset",
			err:      dErrors.New(dErrors.CodeNotVerified, "caller is not verified"),
			code:     string(dErrors.CodeNotVerified),
			category: string(dErrors.CategoryAdmission),
			status:   codes.Unset,
			events:   []string{"rejected"},
		},
		{
			name:     "timeout marks the span errored",
			err:      dErrors.New(dErrors.CodeTimeout, "relay confirmation timed out"),
			code:     string(dErrors.CodeTimeout),
			category: string(dErrors.CategoryTransient),
			status:   codes.Error,
			recorded: 1,
		},
		{
			name:     "foreign error is internal",
			err:      errors.New("connection reset"),
			code:     string(dErrors.CodeInternal),
			category: string(dErrors.CategoryInternal),
			status:   codes.Error,
			recorded: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, tr := newRecording()

			_, span := tr.Start(context.Background(), tracer.SpanAirdropClaim)
			span.End(tt.err)

			got := rec.spans[0]
			assert.Equal(t, tt.code, got.attrs[tracer.AttrErrorCode].AsString())
			assert.Equal(t, tt.category, got.attrs[tracer.AttrErrorCategory].AsString())
			assert.Equal(t, tt.status, got.status)
			assert.Len(t, got.errs, tt.recorded)
			assert.Equal(t, tt.events, got.events)
		})
	}
}
