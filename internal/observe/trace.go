package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/pranimitra"

type callIDKey struct{}

// Tracer returns the pranimitra tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CallAttrs describes a call on its root span.
type CallAttrs struct {
	ID       string
	Language string
	Service  string
	Record   bool
}

// StartCallSpan starts the root span of a call and binds the call ID to the
// returned context, so [Logger] and spans started below it carry the call.
func StartCallSpan(ctx context.Context, a CallAttrs) (context.Context, trace.Span) {
	ctx = WithCallID(ctx, a.ID)
	return StartSpan(ctx, "call.session",
		trace.WithAttributes(
			attribute.String("call.id", a.ID),
			attribute.String("call.language", a.Language),
			attribute.String("call.service", a.Service),
			attribute.Bool("call.record", a.Record),
		),
	)
}

// WithCallID returns a copy of ctx carrying callID.
func WithCallID(ctx context.Context, callID string) context.Context {
	return context.WithValue(ctx, callIDKey{}, callID)
}

// CallID returns the call ID bound to ctx, or "".
func CallID(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}

// CorrelationID returns the trace ID of the span in ctx, or "" when there
// is no valid span.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger annotated with whatever ctx knows:
// trace_id and span_id from an active span, call_id from [WithCallID].
func Logger(ctx context.Context) *slog.Logger {
	var attrs []any
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		attrs = append(attrs,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := CallID(ctx); id != "" {
		attrs = append(attrs, slog.String("call_id", id))
	}
	if len(attrs) == 0 {
		return slog.Default()
	}
	return slog.Default().With(attrs...)
}

// CallLogger is [Logger] for a context that may not carry the call yet.
func CallLogger(ctx context.Context, callID string) *slog.Logger {
	return Logger(WithCallID(ctx, callID))
}
