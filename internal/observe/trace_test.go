package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs an in-memory tracer provider as the global for the
// duration of the test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs points the default logger at a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestCallID_RoundTrip(t *testing.T) {
	t.Parallel()

	if got := CallID(context.Background()); got != "" {
		t.Errorf("CallID(background) = %q, want empty", got)
	}
	ctx := WithCallID(context.Background(), "c-17")
	if got := CallID(ctx); got != "c-17" {
		t.Errorf("CallID = %q, want c-17", got)
	}
}

func TestCorrelationID_NoSpan(t *testing.T) {
	t.Parallel()

	if got := CorrelationID(WithCallID(context.Background(), "c-1")); got != "" {
		t.Errorf("CorrelationID without span = %q, want empty", got)
	}
}

func TestStartCallSpan_AttributesAndContext(t *testing.T) {
	exp := useTracer(t)

	ctx, span := StartCallSpan(context.Background(), CallAttrs{
		ID:       "call-42",
		Language: "marathi",
		Service:  "crop",
		Record:   true,
	})
	if CallID(ctx) != "call-42" {
		t.Errorf("CallID(span ctx) = %q, want call-42", CallID(ctx))
	}
	if cid := CorrelationID(ctx); len(cid) != 32 {
		t.Errorf("correlation ID %q, want 32 hex chars", cid)
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "call.session" {
		t.Errorf("span name = %q, want call.session", spans[0].Name)
	}
	want := map[string]string{
		"call.id":       "call-42",
		"call.language": "marathi",
		"call.service":  "crop",
		"call.record":   "true",
	}
	for _, kv := range spans[0].Attributes {
		if w, ok := want[string(kv.Key)]; ok {
			if got := kv.Value.Emit(); got != w {
				t.Errorf("%s = %q, want %q", kv.Key, got, w)
			}
			delete(want, string(kv.Key))
		}
	}
	for k := range want {
		t.Errorf("span missing attribute %s", k)
	}
}

func TestStartSpan_ChildSharesTrace(t *testing.T) {
	exp := useTracer(t)

	ctx, root := StartCallSpan(context.Background(), CallAttrs{ID: "c-2"})
	_, child := StartSpan(ctx, "live.connect")
	child.End()
	root.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if spans[0].SpanContext.TraceID() != spans[1].SpanContext.TraceID() {
		t.Error("child span started a new trace")
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("child span is not parented to the call span")
	}
}

func TestLogger_CallAndTrace(t *testing.T) {
	useTracer(t)
	buf := captureLogs(t)

	ctx, span := StartCallSpan(context.Background(), CallAttrs{ID: "call-9"})
	defer span.End()
	Logger(ctx).Info("connected")

	out := buf.String()
	for _, want := range []string{"call_id=call-9", "trace_id=", "span_id="} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestLogger_Bare(t *testing.T) {
	buf := captureLogs(t)

	Logger(context.Background()).Info("idle")

	out := buf.String()
	if strings.Contains(out, "trace_id") || strings.Contains(out, "call_id") {
		t.Errorf("bare context produced annotations: %s", out)
	}
}

func TestCallLogger_NoSpan(t *testing.T) {
	buf := captureLogs(t)

	CallLogger(context.Background(), "call-3").Warn("call failed")

	out := buf.String()
	if !strings.Contains(out, "call_id=call-3") {
		t.Errorf("log line missing call_id: %s", out)
	}
	if strings.Contains(out, "trace_id") {
		t.Errorf("unexpected trace_id without a span: %s", out)
	}
}
