// Package observe provides application-wide observability primitives for
// Pranimitra: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Pranimitra metrics.
const meterName = "github.com/MrWong99/pranimitra"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Capture path ---

	// FramesSent counts capture frames handed to the live session.
	FramesSent metric.Int64Counter

	// FramesDropped counts capture frames the live session refused. Use with
	// attribute: attribute.String("reason", ...)
	FramesDropped metric.Int64Counter

	// --- Playback path ---

	// BuffersScheduled counts assistant audio buffers scheduled on the
	// output clock.
	BuffersScheduled metric.Int64Counter

	// PlaybackGaps counts buffers that arrived after the previous one had
	// finished playing, leaving an audible gap.
	PlaybackGaps metric.Int64Counter

	// DecodeErrors counts inbound audio payloads that could not be decoded.
	DecodeErrors metric.Int64Counter

	// --- Transcript ---

	// TranscriptEntries counts finalized transcript entries. Use with
	// attribute: attribute.String("speaker", ...)
	TranscriptEntries metric.Int64Counter

	// --- Call lifecycle ---

	// ActiveCalls tracks the number of live calls.
	ActiveCalls metric.Int64UpDownCounter

	// CallDuration tracks how long calls stay active.
	CallDuration metric.Float64Histogram

	// SessionOpenLatency tracks the time from connect to the live session's
	// open event. Use with attribute: attribute.String("provider", ...)
	SessionOpenLatency metric.Float64Histogram

	// CallErrors counts failed calls. Use with attribute:
	//   attribute.String("kind", ...)
	CallErrors metric.Int64Counter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.String("status_class", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// session setup latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10,
}

// callBuckets defines histogram bucket boundaries (in seconds) for call
// lengths.
var callBuckets = []float64{
	5, 15, 30, 60, 120, 300, 600, 1800,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Counters.
	if met.FramesSent, err = m.Int64Counter("pranimitra.audio.frames_sent",
		metric.WithDescription("Capture frames handed to the live session."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("pranimitra.audio.frames_dropped",
		metric.WithDescription("Capture frames dropped by reason."),
	); err != nil {
		return nil, err
	}
	if met.BuffersScheduled, err = m.Int64Counter("pranimitra.playback.buffers_scheduled",
		metric.WithDescription("Assistant audio buffers scheduled for playback."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackGaps, err = m.Int64Counter("pranimitra.playback.gaps",
		metric.WithDescription("Assistant audio buffers that arrived after playback had drained."),
	); err != nil {
		return nil, err
	}
	if met.DecodeErrors, err = m.Int64Counter("pranimitra.audio.decode_errors",
		metric.WithDescription("Inbound audio payloads dropped because they could not be decoded."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptEntries, err = m.Int64Counter("pranimitra.transcript.entries",
		metric.WithDescription("Finalized transcript entries by speaker."),
	); err != nil {
		return nil, err
	}
	if met.CallErrors, err = m.Int64Counter("pranimitra.call.errors",
		metric.WithDescription("Failed calls by error kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveCalls, err = m.Int64UpDownCounter("pranimitra.active_calls",
		metric.WithDescription("Number of live calls."),
	); err != nil {
		return nil, err
	}

	// Histograms.
	if met.CallDuration, err = m.Float64Histogram("pranimitra.call.duration",
		metric.WithDescription("Length of calls from active to idle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(callBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SessionOpenLatency, err = m.Float64Histogram("pranimitra.session.open_latency",
		metric.WithDescription("Time from connect to the live session's open event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("pranimitra.http.request.duration",
		metric.WithDescription("HTTP request latency by method, route and status class."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordFrameDropped records a dropped capture frame with its reason.
func (m *Metrics) RecordFrameDropped(ctx context.Context, reason string) {
	m.FramesDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordTranscriptEntry records a finalized transcript entry for speaker.
func (m *Metrics) RecordTranscriptEntry(ctx context.Context, speaker string) {
	m.TranscriptEntries.Add(ctx, 1, metric.WithAttributes(attribute.String("speaker", speaker)))
}

// RecordCallError records a failed call by error kind.
func (m *Metrics) RecordCallError(ctx context.Context, kind string) {
	m.CallErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSessionOpen records the open latency of a live session.
func (m *Metrics) RecordSessionOpen(ctx context.Context, provider string, seconds float64) {
	m.SessionOpenLatency.Record(ctx, seconds, metric.WithAttributes(attribute.String("provider", provider)))
}
