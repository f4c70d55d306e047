package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newMiddlewareMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// controlMux mimics the routes served by the app.
func controlMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("POST /call", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /recordings/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("RIFF"))
	})
	return mux
}

func durationSeries(t *testing.T, reader *sdkmetric.ManualReader) []metricdata.HistogramDataPoint[float64] {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	met := findMetric(rm, "pranimitra.http.request.duration")
	if met == nil {
		t.Fatal("request duration metric not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("metric data is %T, want histogram", met.Data)
	}
	return hist.DataPoints
}

func TestMiddleware_CorrelationHeaderMatchesContext(t *testing.T) {
	useTracer(t)
	m, _ := newMiddlewareMetrics(t)

	var seen string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/call", nil))

	if len(seen) != 32 {
		t.Fatalf("handler correlation ID = %q, want 32 hex chars", seen)
	}
	if got := rec.Header().Get(CorrelationHeader); got != seen {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, seen)
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	useTracer(t)
	m, _ := newMiddlewareMetrics(t)
	const traceID = "0af7651916cd43dd8448eb211c80319c"

	var seen string
	h := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/call", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-b7ad6b7169203331-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != traceID {
		t.Errorf("correlation ID = %q, want %q", seen, traceID)
	}
	if got := rec.Header().Get(CorrelationHeader); got != traceID {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, traceID)
	}
}

func TestMiddleware_SpanNamedByRoute(t *testing.T) {
	exp := useTracer(t)
	m, _ := newMiddlewareMetrics(t)
	h := Middleware(m)(controlMux())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/recordings/abc", nil))

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "GET /recordings/{id}" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "GET /recordings/{id}")
	}
	var status int64
	for _, kv := range spans[0].Attributes {
		if kv.Key == "http.response.status_code" {
			status = kv.Value.AsInt64()
		}
	}
	if status != http.StatusOK {
		t.Errorf("status attribute = %d, want 200 for a body-only response", status)
	}
}

func TestMiddleware_ServerErrorMarksSpan(t *testing.T) {
	exp := useTracer(t)
	m, _ := newMiddlewareMetrics(t)
	h := Middleware(m)(controlMux())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recordings/broken", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Errorf("span status = %v, want Error", spans[0].Status.Code)
	}
}

func TestMiddleware_OneSeriesPerRouteAndClass(t *testing.T) {
	useTracer(t)
	m, reader := newMiddlewareMetrics(t)
	h := Middleware(m)(controlMux())

	for _, id := range []string{"r1", "r2", "r3", "broken"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/recordings/"+id, nil))
	}
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/call", nil))

	counts := make(map[string]uint64)
	for _, dp := range durationSeries(t, reader) {
		method, _ := dp.Attributes.Value("method")
		route, _ := dp.Attributes.Value("route")
		class, _ := dp.Attributes.Value("status_class")
		key := strings.Join([]string{method.AsString(), route.AsString(), class.AsString()}, " ")
		counts[key] += dp.Count
	}

	want := map[string]uint64{
		"GET /recordings/{id} 2xx": 3,
		"GET /recordings/{id} 5xx": 1,
		"POST /call 2xx":           1,
	}
	if len(counts) != len(want) {
		t.Errorf("series = %v, want %v", counts, want)
	}
	for k, n := range want {
		if counts[k] != n {
			t.Errorf("series %q count = %d, want %d", k, counts[k], n)
		}
	}
}

func TestMiddleware_ProbesLogAtDebug(t *testing.T) {
	useTracer(t)
	buf := captureLogs(t)
	m, _ := newMiddlewareMetrics(t)
	h := Middleware(m)(controlMux())

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/call", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("logged %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "level=DEBUG") || !strings.Contains(lines[0], "route=/healthz") {
		t.Errorf("probe line = %q, want debug for /healthz", lines[0])
	}
	if !strings.Contains(lines[1], "level=INFO") || !strings.Contains(lines[1], "status=202") {
		t.Errorf("call line = %q, want info with status 202", lines[1])
	}
}

func TestStatusClass(t *testing.T) {
	t.Parallel()

	for code, want := range map[int]string{200: "2xx", 204: "2xx", 404: "4xx", 409: "4xx", 503: "5xx"} {
		if got := statusClass(code); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", code, got, want)
		}
	}
}
