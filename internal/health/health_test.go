package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func ok(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func probe(t *testing.T, h *Handler, path string) (int, report) {
	t.Helper()
	mux := http.NewServeMux()
	h.Register(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var rep report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return rec.Code, rep
}

func TestHealthz_IgnoresCheckers(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "provider", Check: failing("no api key configured")})
	code, rep := probe(t, h, "/healthz")
	if code != http.StatusOK || rep.Status != StatusOK {
		t.Errorf("healthz = %d %q, want 200 ok", code, rep.Status)
	}
	if len(rep.Checks) != 0 {
		t.Errorf("healthz ran checks: %v", rep.Checks)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "provider", Check: ok},
				{Name: "knowledge", Check: ok},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusOK,
			wantChecks: map[string]string{"provider": "ok", "knowledge": "ok"},
		},
		{
			name: "required failure",
			checkers: []Checker{
				{Name: "provider", Check: ok},
				{Name: "knowledge", Check: failing("knowledge corpus is empty")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{"provider": "ok", "knowledge": "fail: knowledge corpus is empty"},
		},
		{
			name: "optional failure degrades",
			checkers: []Checker{
				{Name: "provider", Check: ok},
				{Name: "question_log", Check: failing("circuit open"), Optional: true},
			},
			wantCode:   http.StatusOK,
			wantStatus: StatusDegraded,
			wantChecks: map[string]string{"provider": "ok", "question_log": "warn: circuit open"},
		},
		{
			name: "required failure wins over optional",
			checkers: []Checker{
				{Name: "question_log", Check: failing("circuit open"), Optional: true},
				{Name: "provider", Check: failing("no api key configured")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: StatusFail,
			wantChecks: map[string]string{
				"question_log": "warn: circuit open",
				"provider":     "fail: no api key configured",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			code, rep := probe(t, New(tc.checkers...), "/readyz")
			if code != tc.wantCode {
				t.Errorf("code = %d, want %d", code, tc.wantCode)
			}
			if rep.Status != tc.wantStatus {
				t.Errorf("status = %q, want %q", rep.Status, tc.wantStatus)
			}
			for name, want := range tc.wantChecks {
				if got := rep.Checks[name]; got != want {
					t.Errorf("check %s = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_CancelledRequest(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "knowledge_db", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil).WithContext(ctx))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want 503", rec.Code)
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	block := func(ctx context.Context) error {
		started <- struct{}{}
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	go func() {
		<-started
		<-started
		close(release)
	}()

	h := New(Checker{Name: "knowledge_db", Check: block}, Checker{Name: "question_log_db", Check: block})
	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, want 200", rec.Code)
	}
}

type stubPool struct{ err error }

func (p stubPool) Ping(context.Context) error { return p.err }

func TestPing(t *testing.T) {
	t.Parallel()

	if err := Ping("knowledge_db", stubPool{}).Check(context.Background()); err != nil {
		t.Errorf("healthy pool: %v", err)
	}
	refused := errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
	c := Ping("knowledge_db", stubPool{err: refused})
	if c.Name != "knowledge_db" || c.Optional {
		t.Errorf("Ping checker = %+v", c)
	}
	if err := c.Check(context.Background()); !errors.Is(err, refused) {
		t.Errorf("Check = %v, want %v", err, refused)
	}
}

func TestNotEmpty(t *testing.T) {
	t.Parallel()

	entries := 0
	c := NotEmpty("knowledge", "knowledge corpus is empty", func() int { return entries })
	if err := c.Check(context.Background()); err == nil || err.Error() != "knowledge corpus is empty" {
		t.Errorf("empty corpus Check = %v", err)
	}
	entries = 12
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("loaded corpus Check = %v", err)
	}
}
