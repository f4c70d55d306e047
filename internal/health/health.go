// Package health serves the liveness and readiness probes of the control
// surface.
//
// GET /healthz always answers 200. GET /readyz runs every [Checker]
// concurrently and answers with a JSON body such as
//
//	{"status":"degraded","checks":{"provider":"ok","question_log":"warn: circuit open"}}
//
// A failing required checker makes the overall status "fail" with 503. A
// failing [Checker.Optional] checker only downgrades the status to
// "degraded"; the service can still take calls without it.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const checkTimeout = 5 * time.Second

// Overall readiness states.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
)

// Checker probes one dependency. Check returns nil when it is usable.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error

	// Optional dependencies degrade readiness instead of failing it.
	Optional bool
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks a database pool.
func Ping(name string, p Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}

// NotEmpty fails with msg while n reports zero.
func NotEmpty(name, msg string, n func() int) Checker {
	return Checker{Name: name, Check: func(context.Context) error {
		if n() == 0 {
			return errors.New(msg)
		}
		return nil
	}}
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed by [New].
type Handler struct {
	checkers []Checker
}

func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts /healthz and /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: StatusOK})
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	rep := h.evaluate(r.Context())
	code := http.StatusOK
	if rep.Status == StatusFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, rep)
}

// evaluate runs all checkers, each bounded by checkTimeout.
func (h *Handler) evaluate(ctx context.Context) report {
	rep := report{Status: StatusOK, Checks: make(map[string]string, len(h.checkers))}
	var mu sync.Mutex
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			err := c.Check(cctx)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				rep.Checks[c.Name] = "ok"
			case c.Optional:
				rep.Checks[c.Name] = "warn: " + err.Error()
				if rep.Status == StatusOK {
					rep.Status = StatusDegraded
				}
			default:
				rep.Checks[c.Name] = "fail: " + err.Error()
				rep.Status = StatusFail
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
