package questionlog

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Guarded.Log] while writes to the backend
// are suspended.
var ErrCircuitOpen = errors.New("questionlog: backend unavailable, circuit open")

type circuit int

const (
	circuitClosed circuit = iota
	circuitOpen
	circuitProbing
)

func (c circuit) String() string {
	switch c {
	case circuitClosed:
		return "closed"
	case circuitOpen:
		return "open"
	case circuitProbing:
		return "half-open"
	default:
		return "unknown"
	}
}

// Guarded wraps a [Logger] with a circuit breaker so that a failing store
// costs each call one fast rejection instead of a full write timeout.
//
// After MaxFailures consecutive failed writes the circuit opens and writes
// are rejected with [ErrCircuitOpen]. Once Cooldown has passed a single probe
// write is let through; its outcome closes or re-opens the circuit.
type Guarded struct {
	next        Logger
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    circuit
	failures int
	openedAt time.Time
}

var _ Logger = (*Guarded)(nil)

// GuardOption configures a [Guarded] logger.
type GuardOption func(*Guarded)

// WithMaxFailures sets how many consecutive failures open the circuit.
// Default 5.
func WithMaxFailures(n int) GuardOption {
	return func(g *Guarded) {
		if n > 0 {
			g.maxFailures = n
		}
	}
}

// WithCooldown sets how long the circuit stays open before probing.
// Default 30s.
func WithCooldown(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.cooldown = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guarded) { g.now = now }
}

// NewGuarded wraps next.
func NewGuarded(next Logger, opts ...GuardOption) *Guarded {
	g := &Guarded{
		next:        next,
		maxFailures: 5,
		cooldown:    30 * time.Second,
		now:         time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Log implements [Logger].
func (g *Guarded) Log(ctx context.Context, q Question) error {
	if !g.admit() {
		return ErrCircuitOpen
	}
	err := g.next.Log(ctx, q)
	g.record(err)
	return err
}

// Check reports [ErrCircuitOpen] while writes are suspended. It has the
// signature of a readiness check.
func (g *Guarded) Check(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == circuitOpen && g.now().Sub(g.openedAt) < g.cooldown {
		return ErrCircuitOpen
	}
	return nil
}

func (g *Guarded) admit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case circuitOpen:
		if g.now().Sub(g.openedAt) < g.cooldown {
			return false
		}
		g.state = circuitProbing
		slog.Info("question log circuit half-open, probing")
		return true
	case circuitProbing:
		// One probe at a time.
		return false
	default:
		return true
	}
}

func (g *Guarded) record(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err == nil {
		if g.state != circuitClosed {
			slog.Info("question log circuit closed")
		}
		g.state, g.failures = circuitClosed, 0
		return
	}

	g.failures++
	if g.state == circuitProbing || g.failures >= g.maxFailures {
		if g.state != circuitOpen {
			slog.Warn("question log circuit opened", "consecutive_failures", g.failures, "err", err)
		}
		g.state = circuitOpen
		g.openedAt = g.now()
	}
}
