// Package questionlog records the questions callers ask, one record per
// completed user turn.
package questionlog

import (
	"context"
	"log/slog"
	"time"
)

// Question is one completed user utterance.
type Question struct {
	CallID   string
	Language string
	Service  string
	Text     string
	AskedAt  time.Time
}

// Logger persists questions. Implementations must be safe for concurrent use.
type Logger interface {
	Log(ctx context.Context, q Question) error
}

// SlogLogger writes questions to a structured logger.
type SlogLogger struct {
	log *slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

// NewSlogLogger returns a Logger writing to l, or to [slog.Default] if l is
// nil.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{log: l}
}

// Log implements [Logger].
func (s *SlogLogger) Log(ctx context.Context, q Question) error {
	s.log.InfoContext(ctx, "question asked",
		"call_id", q.CallID,
		"language", q.Language,
		"service", q.Service,
		"text", q.Text,
	)
	return nil
}

// Nop discards every question.
type Nop struct{}

// Log implements [Logger].
func (Nop) Log(context.Context, Question) error { return nil }
