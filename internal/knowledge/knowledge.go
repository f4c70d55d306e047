// Package knowledge provides the question/answer corpus that grounds the
// assistant's answers.
//
// A corpus is loaded from a [Source]: a YAML file ([File]), a PostgreSQL
// table ([PostgresSource]), the embedded default corpus ([Default]), or
// several of them merged ([Multi]). A [Watcher] polls a source and swaps the
// current corpus when its content changes, so the next call picks up edits
// without a restart.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Entry is one question and its reference answer.
type Entry struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

// Validate reports whether both fields are non-empty.
func (e Entry) Validate() error {
	var errs []error
	if strings.TrimSpace(e.Question) == "" {
		errs = append(errs, errors.New("question must not be empty"))
	}
	if strings.TrimSpace(e.Answer) == "" {
		errs = append(errs, errors.New("answer must not be empty"))
	}
	return errors.Join(errs...)
}

// Source loads a complete corpus.
type Source interface {
	Load(ctx context.Context) ([]Entry, error)
}

// SourceFunc adapts a function to [Source].
type SourceFunc func(ctx context.Context) ([]Entry, error)

// Load implements [Source].
func (f SourceFunc) Load(ctx context.Context) ([]Entry, error) { return f(ctx) }

// Static is a fixed in-memory corpus.
type Static []Entry

// Load implements [Source]. It returns a copy of the entries.
func (s Static) Load(context.Context) ([]Entry, error) {
	out := make([]Entry, len(s))
	copy(out, s)
	return out, nil
}

func validateAll(entries []Entry) error {
	var errs []error
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("entry %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
