package questionlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestSlogLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	err := l.Log(context.Background(), Question{
		CallID: "c1", Language: "Hindi", Service: "Farming", Text: "wheat price?",
	})
	if err != nil {
		t.Fatalf("Log: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"question asked", "call_id=c1", "language=Hindi", `text="wheat price?"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Test helpers — mock DB types
// ---------------------------------------------------------------------------

type mockRows struct {
	data [][]any
	idx  int
}

func (r *mockRows) Close()                                       {}
func (r *mockRows) Err() error                                   { return nil }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

type mockDB struct {
	rows    *mockRows
	execErr error
	args    [][]any
	limits  []any
}

func (m *mockDB) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	m.limits = append(m.limits, args...)
	return m.rows, nil
}

func (m *mockDB) Exec(_ context.Context, _ string, args ...any) (pgconn.CommandTag, error) {
	m.args = append(m.args, args)
	return pgconn.CommandTag{}, m.execErr
}

func TestPostgresLogger_Log(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	l := NewPostgresLogger(db)
	asked := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)

	if err := l.Log(context.Background(), Question{CallID: "c1", Language: "Telugu", Service: "Animal Health", Text: "cow fever", AskedAt: asked}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if len(db.args) != 1 {
		t.Fatalf("exec calls = %d, want 1", len(db.args))
	}
	args := db.args[0]
	if args[0] != "c1" || args[3] != "cow fever" || args[4] != asked {
		t.Errorf("insert args = %v", args)
	}

	// A zero timestamp is filled in.
	if err := l.Log(context.Background(), Question{CallID: "c2", Text: "x"}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if ts := db.args[1][4].(time.Time); ts.IsZero() {
		t.Error("zero AskedAt was not replaced")
	}
}

func TestPostgresLogger_LogError(t *testing.T) {
	t.Parallel()

	l := NewPostgresLogger(&mockDB{execErr: errors.New("disk full")})
	err := l.Log(context.Background(), Question{CallID: "c1", Text: "q"})
	if err == nil || !strings.Contains(err.Error(), "questionlog: insert") {
		t.Errorf("Log() error = %v", err)
	}
	if err := l.Migrate(context.Background()); err == nil {
		t.Error("Migrate: expected error")
	}
}

func TestPostgresLogger_Recent(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	db := &mockDB{rows: &mockRows{data: [][]any{
		{"c2", "Hindi", "Farming", "urea dose", ts},
		{"c1", "English", "General Queries", "pm kisan", ts.Add(-time.Hour)},
	}}}
	got, err := NewPostgresLogger(db).Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].Text != "urea dose" || !got[1].AskedAt.Equal(ts.Add(-time.Hour)) {
		t.Errorf("Recent() = %+v", got)
	}
	if len(db.limits) != 1 || db.limits[0] != 10 {
		t.Errorf("limit args = %v, want [10]", db.limits)
	}
}
