package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers — mock DB types
// ---------------------------------------------------------------------------

type mockRows struct {
	data    [][]string
	idx     int
	err     error
	closed  bool
	scanErr error
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
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
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		d, ok := dest[i].(*string)
		if !ok {
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
		*d = v
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type mockDB struct {
	rows     *mockRows
	queryErr error
	execErr  error
	execs    []execCall
}

func (m *mockDB) Query(_ context.Context, _ string, _ ...any) (pgx.Rows, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	if m.rows == nil {
		return &mockRows{}, nil
	}
	return m.rows, nil
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, execCall{sql: sql, args: args})
	return pgconn.CommandTag{}, m.execErr
}

// ---------------------------------------------------------------------------
// PostgresSource tests
// ---------------------------------------------------------------------------

func TestPostgresSource_Load(t *testing.T) {
	t.Parallel()

	rows := &mockRows{data: [][]string{
		{"What is PM-KISAN?", "Rs 6,000 per year."},
		{"Wheat MSP?", "Rs 2,275 per quintal."},
	}}
	src := NewPostgresSource(&mockDB{rows: rows})

	got, err := src.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 || got[0].Question != "What is PM-KISAN?" || got[1].Answer != "Rs 2,275 per quintal." {
		t.Errorf("Load() = %+v", got)
	}
	if !rows.closed {
		t.Error("rows were not closed")
	}
}

func TestPostgresSource_LoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		db   *mockDB
		want string
	}{
		{name: "query", db: &mockDB{queryErr: errors.New("conn refused")}, want: "knowledge: load"},
		{name: "scan", db: &mockDB{rows: &mockRows{data: [][]string{{"q", "a"}}, scanErr: errors.New("bad")}}, want: "knowledge: scan entry"},
		{name: "rows", db: &mockDB{rows: &mockRows{err: errors.New("broken pipe")}}, want: "knowledge: load rows"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPostgresSource(tc.db).Load(context.Background())
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestPostgresSource_MigrateAndAdd(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	src := NewPostgresSource(db)
	ctx := context.Background()

	if err := src.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := src.Add(ctx, Entry{Question: "q1", Answer: "a1"}, Entry{Question: "q2", Answer: "a2"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(db.execs) != 3 {
		t.Fatalf("exec calls = %d, want 3", len(db.execs))
	}
	if !strings.Contains(db.execs[0].sql, "CREATE TABLE IF NOT EXISTS knowledge_entries") {
		t.Errorf("first exec is not the schema: %q", db.execs[0].sql)
	}
	if db.execs[2].args[0] != "q2" || db.execs[2].args[1] != "a2" {
		t.Errorf("second insert args = %v", db.execs[2].args)
	}

	if err := src.Add(ctx, Entry{Question: "no answer"}); err == nil {
		t.Error("Add with empty answer: expected validation error")
	}
	if len(db.execs) != 3 {
		t.Error("invalid entry reached the database")
	}
}

func TestPostgresSource_MigrateError(t *testing.T) {
	t.Parallel()

	src := NewPostgresSource(&mockDB{execErr: errors.New("permission denied")})
	if err := src.Migrate(context.Background()); err == nil || !strings.Contains(err.Error(), "knowledge: migrate") {
		t.Errorf("Migrate() error = %v", err)
	}
}
