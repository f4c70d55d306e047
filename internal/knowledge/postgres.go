package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the knowledge_entries table. Execute it via
// [PostgresSource.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS knowledge_entries (
    id         BIGSERIAL PRIMARY KEY,
    position   INTEGER NOT NULL DEFAULT 0,
    question   TEXT NOT NULL,
    answer     TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_knowledge_entries_position ON knowledge_entries(position, id);
`

// DB is the database interface used by [PostgresSource]. Both
// *pgxpool.Pool and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSource is a [Source] backed by a PostgreSQL table.
type PostgresSource struct {
	db DB
}

var _ Source = (*PostgresSource)(nil)

// NewPostgresSource creates a source that reads from db. The caller is
// responsible for calling [PostgresSource.Migrate] before use.
func NewPostgresSource(db DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// Migrate executes the [Schema] DDL.
func (s *PostgresSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("knowledge: migrate: %w", err)
	}
	return nil
}

// Load implements [Source]. Entries are returned ordered by position, then
// insertion order.
func (s *PostgresSource) Load(ctx context.Context) ([]Entry, error) {
	const query = `
		SELECT question, answer
		FROM knowledge_entries
		ORDER BY position, id`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("knowledge: load: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Question, &e.Answer); err != nil {
			return nil, fmt.Errorf("knowledge: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: load rows: %w", err)
	}
	return entries, nil
}

// Add appends entries after the current last position.
func (s *PostgresSource) Add(ctx context.Context, entries ...Entry) error {
	if err := validateAll(entries); err != nil {
		return fmt.Errorf("knowledge: add: %w", err)
	}
	const query = `
		INSERT INTO knowledge_entries (position, question, answer)
		SELECT COALESCE(MAX(position), 0) + 1, $1, $2 FROM knowledge_entries`
	for _, e := range entries {
		if _, err := s.db.Exec(ctx, query, e.Question, e.Answer); err != nil {
			return fmt.Errorf("knowledge: add entry %q: %w", e.Question, err)
		}
	}
	return nil
}
