package questionlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the questions table.
const Schema = `
CREATE TABLE IF NOT EXISTS questions (
    id         BIGSERIAL PRIMARY KEY,
    call_id    TEXT NOT NULL,
    language   TEXT NOT NULL DEFAULT '',
    service    TEXT NOT NULL DEFAULT '',
    text       TEXT NOT NULL,
    asked_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_questions_call ON questions(call_id);
CREATE INDEX IF NOT EXISTS idx_questions_asked_at ON questions(asked_at);
`

// DB is the database interface used by [PostgresLogger]. Both
// *pgxpool.Pool and *pgx.Conn satisfy this interface.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresLogger is a [Logger] inserting into the questions table.
type PostgresLogger struct {
	db DB
}

var _ Logger = (*PostgresLogger)(nil)

// NewPostgresLogger creates a logger that writes to db. The caller is
// responsible for calling [PostgresLogger.Migrate] before use.
func NewPostgresLogger(db DB) *PostgresLogger {
	return &PostgresLogger{db: db}
}

// Migrate executes the [Schema] DDL.
func (p *PostgresLogger) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("questionlog: migrate: %w", err)
	}
	return nil
}

// Log implements [Logger].
func (p *PostgresLogger) Log(ctx context.Context, q Question) error {
	const query = `
		INSERT INTO questions (call_id, language, service, text, asked_at)
		VALUES ($1, $2, $3, $4, $5)`
	askedAt := q.AskedAt
	if askedAt.IsZero() {
		askedAt = time.Now()
	}
	if _, err := p.db.Exec(ctx, query, q.CallID, q.Language, q.Service, q.Text, askedAt); err != nil {
		return fmt.Errorf("questionlog: insert: %w", err)
	}
	return nil
}

// Recent returns up to limit questions, newest first.
func (p *PostgresLogger) Recent(ctx context.Context, limit int) ([]Question, error) {
	const query = `
		SELECT call_id, language, service, text, asked_at
		FROM questions
		ORDER BY asked_at DESC, id DESC
		LIMIT $1`
	rows, err := p.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("questionlog: recent: %w", err)
	}
	defer rows.Close()

	var out []Question
	for rows.Next() {
		var q Question
		if err := rows.Scan(&q.CallID, &q.Language, &q.Service, &q.Text, &q.AskedAt); err != nil {
			return nil, fmt.Errorf("questionlog: scan: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("questionlog: recent rows: %w", err)
	}
	return out, nil
}
