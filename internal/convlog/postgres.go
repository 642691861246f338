package convlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Recorder = (*PostgresRecorder)(nil)

const ddlConversationEntries = `
CREATE TABLE IF NOT EXISTS conversation_entries (
    id              BIGSERIAL    PRIMARY KEY,
    conversation_id TEXT         NOT NULL,
    turn            INT          NOT NULL,
    role            TEXT         NOT NULL,
    label           TEXT         NOT NULL DEFAULT '',
    text            TEXT         NOT NULL,
    intent          TEXT         NOT NULL DEFAULT '',
    state           TEXT         NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_conversation_entries_conversation
    ON conversation_entries (conversation_id, turn);
`

// PostgresRecorder persists entries in a conversation_entries table.
// All methods are safe for concurrent use.
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder connects to the database at dsn and ensures the
// schema exists. The migration is idempotent and safe on every start.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("convlog: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("convlog: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlConversationEntries); err != nil {
		pool.Close()
		return nil, fmt.Errorf("convlog: migrate: %w", err)
	}
	return &PostgresRecorder{pool: pool}, nil
}

func (r *PostgresRecorder) Record(ctx context.Context, e Entry) error {
	const q = `
		INSERT INTO conversation_entries
		    (conversation_id, turn, role, label, text, intent, state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, q,
		e.ConversationID,
		e.Turn,
		string(e.Role),
		e.Label,
		e.Text,
		e.Intent,
		e.State,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("convlog: record entry: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) Entries(ctx context.Context, conversationID string) ([]Entry, error) {
	const q = `
		SELECT conversation_id, turn, role, label, text, intent, state, created_at
		FROM   conversation_entries
		WHERE  conversation_id = $1
		ORDER  BY turn`

	rows, err := r.pool.Query(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("convlog: query entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e    Entry
			role string
		)
		if err := row.Scan(&e.ConversationID, &e.Turn, &role, &e.Label, &e.Text, &e.Intent, &e.State, &e.CreatedAt); err != nil {
			return Entry{}, err
		}
		e.Role = Role(role)
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("convlog: scan entries: %w", err)
	}
	return entries, nil
}

// Ping reports whether the database is reachable. Used by the
// readiness probe.
func (r *PostgresRecorder) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the underlying connection pool.
func (r *PostgresRecorder) Close() {
	r.pool.Close()
}
