// Package pgstore backs the job queue with PostgreSQL tables.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/docharvest/internal/jobqueue"
)

const schema = `
	CREATE TABLE IF NOT EXISTS queue_counters (
		name  TEXT PRIMARY KEY,
		value BIGINT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS queue_items (
		seq   BIGSERIAL PRIMARY KEY,
		queue TEXT NOT NULL,
		body  BYTEA NOT NULL
	);

	CREATE INDEX IF NOT EXISTS queue_items_queue_seq_idx ON queue_items (queue, seq);
`

// Store implements jobqueue.Counter and jobqueue.List on PostgreSQL.
// Incr is a single upsert, so the row lock serializes concurrent producers;
// Pop deletes the oldest row with SKIP LOCKED so concurrent consumers never
// receive the same item.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

var (
	_ jobqueue.Counter = (*Store)(nil)
	_ jobqueue.List    = (*Store)(nil)
)

// New creates a new Store instance
func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the queue tables if they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create queue schema: %w", err)
	}

	s.logger.Info("Queue schema ready")
	return nil
}

func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	query := `
		INSERT INTO queue_counters (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE
		SET value = queue_counters.value + 1
		RETURNING value
	`

	var value int64
	if err := s.db.GetContext(ctx, &value, query, key); err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) Push(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO queue_items (queue, body) VALUES ($1, $2)`

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

func (s *Store) Pop(ctx context.Context, key string) ([]byte, error) {
	query := `
		DELETE FROM queue_items
		WHERE seq = (
			SELECT seq FROM queue_items
			WHERE queue = $1
			ORDER BY seq
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING body
	`

	var body []byte
	err := s.db.GetContext(ctx, &body, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobqueue.ErrEmptyList
		}
		return nil, fmt.Errorf("failed to pop from %s: %w", key, err)
	}
	return body, nil
}

func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	query := `SELECT COUNT(*) FROM queue_items WHERE queue = $1`

	var n int64
	if err := s.db.GetContext(ctx, &n, query, key); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", key, err)
	}
	return n, nil
}
