package content

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"warden/internal/txn"
	"warden/pkg/platform/sentinel"
)

// PostgresStore persists entries in the content_entries table. Reads inside a
// guarded operation go through the operation's transaction so a body sees its
// own staged writes; reads outside one go straight to the pool.
//
// Schema:
//
//	CREATE TABLE content_entries (
//	    id         TEXT PRIMARY KEY,
//	    title      TEXT NOT NULL DEFAULT '',
//	    body       TEXT NOT NULL DEFAULT '',
//	    status     TEXT NOT NULL,
//	    version    INT NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps a *sql.DB as a content store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get returns an entry by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (Entry, error) {
	const query = `SELECT id, title, body, status, version, updated_at
		FROM content_entries WHERE id = $1`

	var row *sql.Row
	if tx, ok := txn.SQLTxFrom(ctx); ok {
		row = tx.QueryRowContext(ctx, query, id)
	} else {
		row = s.db.QueryRowContext(ctx, query, id)
	}

	var entry Entry
	err := row.Scan(&entry.ID, &entry.Title, &entry.Body, &entry.Status, &entry.Version, &entry.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("query content entry: %w", err)
	}
	return entry, nil
}

// Put upserts an entry through the context's transaction. Calling it outside
// one is a programming error: domain callbacks may only mutate state through
// the begin/commit bracket.
func (s *PostgresStore) Put(ctx context.Context, entry Entry) error {
	tx, ok := txn.SQLTxFrom(ctx)
	if !ok {
		return fmt.Errorf("content put outside transaction: %w", sentinel.ErrInvalidState)
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO content_entries (id, title, body, status, version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (id) DO UPDATE SET
		     title = EXCLUDED.title,
		     body = EXCLUDED.body,
		     status = EXCLUDED.status,
		     version = EXCLUDED.version,
		     updated_at = now()`,
		entry.ID, entry.Title, entry.Body, string(entry.Status), entry.Version,
	)
	if err != nil {
		return fmt.Errorf("upsert content entry: %w", err)
	}
	return nil
}
