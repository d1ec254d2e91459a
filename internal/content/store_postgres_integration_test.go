//go:build integration

package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"warden/internal/txn"
	"warden/pkg/platform/sentinel"
	"warden/pkg/testutil/containers"
)

const contentSchema = `
CREATE TABLE IF NOT EXISTS content_entries (
    id         TEXT PRIMARY KEY,
    title      TEXT NOT NULL DEFAULT '',
    body       TEXT NOT NULL DEFAULT '',
    status     TEXT NOT NULL,
    version    INT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

type PostgresStoreSuite struct {
	suite.Suite
	ctx     context.Context
	pg      *containers.PostgresContainer
	store   *PostgresStore
	backend *txn.SQLBackend
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.NewPostgresContainer(s.T())

	_, err := s.pg.DB.ExecContext(s.ctx, contentSchema)
	s.Require().NoError(err)

	s.store = NewPostgresStore(s.pg.DB)
	s.backend = txn.NewSQLBackend(s.pg.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.DB.ExecContext(s.ctx, `TRUNCATE content_entries`)
	s.Require().NoError(err)
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

// inTx runs fn inside a SQL transaction and returns the executor so the test
// decides between commit and rollback.
func (s *PostgresStoreSuite) inTx(fn func(ctx context.Context)) *txn.Executor {
	executor, err := txn.NewExecutor(s.backend)
	s.Require().NoError(err)

	txCtx, err := executor.Begin(s.ctx)
	s.Require().NoError(err)

	fn(txCtx)
	return executor
}

func (s *PostgresStoreSuite) TestPut() {
	s.Run("writes through the operation transaction", func() {
		executor := s.inTx(func(ctx context.Context) {
			s.Require().NoError(s.store.Put(ctx, Entry{
				ID:      "a1",
				Title:   "First",
				Status:  StatusDraft,
				Version: 1,
			}))

			// The body reads its own staged write.
			entry, err := s.store.Get(ctx, "a1")
			s.Require().NoError(err)
			s.Equal("First", entry.Title)
		})

		// Not visible to the pool before commit.
		_, err := s.store.Get(s.ctx, "a1")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)

		s.Require().NoError(executor.Commit())

		entry, err := s.store.Get(s.ctx, "a1")
		s.Require().NoError(err)
		s.Equal(StatusDraft, entry.Status)
		s.False(entry.UpdatedAt.IsZero())
	})

	s.Run("rollback discards the write", func() {
		executor := s.inTx(func(ctx context.Context) {
			s.Require().NoError(s.store.Put(ctx, Entry{ID: "a2", Status: StatusDraft, Version: 1}))
		})
		s.Require().NoError(executor.Rollback())

		_, err := s.store.Get(s.ctx, "a2")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("upserts an existing entry", func() {
		executor := s.inTx(func(ctx context.Context) {
			s.Require().NoError(s.store.Put(ctx, Entry{ID: "a3", Title: "Draft", Status: StatusDraft, Version: 1}))
		})
		s.Require().NoError(executor.Commit())

		executor = s.inTx(func(ctx context.Context) {
			s.Require().NoError(s.store.Put(ctx, Entry{ID: "a3", Title: "Live", Status: StatusPublished, Version: 2}))
		})
		s.Require().NoError(executor.Commit())

		entry, err := s.store.Get(s.ctx, "a3")
		s.Require().NoError(err)
		s.Equal("Live", entry.Title)
		s.Equal(StatusPublished, entry.Status)
		s.Equal(2, entry.Version)
	})

	s.Run("rejects writes outside a transaction", func() {
		err := s.store.Put(s.ctx, Entry{ID: "a4", Status: StatusDraft, Version: 1})
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})
}

func (s *PostgresStoreSuite) TestGet() {
	s.Run("unknown entry reports not found", func() {
		_, err := s.store.Get(s.ctx, "ghost")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}
