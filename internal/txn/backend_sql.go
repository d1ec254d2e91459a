package txn

import (
	"context"
	"database/sql"
	"fmt"
)

type sqlTxKey struct{}

// WithSQLTx stores a SQL transaction in context for downstream store usage.
func WithSQLTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, sqlTxKey{}, tx)
}

// SQLTxFrom extracts a SQL transaction from context if present.
func SQLTxFrom(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(sqlTxKey{}).(*sql.Tx)
	return tx, ok
}

// SQLBackend opens database/sql transactions. The transaction is bound to
// the Begin context, so a deadline on the guarded operation cancels any
// statement still running when the call's budget is exhausted.
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend wraps a *sql.DB as a transaction backend.
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) Begin(ctx context.Context) (Tx, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sql begin: %w", err)
	}
	return &sqlTx{tx: tx}, nil
}

type sqlTx struct {
	tx *sql.Tx
}

func (t *sqlTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqlTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqlTx) Inject(ctx context.Context) context.Context {
	return WithSQLTx(ctx, t.tx)
}
