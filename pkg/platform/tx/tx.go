// Package tx holds the query surface shared by a pool and a transaction.
package tx

import (
	"context"
	"database/sql"
)

// Executor is satisfied by both *sql.DB and *sql.Tx. SQL stores bind it to
// the pool, or to the open transaction inside RunInTx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ Executor = (*sql.DB)(nil)
	_ Executor = (*sql.Tx)(nil)
)
