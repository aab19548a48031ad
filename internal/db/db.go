package db

import "context"

// DB is one store connection capable of DDL and transactions.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) error
	BeginTx(ctx context.Context) (Tx, error)
	Close(ctx context.Context) error
}

// Tx is a transaction that can apply one parameterized statement to many
// rows as a single batched operation.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) error
	// ExecBatch writes every row with stmt, a single-row insert, and returns
	// the number of rows the store reports as affected (ignored conflicts
	// count as zero).
	ExecBatch(ctx context.Context, stmt string, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory mints a fresh connection. Every write task calls it once, so no
// connection is ever shared between workers.
type Factory func(ctx context.Context) (DB, error)
