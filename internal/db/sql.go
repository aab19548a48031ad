package db

import (
	"context"
	"database/sql"
)

// Seams over database/sql so the adapter can be tested without a server.

type stmtCore interface {
	ExecContext(ctx context.Context, args ...any) (sql.Result, error)
	Close() error
}

type sqlTxCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (stmtCore, error)
	Commit() error
	Rollback() error
}

type sqlDBCore interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (sqlTxCore, error)
	Close() error
}

type realSQLTx struct{ tx *sql.Tx }

func (r realSQLTx) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.tx.ExecContext(ctx, q, args...)
}
func (r realSQLTx) PrepareContext(ctx context.Context, q string) (stmtCore, error) {
	st, err := r.tx.PrepareContext(ctx, q)
	if err != nil {
		return nil, err
	}
	return st, nil
}
func (r realSQLTx) Commit() error   { return r.tx.Commit() }
func (r realSQLTx) Rollback() error { return r.tx.Rollback() }

type realSQLDB struct{ db *sql.DB }

func (r realSQLDB) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return r.db.ExecContext(ctx, q, args...)
}
func (r realSQLDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (sqlTxCore, error) {
	tx, err := r.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return realSQLTx{tx: tx}, nil
}
func (r realSQLDB) Close() error { return r.db.Close() }

// sqlDB adapts MySQL, SQL Server and SQLite behind database/sql. Each value
// holds exactly one physical connection.
type sqlDB struct {
	db      sqlDBCore
	dialect Dialect
}

// NewSQLDB opens a single-connection pool for dialect and pings it.
func NewSQLDB(ctx context.Context, dialect Dialect, dsn string) (DB, error) {
	d, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, err
	}
	d.SetMaxOpenConns(1)
	if err := d.PingContext(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return &sqlDB{db: realSQLDB{db: d}, dialect: dialect}, nil
}

func (s *sqlDB) Exec(ctx context.Context, q string, args ...any) error {
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *sqlDB) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx, dialect: s.dialect}, nil
}

func (s *sqlDB) Close(ctx context.Context) error { return s.db.Close() }

type sqlTx struct {
	tx      sqlTxCore
	dialect Dialect
}

func (t *sqlTx) Exec(ctx context.Context, q string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, q, args...)
	return err
}

// ExecBatch writes rows with multi-row inserts where the dialect has them,
// splitting at the bind parameter limit. Otherwise it prepares stmt once and
// executes it per row. Drivers that cannot report affected rows count every
// successful row.
func (t *sqlTx) ExecBatch(ctx context.Context, stmt string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	per := t.dialect.RowsPerStatement(len(rows[0]))
	if _, ok := t.dialect.ExpandValues(stmt, 1); !ok || per == 1 {
		return t.execEach(ctx, stmt, rows)
	}

	var affected int64
	for start := 0; start < len(rows); start += per {
		part := rows[start:min(start+per, len(rows))]
		q, _ := t.dialect.ExpandValues(stmt, len(part))
		args := make([]any, 0, len(part)*len(part[0]))
		for _, row := range part {
			args = append(args, row...)
		}
		res, err := t.tx.ExecContext(ctx, q, args...)
		if err != nil {
			return affected, err
		}
		affected += rowsAffected(res, len(part))
	}
	return affected, nil
}

func (t *sqlTx) execEach(ctx context.Context, stmt string, rows [][]any) (int64, error) {
	st, err := t.tx.PrepareContext(ctx, stmt)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	var affected int64
	for _, row := range rows {
		res, err := st.ExecContext(ctx, row...)
		if err != nil {
			return affected, err
		}
		affected += rowsAffected(res, 1)
	}
	return affected, nil
}

func rowsAffected(res sql.Result, rows int) int64 {
	if res == nil {
		return int64(rows)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return int64(rows)
	}
	return n
}

func (t *sqlTx) Commit(ctx context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) Rollback(ctx context.Context) error { return t.tx.Rollback() }
