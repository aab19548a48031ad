package importer

import (
	"context"
	"errors"
	"sync"

	"stagingloader/internal/db"
)

// fakeStore is an in-memory store with ignore-on-conflict semantics keyed on
// the first column of every row. Rows are grouped by statement text, which is
// unique per table.
type fakeStore struct {
	mu       sync.Mutex
	tables   map[string]map[any][]any
	ddl      []string
	connects int
	open     int
	maxOpen  int

	// failConnect fails the n-th (1-based) connection attempt.
	failConnect func(n int) bool
	// failRows fails ExecBatch for a batch whose first row has this key.
	failRows map[any]bool
	// failCommit fails every commit.
	failCommit bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string]map[any][]any{}}
}

func (s *fakeStore) Connect(ctx context.Context) (db.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.failConnect != nil && s.failConnect(s.connects) {
		return nil, errors.New("connection refused")
	}
	s.open++
	s.maxOpen = max(s.maxOpen, s.open)
	return &fakeConn{s: s}, nil
}

func (s *fakeStore) rows(stmt string) map[any][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[any][]any, len(s.tables[stmt]))
	for k, v := range s.tables[stmt] {
		out[k] = v
	}
	return out
}

func (s *fakeStore) stats() (connects, open, maxOpen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects, s.open, s.maxOpen
}

type fakeConn struct {
	s      *fakeStore
	closed bool
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.ddl = append(c.s.ddl, sql)
	return nil
}

func (c *fakeConn) BeginTx(ctx context.Context) (db.Tx, error) {
	return &fakeTx{s: c.s, pending: map[string][][]any{}}, nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	if c.closed {
		return errors.New("closed twice")
	}
	c.closed = true
	c.s.mu.Lock()
	c.s.open--
	c.s.mu.Unlock()
	return nil
}

type fakeTx struct {
	s       *fakeStore
	pending map[string][][]any
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) error { return nil }

func (t *fakeTx) ExecBatch(ctx context.Context, stmt string, rows [][]any) (int64, error) {
	if len(rows) > 0 && t.s.failRows[rows[0][0]] {
		return 0, errors.New("constraint violated")
	}
	t.pending[stmt] = append(t.pending[stmt], rows...)

	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	seen := map[any]bool{}
	var n int64
	for _, r := range rows {
		if _, ok := t.s.tables[stmt][r[0]]; !ok && !seen[r[0]] {
			n++
		}
		seen[r[0]] = true
	}
	return n, nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.s.failCommit {
		return errors.New("commit failed")
	}
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for stmt, rows := range t.pending {
		tbl := t.s.tables[stmt]
		if tbl == nil {
			tbl = map[any][]any{}
			t.s.tables[stmt] = tbl
		}
		for _, r := range rows {
			if _, ok := tbl[r[0]]; !ok {
				tbl[r[0]] = r
			}
		}
	}
	t.pending = nil
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.pending = nil
	return nil
}
