package importer

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"stagingloader/internal/db"
	"stagingloader/internal/domain"
	"stagingloader/internal/metrics"
)

// Pool runs write tasks on a fixed number of workers. Each task gets its own
// connection and transaction; a failed task is recorded and never stops the
// others.
type Pool struct {
	Workers int
	Driver  string // reported in connection errors
	Connect db.Factory
	Metrics *metrics.Recorder
}

// Outcome summarizes one Run.
type Outcome struct {
	Tasks     int
	Succeeded int
	Rows      int64 // rows the store reported as inserted
	Failed    domain.TaskErrors
}

// Err is nil when every task succeeded and the full TaskErrors otherwise.
func (o Outcome) Err() error {
	if len(o.Failed) == 0 {
		return nil
	}
	return o.Failed
}

type taskResult struct {
	rows int64
	err  error
}

// Run executes every task and waits for all of them. Tasks are handed out in
// slice order through a queue holding at most Workers entries.
//
// ctx is checked before each hand-off: once it is done, the remaining tasks
// are not started and are reported as failed with ctx's error. Tasks already
// handed to a worker run to completion.
func (p *Pool) Run(ctx context.Context, tasks []WriteTask) Outcome {
	workers := max(p.Workers, 1)
	queue := make(chan int, workers)
	results := make([]taskResult, len(tasks))
	runCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for w := 1; w <= workers; w++ {
		id := w
		g.Go(func() error {
			for i := range queue {
				results[i] = p.execute(runCtx, id, tasks[i])
			}
			return nil
		})
	}

	next := 0
dispatch:
	for ; next < len(tasks); next++ {
		if ctx.Err() != nil {
			break
		}
		select {
		case queue <- next:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(queue)
	_ = g.Wait()

	for i := next; i < len(tasks); i++ {
		results[i] = taskResult{err: ctx.Err()}
	}

	out := Outcome{Tasks: len(tasks)}
	for i, r := range results {
		if r.err != nil {
			out.Failed = append(out.Failed, &domain.TaskError{
				Table:      tasks[i].Table,
				ChunkIndex: tasks[i].ChunkIndex,
				Err:        r.err,
			})
			continue
		}
		out.Succeeded++
		out.Rows += r.rows
	}
	if next < len(tasks) {
		log.Printf("⚠️ pool: %d of %d tasks not started: %v", len(tasks)-next, len(tasks), ctx.Err())
	}
	return out
}

func (p *Pool) execute(ctx context.Context, worker int, t WriteTask) taskResult {
	start := time.Now()
	n, err := p.write(ctx, t)
	dur := time.Since(start)
	p.Metrics.TaskDone(t.Table, n, dur, err)

	if err != nil {
		log.Printf("⚠️ %s[w%d]: chunk %d failed after %s: %v", t.Table, worker, t.ChunkIndex, dur.Round(time.Millisecond), err)
		return taskResult{err: err}
	}
	log.Printf("%s[w%d]: chunk %d rows=%d inserted=%d in %s", t.Table, worker, t.ChunkIndex, len(t.Rows), n, dur.Round(time.Millisecond))
	return taskResult{rows: n}
}

// write applies one task in its own transaction. The connection is released
// on every path.
func (p *Pool) write(ctx context.Context, t WriteTask) (int64, error) {
	conn, err := p.Connect(ctx)
	if err != nil {
		return 0, &domain.ConnectionError{Driver: p.Driver, Err: err}
	}
	defer func() { _ = conn.Close(ctx) }()

	tx, err := conn.BeginTx(ctx)
	if err != nil {
		return 0, &domain.QueryError{Statement: "BEGIN", Err: err}
	}
	n, err := tx.ExecBatch(ctx, t.Statement, t.Rows)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, &domain.QueryError{Statement: t.Statement, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return 0, &domain.QueryError{Statement: "COMMIT", Err: err}
	}
	return n, nil
}
