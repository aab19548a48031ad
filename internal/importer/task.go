package importer

import (
	"stagingloader/internal/db"
	"stagingloader/internal/domain"
)

// WriteTask is one chunk bound for one table. A task is immutable once built
// and is executed by exactly one worker.
type WriteTask struct {
	Table      string
	Statement  string // single-row idempotent insert, applied to every row
	ChunkIndex int
	Rows       [][]any
}

// BuildTasks turns chunks into write tasks for table, one per chunk, in
// chunk order. Row values are copied out of the chunk so workers never share
// memory with the caller.
func BuildTasks[T any](d db.Dialect, table db.Table, chunks [][]T, row func(T) []any) []WriteTask {
	stmt := d.InsertIgnore(table)
	tasks := make([]WriteTask, 0, len(chunks))
	for i, c := range chunks {
		rows := make([][]any, len(c))
		for j, item := range c {
			rows[j] = row(item)
		}
		tasks = append(tasks, WriteTask{Table: table.Name, Statement: stmt, ChunkIndex: i, Rows: rows})
	}
	return tasks
}

// CatalogRow is the column tuple of a catalog record.
func CatalogRow(r domain.CatalogRecord) []any {
	return []any{r.ID, r.Title, r.Genres}
}

// RatingRow is the column tuple of a mean rating.
func RatingRow(m domain.MeanRating) []any {
	return []any{m.EntityID, m.Mean}
}
