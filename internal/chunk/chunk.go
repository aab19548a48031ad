// Package chunk partitions an ordered collection into contiguous work units.
package chunk

import (
	"strconv"

	"stagingloader/internal/domain"
)

// Split cuts items into at most n contiguous chunks of ceil(len(items)/n)
// items each; only the last chunk may be shorter. Order is preserved within
// and across chunks, and the chunks share items' backing array.
//
// An empty input yields exactly one empty chunk so callers can assume at
// least one unit of work. n <= 0 is a *domain.ConfigError.
func Split[T any](items []T, n int) ([][]T, error) {
	if n <= 0 {
		return nil, &domain.ConfigError{Field: "workers", Reason: "chunk count must be positive, got " + strconv.Itoa(n)}
	}
	if len(items) == 0 {
		return [][]T{{}}, nil
	}

	size := (len(items) + n - 1) / n
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks, nil
}
