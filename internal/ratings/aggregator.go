// Package ratings reduces the rating event stream to one mean rating per
// catalog entry.
//
// Aggregation is a single forward pass owned by one goroutine. Sums are
// accumulated in file order, so two runs over an unchanged file produce
// bit-identical means. Entities are remembered in first-seen order, which
// makes the downstream chunk layout deterministic as well.
package ratings

import (
	"stagingloader/internal/domain"
	"stagingloader/internal/source"
)

type accumulator struct {
	sum   float64
	count uint64
}

// Events is the subset of *source.Iterator the aggregator consumes.
type Events interface {
	Next() bool
	Value() domain.RatingEvent
	Err() error
}

var _ Events = (*source.Iterator[domain.RatingEvent])(nil)

// Aggregate is the fully materialized entity id → mean rating mapping. It is
// read-only after Reduce returns.
type Aggregate struct {
	order []int64
	means map[int64]float64
}

// Len reports the number of distinct entities.
func (a *Aggregate) Len() int { return len(a.order) }

// Mean returns the mean rating for id and whether id had any events.
func (a *Aggregate) Mean(id int64) (float64, bool) {
	m, ok := a.means[id]
	return m, ok
}

// Entries returns a fresh slice of (id, mean) pairs in first-seen order.
func (a *Aggregate) Entries() []domain.MeanRating {
	out := make([]domain.MeanRating, len(a.order))
	for i, id := range a.order {
		out[i] = domain.MeanRating{EntityID: id, Mean: a.means[id]}
	}
	return out
}

// Stats summarizes one aggregation pass.
type Stats struct {
	Events   int
	Entities int
}

// Reduce drains events and returns the aggregate. Any iteration error (a
// *domain.ParseError for malformed lines) aborts the pass and no aggregate is
// returned.
func Reduce(events Events) (*Aggregate, Stats, error) {
	acc := make(map[int64]*accumulator)
	var order []int64
	var st Stats

	for events.Next() {
		ev := events.Value()
		a, ok := acc[ev.EntityID]
		if !ok {
			a = &accumulator{}
			acc[ev.EntityID] = a
			order = append(order, ev.EntityID)
		}
		a.sum += ev.Rating
		a.count++
		st.Events++
	}
	if err := events.Err(); err != nil {
		return nil, Stats{}, err
	}

	means := make(map[int64]float64, len(acc))
	for _, id := range order {
		a := acc[id]
		if a.count == 0 {
			return nil, Stats{}, &domain.AggregationError{EntityID: id, Reason: "no events"}
		}
		means[id] = a.sum / float64(a.count)
	}
	st.Entities = len(order)
	return &Aggregate{order: order, means: means}, st, nil
}

// ReduceSource runs Reduce over a fresh iterator of src.
func ReduceSource(src *source.Source[domain.RatingEvent]) (*Aggregate, Stats, error) {
	it, err := src.Iterate()
	if err != nil {
		return nil, Stats{}, err
	}
	defer it.Close()
	return Reduce(it)
}
