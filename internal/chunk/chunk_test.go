package chunk

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"stagingloader/internal/domain"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestSplit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		items []int
		n     int
		want  [][]int
	}{
		{"even", seq(6), 3, [][]int{{0, 1}, {2, 3}, {4, 5}}},
		{"uneven tail", seq(7), 3, [][]int{{0, 1, 2}, {3, 4, 5}, {6}}},
		{"fewer items than chunks", seq(2), 5, [][]int{{0}, {1}}},
		{"single chunk", seq(4), 1, [][]int{{0, 1, 2, 3}}},
		// ceil(10/4)=3 → 4 chunks; ceil(9/4)=3 → only 3 chunks.
		{"count below target", seq(9), 4, [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}}},
		{"empty", nil, 3, [][]int{{}}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Split(tc.items, tc.n)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("Split mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSplit_NonPositiveCount(t *testing.T) {
	t.Parallel()
	for _, n := range []int{0, -1} {
		_, err := Split(seq(3), n)
		var ce *domain.ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("n=%d: want *ConfigError, got %v", n, err)
		}
	}
}

// Appending to one chunk must never overwrite the next one.
func TestSplit_ChunksDoNotAlias(t *testing.T) {
	t.Parallel()
	items := seq(4)
	chunks, err := Split(items, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = append(chunks[0], 99)
	if chunks[1][0] != 2 {
		t.Fatalf("chunk 1 was overwritten: %v", chunks[1])
	}
}

func TestProperty_Split(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("sizes sum to count, bounded size and count, order restored", prop.ForAll(
		func(count, n int) bool {
			chunks, err := Split(seq(count), n)
			if err != nil {
				return false
			}
			if len(chunks) == 0 || len(chunks) > n {
				return false
			}
			limit := (count + n - 1) / n
			var joined []int
			for _, c := range chunks {
				if len(c) > limit {
					return false
				}
				joined = append(joined, c...)
			}
			if len(joined) != count {
				return false
			}
			for i, v := range joined {
				if v != i {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 5000),
		gen.IntRange(1, 64),
	))

	properties.TestingRun(t)
}
