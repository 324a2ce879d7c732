package store

import (
	"cmp"
	"slices"
)

// Order is a sort direction
type Order int

const (
	Ascending Order = iota
	Descending
)

func (o Order) String() string {
	if o == Descending {
		return "desc"
	}
	return "asc"
}

// CompareFloat orders a and b in direction o
func CompareFloat(a, b float64, o Order) int {
	if o == Descending {
		return cmp.Compare(b, a)
	}
	return cmp.Compare(a, b)
}

// RankMode selects how positions are assigned within a partition
type RankMode int

const (
	// DenseRank gives equal items equal rank, with no gaps: 1, 1, 2.
	DenseRank RankMode = iota
	// RowNumber numbers items 1..n, equal items ordered by the tiebreak.
	RowNumber
)

// Ranked is an item with its partition and position
type Ranked[T any] struct {
	Item      T
	Partition string
	Rank      int
}

// Rank groups items by partition, orders each partition by compare, then
// by tiebreak, and assigns positions per mode. Output is ordered by
// partition then position. Equality for dense ranking is decided by compare
// alone.
func Rank[T any](items []T, partition func(T) string, compare, tiebreak func(a, b T) int, mode RankMode) []Ranked[T] {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b T) int {
		if c := cmp.Compare(partition(a), partition(b)); c != 0 {
			return c
		}
		if c := compare(a, b); c != 0 {
			return c
		}
		if tiebreak != nil {
			return tiebreak(a, b)
		}
		return 0
	})

	out := make([]Ranked[T], 0, len(sorted))
	var (
		current string
		rank    int
		pos     int
	)
	for i, item := range sorted {
		p := partition(item)
		if i == 0 || p != current {
			current = p
			rank, pos = 1, 1
		} else {
			pos++
			switch mode {
			case RowNumber:
				rank = pos
			default:
				if compare(sorted[i-1], item) != 0 {
					rank++
				}
			}
		}
		out = append(out, Ranked[T]{Item: item, Partition: p, Rank: rank})
	}
	return out
}

// Top keeps the entries ranked k or better in every partition. k <= 0
// keeps everything.
func Top[T any](ranked []Ranked[T], k int) []Ranked[T] {
	if k <= 0 {
		return ranked
	}
	out := make([]Ranked[T], 0, len(ranked))
	for _, r := range ranked {
		if r.Rank <= k {
			out = append(out, r)
		}
	}
	return out
}
