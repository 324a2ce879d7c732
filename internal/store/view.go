package store

import (
	"math"
	"sort"
	"time"

	"hcahps/pkg/models"
)

// Predicate selects facts
type Predicate func(models.Fact) bool

// NonNull keeps facts with a percentage
func NonNull() Predicate {
	return func(f models.Fact) bool { return f.Percent.Valid }
}

// IsNull keeps facts whose percentage is not available
func IsNull() Predicate {
	return func(f models.Fact) bool { return !f.Percent.Valid }
}

// ByState keeps facts of one state
func ByState(id int) Predicate {
	return func(f models.Fact) bool { return f.StateID == id }
}

// ByMeasure keeps facts of one measure
func ByMeasure(id int) Predicate {
	return func(f models.Fact) bool { return f.MeasureID == id }
}

// ByAnswer keeps facts of one answer category
func ByAnswer(id int) Predicate {
	return func(f models.Fact) bool { return f.AnswerID == id }
}

// View is an ordered subset of a store's facts, held as indexes.
type View struct {
	store *Store
	idx   []int
}

// Len returns the number of facts in the view
func (v View) Len() int {
	return len(v.idx)
}

// Fact returns the i-th fact of the view
func (v View) Fact(i int) models.Fact {
	return v.store.facts[v.idx[i]]
}

// Filter keeps the facts matching every predicate
func (v View) Filter(preds ...Predicate) View {
	out := make([]int, 0, len(v.idx))
next:
	for _, i := range v.idx {
		f := v.store.facts[i]
		for _, p := range preds {
			if !p(f) {
				continue next
			}
		}
		out = append(out, i)
	}
	return View{store: v.store, idx: out}
}

// Key identifies a group; ids of dimensions not grouped on are zero.
type Key struct {
	State   int
	Measure int
	Answer  int
}

// ID returns the key's id for dimension d
func (k Key) ID(d Dimension) int {
	switch d {
	case State:
		return k.State
	case Measure:
		return k.Measure
	case Answer:
		return k.Answer
	}
	return 0
}

// Group is one bucket of a GroupBy
type Group struct {
	Key  Key
	View View
}

// GroupBy partitions the view over any combination of dimensions. Groups
// are ordered by their natural keys, ascending, in the order dims are given.
func (v View) GroupBy(dims ...Dimension) []Group {
	if len(dims) == 0 {
		return []Group{{View: v}}
	}

	pos := make(map[Key]int)
	var groups []Group
	for _, i := range v.idx {
		f := v.store.facts[i]
		var k Key
		for _, d := range dims {
			switch d {
			case State:
				k.State = f.StateID
			case Measure:
				k.Measure = f.MeasureID
			case Answer:
				k.Answer = f.AnswerID
			}
		}
		p, ok := pos[k]
		if !ok {
			p = len(groups)
			pos[k] = p
			groups = append(groups, Group{Key: k, View: View{store: v.store}})
		}
		groups[p].View.idx = append(groups[p].View.idx, i)
	}

	sort.SliceStable(groups, func(a, b int) bool {
		for _, d := range dims {
			la := v.store.Label(d, groups[a].Key.ID(d))
			lb := v.store.Label(d, groups[b].Key.ID(d))
			if la != lb {
				return la < lb
			}
		}
		return false
	})
	return groups
}

// Count returns the number of facts, null or not
func (v View) Count() int {
	return len(v.idx)
}

// NullCount returns the number of facts without a percentage
func (v View) NullCount() int {
	n := 0
	for _, i := range v.idx {
		if !v.store.facts[i].Percent.Valid {
			n++
		}
	}
	return n
}

// NumericCount returns the number of facts with a percentage
func (v View) NumericCount() int {
	return v.Count() - v.NullCount()
}

func (v View) values() []float64 {
	out := make([]float64, 0, len(v.idx))
	for _, i := range v.idx {
		if p := v.store.facts[i].Percent; p.Valid {
			out = append(out, p.Float())
		}
	}
	return out
}

// Mean averages the non-null percentages. ok is false when there are none.
func (v View) Mean() (mean float64, ok bool) {
	vals := v.values()
	if len(vals) == 0 {
		return 0, false
	}
	var sum float64
	for _, x := range vals {
		sum += x
	}
	return sum / float64(len(vals)), true
}

// StdDevPop is the population standard deviation of the non-null
// percentages. A single value gives 0.
func (v View) StdDevPop() (float64, bool) {
	vals := v.values()
	if len(vals) == 0 {
		return 0, false
	}
	var sum float64
	for _, x := range vals {
		sum += x
	}
	mean := sum / float64(len(vals))
	var sq float64
	for _, x := range vals {
		d := x - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals))), true
}

// Min returns the smallest non-null percentage
func (v View) Min() (float64, bool) {
	vals := v.values()
	if len(vals) == 0 {
		return 0, false
	}
	m := vals[0]
	for _, x := range vals[1:] {
		if x < m {
			m = x
		}
	}
	return m, true
}

// Max returns the largest non-null percentage
func (v View) Max() (float64, bool) {
	vals := v.values()
	if len(vals) == 0 {
		return 0, false
	}
	m := vals[0]
	for _, x := range vals[1:] {
		if x > m {
			m = x
		}
	}
	return m, true
}

// ShareAtLeast returns the percentage (0-100) of non-null values that are
// greater than or equal to threshold.
func (v View) ShareAtLeast(threshold float64) (float64, bool) {
	vals := v.values()
	if len(vals) == 0 {
		return 0, false
	}
	hits := 0
	for _, x := range vals {
		if x >= threshold {
			hits++
		}
	}
	return 100 * float64(hits) / float64(len(vals)), true
}

// DateRange returns the earliest start and the latest end date
func (v View) DateRange() (start, end time.Time, ok bool) {
	for n, i := range v.idx {
		f := v.store.facts[i]
		if n == 0 || f.StartDate.Before(start) {
			start = f.StartDate
		}
		if n == 0 || f.EndDate.After(end) {
			end = f.EndDate
		}
	}
	return start, end, len(v.idx) > 0
}
