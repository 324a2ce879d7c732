package analytics

import (
	"math"
	"strings"
	"time"

	"hcahps/internal/store"
	apperrors "hcahps/pkg/errors"
)

// CoverageRow counts facts of one group, or of the whole store
type CoverageRow struct {
	Labels  []string `json:"labels,omitempty"`
	Total   int      `json:"total_rows"`
	Null    int      `json:"null"`
	Numeric int      `json:"numeric"`
}

// Coverage counts null and numeric percentages overall (no dims) or per
// group of the given dimensions.
func (e *Engine) Coverage(by ...store.Dimension) []CoverageRow {
	groups := e.store.All().GroupBy(by...)
	rows := make([]CoverageRow, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, CoverageRow{
			Labels:  e.labels(g.Key, by),
			Total:   g.View.Count(),
			Null:    g.View.NullCount(),
			Numeric: g.View.NumericCount(),
		})
	}
	return rows
}

// MissingRow is the missingness of one group. Rate is a percentage.
type MissingRow struct {
	Labels []string `json:"labels"`
	Total  int      `json:"total_rows"`
	Null   int      `json:"null"`
	Rate   float64  `json:"null_rate"`
}

func (e *Engine) missing(by []store.Dimension) []MissingRow {
	groups := e.store.All().GroupBy(by...)
	rows := make([]MissingRow, 0, len(groups))
	for _, g := range groups {
		total, nulls := g.View.Count(), g.View.NullCount()
		row := MissingRow{Labels: e.labels(g.Key, by), Total: total, Null: nulls}
		// the overall group of an empty store has no rows
		if total > 0 {
			row.Rate = round2(100 * float64(nulls) / float64(total))
		}
		rows = append(rows, row)
	}
	return rows
}

// Missing ranks groups by their number of null percentages.
func (e *Engine) Missing(by []store.Dimension, order store.Order, limit int) []MissingRow {
	rows := e.missing(by)
	sortBy(rows, func(r MissingRow) float64 { return float64(r.Null) }, func(r MissingRow) []string { return r.Labels }, order)
	return truncate(rows, limit)
}

// MissingRate ranks groups by the share of null percentages.
func (e *Engine) MissingRate(by []store.Dimension, order store.Order, limit int) []MissingRow {
	rows := e.missing(by)
	sortBy(rows, func(r MissingRow) float64 { return r.Rate }, func(r MissingRow) []string { return r.Labels }, order)
	return truncate(rows, limit)
}

// MeanRow is the average percentage of one group over N numeric facts
type MeanRow struct {
	Labels []string `json:"labels"`
	Mean   float64  `json:"mean"`
	N      int      `json:"n"`
}

// Means averages the non-null percentages per group. Groups without a
// single numeric value are left out.
func (e *Engine) Means(by []store.Dimension, order store.Order, limit int) []MeanRow {
	groups := e.store.Filter(store.NonNull()).GroupBy(by...)
	rows := make([]MeanRow, 0, len(groups))
	for _, g := range groups {
		mean, ok := g.View.Mean()
		if !ok {
			continue
		}
		rows = append(rows, MeanRow{Labels: e.labels(g.Key, by), Mean: round2(mean), N: g.View.NumericCount()})
	}
	sortBy(rows, func(r MeanRow) float64 { return r.Mean }, func(r MeanRow) []string { return r.Labels }, order)
	return truncate(rows, limit)
}

// RankRow is one member of a partition with its dense rank
type RankRow struct {
	Partition string  `json:"partition"`
	Member    string  `json:"member"`
	Mean      float64 `json:"mean"`
	N         int     `json:"n"`
	Rank      int     `json:"rank"`
}

type cell struct {
	partition string
	member    string
	mean      float64
	n         int
}

func (e *Engine) cells(partition, member store.Dimension) []cell {
	groups := e.store.Filter(store.NonNull()).GroupBy(partition, member)
	out := make([]cell, 0, len(groups))
	for _, g := range groups {
		mean, ok := g.View.Mean()
		if !ok {
			continue
		}
		out = append(out, cell{
			partition: e.store.Label(partition, g.Key.ID(partition)),
			member:    e.store.Label(member, g.Key.ID(member)),
			mean:      round2(mean),
			n:         g.View.NumericCount(),
		})
	}
	return out
}

func cellPartition(c cell) string { return c.partition }

func cellMember(a, b cell) int { return strings.Compare(a.member, b.member) }

func cellMean(o store.Order) func(a, b cell) int {
	return func(a, b cell) int { return store.CompareFloat(a.mean, b.mean, o) }
}

// RankWithin averages every (partition, member) pair and dense-ranks the
// members of each partition. Descending order yields a top-K, ascending a
// bottom-K. k <= 0 keeps every rank.
func (e *Engine) RankWithin(partition, member store.Dimension, order store.Order, k int) ([]RankRow, error) {
	if partition == member {
		return nil, apperrors.ValidationError("member", member.String(), "must differ from the partition dimension")
	}

	ranked := store.Top(store.Rank(e.cells(partition, member), cellPartition, cellMean(order), cellMember, store.DenseRank), k)
	rows := make([]RankRow, 0, len(ranked))
	for _, r := range ranked {
		rows = append(rows, RankRow{
			Partition: r.Partition,
			Member:    r.Item.member,
			Mean:      r.Item.mean,
			N:         r.Item.n,
			Rank:      r.Rank,
		})
	}
	return rows, nil
}

// ExtremeRow holds the best and worst member of one partition
type ExtremeRow struct {
	Partition string  `json:"partition"`
	Best      string  `json:"best"`
	BestMean  float64 `json:"best_mean"`
	Worst     string  `json:"worst"`
	WorstMean float64 `json:"worst_mean"`
}

// Extremes picks, per partition, the member with the highest and the one
// with the lowest average. Ties go to the smaller natural key.
func (e *Engine) Extremes(partition, member store.Dimension) ([]ExtremeRow, error) {
	if partition == member {
		return nil, apperrors.ValidationError("member", member.String(), "must differ from the partition dimension")
	}

	cells := e.cells(partition, member)
	best := store.Rank(cells, cellPartition, cellMean(store.Descending), cellMember, store.RowNumber)
	worst := store.Rank(cells, cellPartition, cellMean(store.Ascending), cellMember, store.RowNumber)

	var rows []ExtremeRow
	pos := make(map[string]int)
	for _, r := range best {
		if r.Rank != 1 {
			continue
		}
		pos[r.Partition] = len(rows)
		rows = append(rows, ExtremeRow{Partition: r.Partition, Best: r.Item.member, BestMean: r.Item.mean})
	}
	for _, r := range worst {
		if r.Rank != 1 {
			continue
		}
		row := &rows[pos[r.Partition]]
		row.Worst, row.WorstMean = r.Item.member, r.Item.mean
	}
	return rows, nil
}

// DispersionRow is the spread of one group's percentages
type DispersionRow struct {
	Labels []string `json:"labels"`
	Mean   float64  `json:"mean"`
	StdDev float64  `json:"stddev"`
	N      int      `json:"n"`
}

// Dispersion computes mean and population standard deviation per group,
// most consistent group first.
func (e *Engine) Dispersion(by []store.Dimension, limit int) []DispersionRow {
	groups := e.store.Filter(store.NonNull()).GroupBy(by...)
	rows := make([]DispersionRow, 0, len(groups))
	for _, g := range groups {
		mean, ok := g.View.Mean()
		if !ok {
			continue
		}
		sd, _ := g.View.StdDevPop()
		rows = append(rows, DispersionRow{
			Labels: e.labels(g.Key, by),
			Mean:   round2(mean),
			StdDev: round2(sd),
			N:      g.View.NumericCount(),
		})
	}
	sortBy(rows, func(r DispersionRow) float64 { return r.StdDev }, func(r DispersionRow) []string { return r.Labels }, store.Ascending)
	return truncate(rows, limit)
}

// Bucket is one histogram bin. Lower and Upper are inclusive labels; a value
// belongs to the bin when Lower <= v < Lower+20, with 100 in the last bin.
type Bucket struct {
	Label string `json:"bucket"`
	Lower int    `json:"lower"`
	Upper int    `json:"upper"`
	Count int    `json:"count"`
}

const bucketWidth = 20

// Histogram counts numeric percentages in the bins 0-19, 20-39, 40-59,
// 60-79 and 80-100. Empty bins are reported with a zero count.
func (e *Engine) Histogram() []Bucket {
	buckets := []Bucket{
		{Label: "0-19", Lower: 0, Upper: 19},
		{Label: "20-39", Lower: 20, Upper: 39},
		{Label: "40-59", Lower: 40, Upper: 59},
		{Label: "60-79", Lower: 60, Upper: 79},
		{Label: "80-100", Lower: 80, Upper: 100},
	}

	numeric := e.store.Filter(store.NonNull())
	for i := 0; i < numeric.Len(); i++ {
		idx := int(math.Floor(numeric.Fact(i).Percent.Float() / bucketWidth))
		if idx >= len(buckets) {
			idx = len(buckets) - 1
		}
		if idx < 0 {
			idx = 0
		}
		buckets[idx].Count++
	}
	return buckets
}

// GapRow compares two measures within one state
type GapRow struct {
	State string  `json:"state"`
	MeanA float64 `json:"mean_a"`
	MeanB float64 `json:"mean_b"`
	Gap   float64 `json:"gap"`
}

// Gap computes per-state averages of measures a and b, keeps the states
// that have both, and orders them by a minus b. An identifier that does not
// occur in the store yields no rows.
func (e *Engine) Gap(a, b string, order store.Order, limit int) ([]GapRow, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" {
		return nil, apperrors.ValidationError("gap_measure_a", a, "measure identifier is required")
	}
	if b == "" {
		return nil, apperrors.ValidationError("gap_measure_b", b, "measure identifier is required")
	}

	dims := e.store.Dimensions()
	idA, okA := dims.MeasureID(a)
	idB, okB := dims.MeasureID(b)
	if !okA || !okB {
		return []GapRow{}, nil
	}

	meansB := make(map[int]float64)
	for _, g := range e.store.Filter(store.NonNull(), store.ByMeasure(idB)).GroupBy(store.State) {
		if m, ok := g.View.Mean(); ok {
			meansB[g.Key.State] = m
		}
	}

	var rows []GapRow
	for _, g := range e.store.Filter(store.NonNull(), store.ByMeasure(idA)).GroupBy(store.State) {
		ma, ok := g.View.Mean()
		if !ok {
			continue
		}
		mb, ok := meansB[g.Key.State]
		if !ok {
			continue
		}
		rows = append(rows, GapRow{
			State: e.store.Label(store.State, g.Key.State),
			MeanA: round2(ma),
			MeanB: round2(mb),
			Gap:   round2(ma - mb),
		})
	}
	sortBy(rows, func(r GapRow) float64 { return r.Gap }, func(r GapRow) []string { return []string{r.State} }, order)
	return truncate(rows, limit), nil
}

// ShareRow is the percentage of a group's numeric values at or above a
// threshold
type ShareRow struct {
	Labels []string `json:"labels"`
	Share  float64  `json:"share"`
	N      int      `json:"n"`
}

// ThresholdShare reports, per group, how many numeric percentages reach
// threshold, as a percentage in [0, 100].
func (e *Engine) ThresholdShare(by []store.Dimension, threshold float64, order store.Order, limit int) ([]ShareRow, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 100 {
		return nil, apperrors.ValidationError("threshold", threshold, "must be between 0 and 100")
	}

	groups := e.store.Filter(store.NonNull()).GroupBy(by...)
	rows := make([]ShareRow, 0, len(groups))
	for _, g := range groups {
		share, ok := g.View.ShareAtLeast(threshold)
		if !ok {
			continue
		}
		rows = append(rows, ShareRow{Labels: e.labels(g.Key, by), Share: round2(share), N: g.View.NumericCount()})
	}
	sortBy(rows, func(r ShareRow) float64 { return r.Share }, func(r ShareRow) []string { return r.Labels }, order)
	return truncate(rows, limit), nil
}

// PeriodRow is the overall reporting range
type PeriodRow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Period returns the earliest start and latest end date over all facts.
func (e *Engine) Period() (PeriodRow, error) {
	start, end, ok := e.store.DateRange()
	if !ok {
		return PeriodRow{}, apperrors.New(apperrors.ErrCodeEmptyAggregation, "the fact store is empty").
			WithSeverity(apperrors.SeverityWarning)
	}
	return PeriodRow{Start: start, End: end}, nil
}
