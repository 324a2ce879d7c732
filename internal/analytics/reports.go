package analytics

import (
	"fmt"
	"strings"

	"hcahps/internal/store"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

// Default report parameters
const (
	DefaultLimit       = 10
	DefaultTopK        = 3
	DefaultThreshold   = 80.0
	DefaultGapMeasureA = "H_COMP_1"
	DefaultGapMeasureB = "H_COMP_2"
)

// DateFormat is how reporting dates are displayed
const DateFormat = "2006-01-02"

// Params tunes the report battery
type Params struct {
	Limit       int     `json:"limit"`
	TopK        int     `json:"top_k"`
	Threshold   float64 `json:"threshold"`
	GapMeasureA string  `json:"gap_measure_a"`
	GapMeasureB string  `json:"gap_measure_b"`
}

// DefaultParams returns the built-in parameters
func DefaultParams() Params {
	return Params{
		Limit:       DefaultLimit,
		TopK:        DefaultTopK,
		Threshold:   DefaultThreshold,
		GapMeasureA: DefaultGapMeasureA,
		GapMeasureB: DefaultGapMeasureB,
	}
}

// ParamsFromConfig takes the numeric parameters as configured, so an
// explicit 0 keeps its meaning (no limit, no cut-off, threshold 0). The
// config layer supplies the defaults. Blank measure identifiers fall back
// to the default pair.
func ParamsFromConfig(cfg models.Analytics) Params {
	p := DefaultParams()
	p.Limit = cfg.Limit
	p.TopK = cfg.TopK
	p.Threshold = cfg.Threshold
	if cfg.GapMeasureA != "" {
		p.GapMeasureA = cfg.GapMeasureA
	}
	if cfg.GapMeasureB != "" {
		p.GapMeasureB = cfg.GapMeasureB
	}
	return p
}

// Validate checks parameter ranges
func (p Params) Validate() error {
	if p.Limit < 0 {
		return apperrors.ValidationError("limit", p.Limit, "must not be negative")
	}
	if p.TopK < 0 {
		return apperrors.ValidationError("top_k", p.TopK, "must not be negative")
	}
	if p.Threshold < 0 || p.Threshold > 100 {
		return apperrors.ValidationError("threshold", p.Threshold, "must be between 0 and 100")
	}
	if strings.TrimSpace(p.GapMeasureA) == "" || strings.TrimSpace(p.GapMeasureB) == "" {
		return apperrors.ValidationError("gap_measure", p.GapMeasureA+","+p.GapMeasureB, "both measure identifiers are required")
	}
	return nil
}

// Report is a rendered answer to one question. Rows hold strings, ints and
// float64 values already rounded to two decimals.
type Report struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Definition describes one report of the battery
type Definition struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	run   func(e *Engine, p Params) (*Report, error)
}

var (
	byState   = []store.Dimension{store.State}
	byMeasure = []store.Dimension{store.Measure}
)

var catalog = []Definition{
	{ID: "coverage", Title: "Total rows and null vs numeric percentages", run: func(e *Engine, _ Params) (*Report, error) {
		return coverageReport(e.Coverage(), nil), nil
	}},
	{ID: "coverage-by-state", Title: "Null vs numeric percentages per state", run: func(e *Engine, _ Params) (*Report, error) {
		return coverageReport(e.Coverage(store.State), []string{"state"}), nil
	}},
	{ID: "coverage-by-measure", Title: "Null vs numeric percentages per measure", run: func(e *Engine, _ Params) (*Report, error) {
		return coverageReport(e.Coverage(store.Measure), []string{"measure"}), nil
	}},
	{ID: "missing-by-state", Title: "States with the most unavailable percentages", run: func(e *Engine, p Params) (*Report, error) {
		return missingReport(e.Missing(byState, store.Descending, p.Limit), "state"), nil
	}},
	{ID: "missing-rate-by-measure", Title: "Measures with the highest missing rate", run: func(e *Engine, p Params) (*Report, error) {
		return missingReport(e.MissingRate(byMeasure, store.Descending, p.Limit), "measure"), nil
	}},
	{ID: "top-states", Title: "States with the highest average percentage", run: func(e *Engine, p Params) (*Report, error) {
		return meanReport(e.Means(byState, store.Descending, p.Limit), "state"), nil
	}},
	{ID: "bottom-states", Title: "States with the lowest average percentage", run: func(e *Engine, p Params) (*Report, error) {
		return meanReport(e.Means(byState, store.Ascending, p.Limit), "state"), nil
	}},
	{ID: "top-measures", Title: "Measures with the highest average percentage", run: func(e *Engine, p Params) (*Report, error) {
		return meanReport(e.Means(byMeasure, store.Descending, p.Limit), "measure"), nil
	}},
	{ID: "bottom-measures", Title: "Measures with the lowest average percentage", run: func(e *Engine, p Params) (*Report, error) {
		return meanReport(e.Means(byMeasure, store.Ascending, p.Limit), "measure"), nil
	}},
	{ID: "top-states-per-measure", Title: "Top states within each measure", run: func(e *Engine, p Params) (*Report, error) {
		return rankReport(e.RankWithin(store.Measure, store.State, store.Descending, p.TopK))("measure", "state")
	}},
	{ID: "bottom-states-per-measure", Title: "Bottom states within each measure", run: func(e *Engine, p Params) (*Report, error) {
		return rankReport(e.RankWithin(store.Measure, store.State, store.Ascending, p.TopK))("measure", "state")
	}},
	{ID: "top-measures-per-state", Title: "Strongest measures within each state", run: func(e *Engine, p Params) (*Report, error) {
		return rankReport(e.RankWithin(store.State, store.Measure, store.Descending, p.TopK))("state", "measure")
	}},
	{ID: "best-worst-measure", Title: "Best and worst measure of every state", run: func(e *Engine, _ Params) (*Report, error) {
		rows, err := e.Extremes(store.State, store.Measure)
		if err != nil {
			return nil, err
		}
		r := &Report{Columns: []string{"state", "best_measure", "best_avg", "worst_measure", "worst_avg"}}
		for _, row := range rows {
			r.Rows = append(r.Rows, []any{row.Partition, row.Best, row.BestMean, row.Worst, row.WorstMean})
		}
		return r, nil
	}},
	{ID: "state-consistency", Title: "Most consistent states by standard deviation", run: func(e *Engine, p Params) (*Report, error) {
		return dispersionReport(e.Dispersion(byState, p.Limit), "state"), nil
	}},
	{ID: "measure-dispersion", Title: "Measures ordered by spread across states and answers", run: func(e *Engine, p Params) (*Report, error) {
		return dispersionReport(e.Dispersion(byMeasure, p.Limit), "measure"), nil
	}},
	{ID: "score-distribution", Title: "Distribution of percentages in 20 point buckets", run: func(e *Engine, _ Params) (*Report, error) {
		r := &Report{Columns: []string{"bucket", "count"}}
		for _, b := range e.Histogram() {
			r.Rows = append(r.Rows, []any{b.Label, b.Count})
		}
		return r, nil
	}},
	{ID: "measure-gap", Title: "Gap between two measures per state", run: func(e *Engine, p Params) (*Report, error) {
		rows, err := e.Gap(p.GapMeasureA, p.GapMeasureB, store.Descending, p.Limit)
		if err != nil {
			return nil, err
		}
		r := &Report{Columns: []string{"state", p.GapMeasureA + "_avg", p.GapMeasureB + "_avg", "gap"}}
		for _, row := range rows {
			r.Rows = append(r.Rows, []any{row.State, row.MeanA, row.MeanB, row.Gap})
		}
		return r, nil
	}},
	{ID: "high-share-by-state", Title: "Share of percentages at or above the threshold per state", run: func(e *Engine, p Params) (*Report, error) {
		return shareReport(e.ThresholdShare(byState, p.Threshold, store.Descending, p.Limit))("state")
	}},
	{ID: "high-share-by-measure", Title: "Share of percentages at or above the threshold per measure", run: func(e *Engine, p Params) (*Report, error) {
		return shareReport(e.ThresholdShare(byMeasure, p.Threshold, store.Descending, p.Limit))("measure")
	}},
	{ID: "reporting-period", Title: "Reporting period covered by the data", run: func(e *Engine, _ Params) (*Report, error) {
		r := &Report{Columns: []string{"start_date", "end_date"}}
		period, err := e.Period()
		if apperrors.GetErrorCode(err) == apperrors.ErrCodeEmptyAggregation {
			return r, nil
		}
		if err != nil {
			return nil, err
		}
		r.Rows = append(r.Rows, []any{period.Start.Format(DateFormat), period.End.Format(DateFormat)})
		return r, nil
	}},
}

// Catalog lists the report battery in presentation order
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup finds a report definition by id
func Lookup(id string) (Definition, bool) {
	for _, d := range catalog {
		if d.ID == id {
			return d, true
		}
	}
	return Definition{}, false
}

// Run renders a single report
func (e *Engine) Run(id string, p Params) (*Report, error) {
	def, ok := Lookup(strings.TrimSpace(id))
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeUnknownReport, fmt.Sprintf("unknown report %q", id)).
			WithContext("report", id).
			WithSuggestions("Run 'hcahps report --list' to see the available reports")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	r, err := def.run(e, p)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.GetErrorCode(err), fmt.Sprintf("report %s failed", def.ID)).
			WithContext("report", def.ID)
	}
	r.ID, r.Title = def.ID, def.Title
	if r.Rows == nil {
		r.Rows = [][]any{}
	}
	return r, nil
}

// RunAll renders the whole battery in catalog order
func (e *Engine) RunAll(p Params) ([]*Report, error) {
	return e.RunSelected(nil, p)
}

// RunSelected renders the given reports in the order given; no ids means
// the whole battery.
func (e *Engine) RunSelected(ids []string, p Params) ([]*Report, error) {
	if len(ids) == 0 {
		for _, d := range catalog {
			ids = append(ids, d.ID)
		}
	}
	reports := make([]*Report, 0, len(ids))
	for _, id := range ids {
		r, err := e.Run(id, p)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func coverageReport(rows []CoverageRow, dims []string) *Report {
	r := &Report{Columns: append(append([]string{}, dims...), "total_rows", "null", "numeric")}
	for _, row := range rows {
		r.Rows = append(r.Rows, append(labelCells(row.Labels), row.Total, row.Null, row.Numeric))
	}
	return r
}

func missingReport(rows []MissingRow, dim string) *Report {
	r := &Report{Columns: []string{dim, "total_rows", "null", "null_rate"}}
	for _, row := range rows {
		r.Rows = append(r.Rows, append(labelCells(row.Labels), row.Total, row.Null, row.Rate))
	}
	return r
}

func meanReport(rows []MeanRow, dim string) *Report {
	r := &Report{Columns: []string{dim, "avg_percent", "n"}}
	for _, row := range rows {
		r.Rows = append(r.Rows, append(labelCells(row.Labels), row.Mean, row.N))
	}
	return r
}

func rankReport(rows []RankRow, err error) func(partition, member string) (*Report, error) {
	return func(partition, member string) (*Report, error) {
		if err != nil {
			return nil, err
		}
		r := &Report{Columns: []string{partition, member, "avg_percent", "rank"}}
		for _, row := range rows {
			r.Rows = append(r.Rows, []any{row.Partition, row.Member, row.Mean, row.Rank})
		}
		return r, nil
	}
}

func dispersionReport(rows []DispersionRow, dim string) *Report {
	r := &Report{Columns: []string{dim, "avg_percent", "stddev", "n"}}
	for _, row := range rows {
		r.Rows = append(r.Rows, append(labelCells(row.Labels), row.Mean, row.StdDev, row.N))
	}
	return r
}

func shareReport(rows []ShareRow, err error) func(dim string) (*Report, error) {
	return func(dim string) (*Report, error) {
		if err != nil {
			return nil, err
		}
		r := &Report{Columns: []string{dim, "share_percent", "n"}}
		for _, row := range rows {
			r.Rows = append(r.Rows, append(labelCells(row.Labels), row.Share, row.N))
		}
		return r, nil
	}
}

func labelCells(labels []string) []any {
	out := make([]any, len(labels), len(labels)+4)
	for i, l := range labels {
		out[i] = l
	}
	return out
}
