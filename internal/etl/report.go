package etl

import (
	"sort"

	apperrors "hcahps/pkg/errors"
)

// Reason classifies why a raw row produced no fact.
type Reason string

const (
	ReasonMalformedPercentage Reason = "malformed_percentage"
	ReasonMalformedDate       Reason = "malformed_date"
	ReasonUnresolvedDimension Reason = "unresolved_dimension"
)

// Issue describes one skipped row.
type Issue struct {
	Line   int    `json:"line"`
	Reason Reason `json:"reason"`
	Field  string `json:"field"`
	Value  string `json:"value"`
	Detail string `json:"detail"`
}

// Report summarises a run. InputRows == Facts + Skipped always holds.
type Report struct {
	InputRows int            `json:"input_rows"`
	Facts     int            `json:"facts"`
	Skipped   int            `json:"skipped"`
	ByReason  map[Reason]int `json:"by_reason"`
	Issues    []Issue        `json:"issues,omitempty"`
}

func newReport() *Report {
	return &Report{ByReason: make(map[Reason]int)}
}

func (r *Report) skip(issue Issue) {
	r.Skipped++
	r.ByReason[issue.Reason]++
	r.Issues = append(r.Issues, issue)
}

// merge appends other's counters and issues to r
func (r *Report) merge(other *Report) {
	r.InputRows += other.InputRows
	r.Facts += other.Facts
	r.Skipped += other.Skipped
	for reason, n := range other.ByReason {
		r.ByReason[reason] += n
	}
	r.Issues = append(r.Issues, other.Issues...)
}

// Reasons returns the reasons present in the report, sorted.
func (r *Report) Reasons() []Reason {
	reasons := make([]Reason, 0, len(r.ByReason))
	for reason, n := range r.ByReason {
		if n > 0 {
			reasons = append(reasons, reason)
		}
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	return reasons
}

// SkippedByReason returns the counters keyed by plain strings, for metrics.
func (r *Report) SkippedByReason() map[string]int {
	out := make(map[string]int, len(r.ByReason))
	for reason, n := range r.ByReason {
		out[string(reason)] = n
	}
	return out
}

func reasonFor(code apperrors.ErrorCode) Reason {
	switch code {
	case apperrors.ErrCodeMalformedPercentage:
		return ReasonMalformedPercentage
	case apperrors.ErrCodeMalformedDate:
		return ReasonMalformedDate
	default:
		return ReasonUnresolvedDimension
	}
}
