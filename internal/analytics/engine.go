// Package analytics answers the survey questions over a fact store. Every
// query is a pure read composed from the store's filter, group, aggregate
// and rank primitives; the report battery in reports.go binds them to
// fixed titles and columns.
package analytics

import (
	"math"
	"slices"

	"hcahps/internal/store"
)

// Engine runs queries against one store
type Engine struct {
	store *store.Store
}

// New creates an engine over st
func New(st *store.Store) *Engine {
	return &Engine{store: st}
}

// Store returns the underlying fact store
func (e *Engine) Store() *store.Store {
	return e.store
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (e *Engine) labels(k store.Key, by []store.Dimension) []string {
	out := make([]string, len(by))
	for i, d := range by {
		out[i] = e.store.Label(d, k.ID(d))
	}
	return out
}

func compareLabels(a, b []string) int {
	return slices.Compare(a, b)
}

// sortBy orders rows by value in direction o, then by labels ascending.
func sortBy[T any](rows []T, value func(T) float64, labels func(T) []string, o store.Order) {
	slices.SortStableFunc(rows, func(a, b T) int {
		if c := store.CompareFloat(value(a), value(b), o); c != 0 {
			return c
		}
		return compareLabels(labels(a), labels(b))
	})
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}
