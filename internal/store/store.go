// Package store holds the cleaned facts of one batch together with their
// dimensions, and provides the filter, group and aggregate primitives the
// analytics queries are composed from. A Store is immutable once built and
// safe for concurrent readers.
package store

import (
	"fmt"
	"strings"
	"time"

	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

// Dimension names a grouping axis of the fact table.
type Dimension int

const (
	State Dimension = iota + 1
	Measure
	Answer
)

func (d Dimension) String() string {
	switch d {
	case State:
		return "state"
	case Measure:
		return "measure"
	case Answer:
		return "answer"
	default:
		return fmt.Sprintf("dimension(%d)", int(d))
	}
}

// ParseDimension accepts "state", "measure" or "answer".
func ParseDimension(s string) (Dimension, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "state":
		return State, nil
	case "measure":
		return Measure, nil
	case "answer":
		return Answer, nil
	default:
		return 0, apperrors.ValidationError("dimension", s, "expected state, measure or answer")
	}
}

// Store is the materialised fact table.
type Store struct {
	dims  *models.Dimensions
	facts []models.Fact
}

// New builds a store, refusing facts whose references do not resolve.
func New(dims *models.Dimensions, facts []models.Fact) (*Store, error) {
	for i, f := range facts {
		if f.StateID == 0 || f.MeasureID == 0 || f.AnswerID == 0 || !dims.Resolves(f) {
			return nil, apperrors.New(apperrors.ErrCodeIntegrityViolation, "fact references a missing dimension row").
				WithContext("fact_index", i).
				WithContext("state_id", f.StateID).
				WithContext("measure_id", f.MeasureID).
				WithContext("answer_id", f.AnswerID)
		}
	}
	return &Store{dims: dims, facts: facts}, nil
}

// Dimensions returns the lookup tables
func (s *Store) Dimensions() *models.Dimensions {
	return s.dims
}

// Len returns the number of facts
func (s *Store) Len() int {
	return len(s.facts)
}

// Facts returns the facts in load order. Callers must not modify the slice.
func (s *Store) Facts() []models.Fact {
	return s.facts
}

// All returns a view over every fact
func (s *Store) All() View {
	idx := make([]int, len(s.facts))
	for i := range idx {
		idx[i] = i
	}
	return View{store: s, idx: idx}
}

// Filter is shorthand for All().Filter(preds...)
func (s *Store) Filter(preds ...Predicate) View {
	return s.All().Filter(preds...)
}

// Label returns the natural key for a surrogate id of dimension d.
func (s *Store) Label(d Dimension, id int) string {
	switch d {
	case State:
		if row, ok := s.dims.State(id); ok {
			return row.Code
		}
	case Measure:
		if row, ok := s.dims.Measure(id); ok {
			return row.MeasureID
		}
	case Answer:
		if row, ok := s.dims.Answer(id); ok {
			return row.Description
		}
	}
	return ""
}

// Question returns the survey question text of a measure id.
func (s *Store) Question(measureID int) string {
	if row, ok := s.dims.Measure(measureID); ok {
		return row.Question
	}
	return ""
}

// DateRange returns the earliest start and latest end date of all facts.
func (s *Store) DateRange() (start, end time.Time, ok bool) {
	return s.All().DateRange()
}
