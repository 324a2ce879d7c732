package store

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

var (
	periodStart = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
)

func pct(v float64) models.Percent { return models.NewPercent(v) }

func testStore(t *testing.T) *Store {
	t.Helper()
	dims := models.NewDimensions(
		[]models.StateDim{{ID: 1, Code: "CA"}, {ID: 2, Code: "AZ"}},
		[]models.MeasureDim{{ID: 1, MeasureID: "H_COMP_2"}, {ID: 2, MeasureID: "H_COMP_1"}},
		[]models.AnswerDim{{ID: 1, Description: "Always"}, {ID: 2, Description: "Never"}},
	)
	facts := []models.Fact{
		{StateID: 1, MeasureID: 1, AnswerID: 1, Percent: pct(90), StartDate: periodStart, EndDate: periodEnd},
		{StateID: 1, MeasureID: 2, AnswerID: 1, Percent: pct(80), StartDate: periodStart, EndDate: periodEnd},
		{StateID: 1, MeasureID: 2, AnswerID: 2, StartDate: periodStart, EndDate: periodEnd},
		{StateID: 2, MeasureID: 2, AnswerID: 1, Percent: pct(100), StartDate: periodStart.AddDate(0, -6, 0), EndDate: periodEnd},
		{StateID: 2, MeasureID: 2, AnswerID: 2, Percent: pct(0), StartDate: periodStart, EndDate: periodEnd.AddDate(0, 3, 0)},
	}
	s, err := New(dims, facts)
	require.NoError(t, err)
	return s
}

func TestNewRejectsDanglingReferences(t *testing.T) {
	dims := models.NewDimensions([]models.StateDim{{ID: 1, Code: "AZ"}}, nil, nil)
	_, err := New(dims, []models.Fact{{StateID: 1, MeasureID: 1, AnswerID: 1}})

	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeIntegrityViolation, apperrors.GetErrorCode(err))
}

func TestFilterAndCounts(t *testing.T) {
	s := testStore(t)

	assert.Equal(t, 5, s.Len())
	assert.Equal(t, 1, s.All().NullCount())
	assert.Equal(t, 4, s.All().NumericCount())
	assert.Equal(t, 4, s.Filter(NonNull()).Len())
	assert.Equal(t, 1, s.Filter(IsNull()).Len())
	assert.Equal(t, 2, s.Filter(ByState(2)).Len())
	assert.Equal(t, 1, s.Filter(ByState(1), ByMeasure(2), ByAnswer(2)).Len())
}

func TestGroupByOrdersByNaturalKey(t *testing.T) {
	s := testStore(t)

	groups := s.All().GroupBy(State)
	require.Len(t, groups, 2)
	assert.Equal(t, "AZ", s.Label(State, groups[0].Key.State))
	assert.Equal(t, "CA", s.Label(State, groups[1].Key.State))
	assert.Zero(t, groups[0].Key.Measure)

	groups = s.All().GroupBy(Measure, State)
	labels := make([]string, len(groups))
	for i, g := range groups {
		labels[i] = s.Label(Measure, g.Key.Measure) + "/" + s.Label(State, g.Key.State)
	}
	assert.Equal(t, []string{"H_COMP_1/AZ", "H_COMP_1/CA", "H_COMP_2/CA"}, labels)

	all := s.All().GroupBy()
	require.Len(t, all, 1)
	assert.Equal(t, 5, all[0].View.Len())
}

func TestAggregates(t *testing.T) {
	s := testStore(t)
	az := s.Filter(ByState(2))

	mean, ok := az.Mean()
	require.True(t, ok)
	assert.Equal(t, 50.0, mean)

	sd, ok := az.StdDevPop()
	require.True(t, ok)
	assert.Equal(t, 50.0, sd)

	minV, _ := az.Min()
	maxV, _ := az.Max()
	assert.Equal(t, 0.0, minV)
	assert.Equal(t, 100.0, maxV)

	share, ok := s.All().ShareAtLeast(80)
	require.True(t, ok)
	assert.Equal(t, 75.0, share)
}

func TestAggregatesOnSingleAndEmpty(t *testing.T) {
	s := testStore(t)

	one := s.Filter(ByState(1), ByMeasure(1))
	sd, ok := one.StdDevPop()
	require.True(t, ok)
	assert.Equal(t, 0.0, sd)

	empty := s.Filter(IsNull())
	_, ok = empty.Mean()
	assert.False(t, ok)
	_, ok = empty.StdDevPop()
	assert.False(t, ok)
	_, ok = empty.ShareAtLeast(80)
	assert.False(t, ok)
	_, ok = empty.Min()
	assert.False(t, ok)
}

func TestDateRange(t *testing.T) {
	s := testStore(t)

	start, end, ok := s.DateRange()
	require.True(t, ok)
	assert.Equal(t, periodStart.AddDate(0, -6, 0), start)
	assert.Equal(t, periodEnd.AddDate(0, 3, 0), end)

	_, _, ok = s.Filter(ByState(99)).DateRange()
	assert.False(t, ok)
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension(" State ")
	require.NoError(t, err)
	assert.Equal(t, State, d)

	_, err = ParseDimension("hospital")
	assert.Error(t, err)
	assert.Equal(t, "answer", Answer.String())
}

type scored struct {
	part  string
	name  string
	value float64
}

func byValue(o Order) func(a, b scored) int {
	return func(a, b scored) int { return CompareFloat(a.value, b.value, o) }
}

func byName(a, b scored) int { return strings.Compare(a.name, b.name) }

func partOf(s scored) string { return s.part }

func TestDenseRank(t *testing.T) {
	items := []scored{
		{"m1", "TX", 70}, {"m1", "AZ", 90}, {"m1", "CA", 90}, {"m1", "NY", 80},
		{"m2", "AZ", 50},
	}

	ranked := Rank(items, partOf, byValue(Descending), byName, DenseRank)

	got := make([]string, len(ranked))
	for i, r := range ranked {
		got[i] = r.Partition + ":" + r.Item.name + ":" + string(rune('0'+r.Rank))
	}
	assert.Equal(t, []string{"m1:AZ:1", "m1:CA:1", "m1:NY:2", "m1:TX:3", "m2:AZ:1"}, got)
}

func TestRowNumberBreaksTiesByNaturalKey(t *testing.T) {
	items := []scored{{"s", "B", 1}, {"s", "A", 1}, {"s", "C", 0}}

	ranked := Rank(items, partOf, byValue(Descending), byName, RowNumber)

	require.Len(t, ranked, 3)
	assert.Equal(t, "A", ranked[0].Item.name)
	assert.Equal(t, 1, ranked[0].Rank)
	assert.Equal(t, "B", ranked[1].Item.name)
	assert.Equal(t, 2, ranked[1].Rank)
	assert.Equal(t, 3, ranked[2].Rank)
}

func TestTop(t *testing.T) {
	items := []scored{{"m", "A", 3}, {"m", "B", 3}, {"m", "C", 1}, {"n", "A", 5}}
	ranked := Rank(items, partOf, byValue(Descending), byName, DenseRank)

	top := Top(ranked, 1)
	require.Len(t, top, 3)
	assert.Equal(t, 4, len(Top(ranked, 0)))
}

func TestRankDoesNotMutateInput(t *testing.T) {
	items := []scored{{"m", "B", 1}, {"m", "A", 2}}
	_ = Rank(items, partOf, byValue(Ascending), byName, DenseRank)
	assert.Equal(t, "B", items[0].name)
}
