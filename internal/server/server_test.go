package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hcahps/internal/analytics"
	"hcahps/internal/etl"
	"hcahps/internal/observability"
	"hcahps/internal/store"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

func testEngine(t *testing.T) *analytics.Engine {
	t.Helper()
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	dims := models.NewDimensions(
		[]models.StateDim{{ID: 1, Code: "CA"}, {ID: 2, Code: "AZ"}},
		[]models.MeasureDim{{ID: 1, MeasureID: "H_COMP_1"}, {ID: 2, MeasureID: "H_COMP_2"}},
		[]models.AnswerDim{{ID: 1, Description: "Always"}},
	)
	facts := []models.Fact{
		{StateID: 1, MeasureID: 1, AnswerID: 1, Percent: models.NewPercent(90), StartDate: start, EndDate: end},
		{StateID: 2, MeasureID: 1, AnswerID: 1, Percent: models.NewPercent(70), StartDate: start, EndDate: end},
		{StateID: 1, MeasureID: 2, AnswerID: 1, Percent: models.NewPercent(80), StartDate: start, EndDate: end},
	}
	st, err := store.New(dims, facts)
	require.NoError(t, err)
	return analytics.New(st)
}

func newTestServer(t *testing.T, cfg models.Server, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{WithLogger(observability.Discard())}, opts...)
	s, err := New(cfg, testEngine(t), analytics.DefaultParams(), opts...)
	require.NoError(t, err)
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewRejectsBadCacheTTL(t *testing.T) {
	_, err := New(models.Server{CacheTTL: "later"}, testEngine(t), analytics.DefaultParams())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfigInvalid, apperrors.GetErrorCode(err))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, models.Server{})
	assert.Equal(t, ":8080", s.Address())

	rec := get(t, s.Handler(), "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status     string `json:"status"`
		Components map[string]struct {
			Status string `json:"status"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UP", body.Status)
	assert.Equal(t, "UP", body.Components["store"].Status)
}

func TestHealthDownWhenWarehouseFails(t *testing.T) {
	s := newTestServer(t, models.Server{},
		WithHealthCheck(observability.PingCheck("warehouse", func(context.Context) error {
			return errors.New("connection refused")
		})))

	rec := get(t, s.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestCatalog(t *testing.T) {
	s := newTestServer(t, models.Server{})
	rec := get(t, s.Handler(), "/reports")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Reports []analytics.Definition `json:"reports"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Reports, 20)
	assert.Equal(t, "coverage", body.Reports[0].ID)
}

func TestReportIsCached(t *testing.T) {
	metrics := observability.NewMetrics()
	s := newTestServer(t, models.Server{}, WithMetrics(metrics))

	first := get(t, s.Handler(), "/reports/top-states?limit=1")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	var r analytics.Report
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &r))
	assert.Equal(t, "top-states", r.ID)
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "CA", r.Rows[0][0])
	assert.Equal(t, 85.0, r.Rows[0][1])

	second := get(t, s.Handler(), "/reports/top-states?limit=1")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	// different parameters are a different entry
	third := get(t, s.Handler(), "/reports/top-states?limit=2")
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, s.cache.len())

	m := get(t, s.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, m.Code)
	assert.Contains(t, m.Body.String(), `hcahps_report_requests_total{cache="hit",report="top-states"} 1`)
	assert.Contains(t, m.Body.String(), `hcahps_report_requests_total{cache="miss",report="top-states"} 2`)
}

func TestReportQueryParameters(t *testing.T) {
	s := newTestServer(t, models.Server{})

	rec := get(t, s.Handler(), "/reports/measure-gap?a=H_COMP_1&b=H_COMP_2")
	require.Equal(t, http.StatusOK, rec.Code)
	var r analytics.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "CA", r.Rows[0][0])
}

func TestReportErrors(t *testing.T) {
	s := newTestServer(t, models.Server{})

	tests := []struct {
		path   string
		status int
		code   apperrors.ErrorCode
	}{
		{"/reports/nope", http.StatusNotFound, apperrors.ErrCodeUnknownReport},
		{"/reports/top-states?limit=abc", http.StatusBadRequest, apperrors.ErrCodeInvalidParameter},
		{"/reports/high-share-by-state?threshold=150", http.StatusBadRequest, apperrors.ErrCodeInvalidParameter},
		{"/reports/measure-gap?a=", http.StatusBadRequest, apperrors.ErrCodeInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := get(t, s.Handler(), tt.path)
			assert.Equal(t, tt.status, rec.Code)

			var body struct {
				Error struct {
					Code apperrors.ErrorCode `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestRun(t *testing.T) {
	s := newTestServer(t, models.Server{})
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/run").Code)

	run := &etl.Report{InputRows: 4, Facts: 3, Skipped: 1, ByReason: map[etl.Reason]int{etl.ReasonMalformedDate: 1}}
	s = newTestServer(t, models.Server{}, WithRunReport(run))
	rec := get(t, s.Handler(), "/run")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"malformed_date":1`))
}

func TestMetricsRouteNeedsRegistry(t *testing.T) {
	s := newTestServer(t, models.Server{})
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/metrics").Code)
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, models.Server{AllowOrigins: []string{"https://dash.example.org"}})

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("Origin", "https://dash.example.org")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://dash.example.org", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("Origin", "https://elsewhere.example.org")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
