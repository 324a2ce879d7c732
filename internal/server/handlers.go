package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hcahps/internal/analytics"
	"hcahps/internal/observability"
	apperrors "hcahps/pkg/errors"
)

func (s *Server) handleHealth(c *gin.Context) {
	report := s.health.CheckHealth(c.Request.Context())
	status := http.StatusOK
	if report.Status == observability.HealthStatusDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (s *Server) handleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reports": analytics.Catalog()})
}

func (s *Server) handleReport(c *gin.Context) {
	id := c.Param("id")
	params, err := s.paramsFromQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}

	key := cacheKey(id, params)
	if r, ok := s.cache.get(key); ok {
		s.metrics.CountReport(id, true)
		c.Header("X-Cache", "HIT")
		c.JSON(http.StatusOK, r)
		return
	}

	r, err := s.engine.Run(id, params)
	if err != nil {
		writeError(c, err)
		return
	}
	s.cache.set(key, r)
	s.metrics.CountReport(id, false)
	c.Header("X-Cache", "MISS")
	c.JSON(http.StatusOK, r)
}

func (s *Server) handleRun(c *gin.Context) {
	if s.run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"message": "no load has run in this process"}})
		return
	}
	c.JSON(http.StatusOK, s.run)
}

// paramsFromQuery overrides the server defaults with limit, k, threshold,
// a and b query parameters.
func (s *Server) paramsFromQuery(c *gin.Context) (analytics.Params, error) {
	p := s.params

	if v, ok := c.GetQuery("limit"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, apperrors.ValidationError("limit", v, "must be an integer")
		}
		p.Limit = n
	}
	if v, ok := c.GetQuery("k"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, apperrors.ValidationError("top_k", v, "must be an integer")
		}
		p.TopK = n
	}
	if v, ok := c.GetQuery("threshold"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, apperrors.ValidationError("threshold", v, "must be a number")
		}
		p.Threshold = f
	}
	if v, ok := c.GetQuery("a"); ok {
		p.GapMeasureA = v
	}
	if v, ok := c.GetQuery("b"); ok {
		p.GapMeasureB = v
	}
	return p, p.Validate()
}

func cacheKey(id string, p analytics.Params) string {
	return fmt.Sprintf("%s|%d|%d|%g|%s|%s", id, p.Limit, p.TopK, p.Threshold, p.GapMeasureA, p.GapMeasureB)
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperrors.GetErrorCode(err) {
	case apperrors.ErrCodeInvalidParameter:
		status = http.StatusBadRequest
	case apperrors.ErrCodeUnknownReport:
		status = http.StatusNotFound
	case apperrors.ErrCodeEmptyAggregation:
		status = http.StatusUnprocessableEntity
	}

	body := gin.H{"message": err.Error()}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body["code"] = appErr.Code
		body["message"] = appErr.Message
		if len(appErr.Suggestions) > 0 {
			body["suggestions"] = appErr.Suggestions
		}
	}
	c.JSON(status, gin.H{"error": body})
}
