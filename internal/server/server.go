// Package server exposes an already-built fact store over a read-only HTTP
// API: the report battery, the last run report, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"hcahps/internal/analytics"
	"hcahps/internal/etl"
	"hcahps/internal/observability"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

const (
	defaultAddress  = ":8080"
	defaultCacheTTL = 5 * time.Minute
)

// Server serves reports over HTTP
type Server struct {
	address string
	engine  *analytics.Engine
	params  analytics.Params
	run     *etl.Report
	cache   *reportCache
	metrics *observability.Metrics
	health  *observability.HealthManager
	logger  *observability.Logger
	router  *gin.Engine
}

// Option customises a Server
type Option func(*Server)

// WithRunReport makes the report of the load that built the store available
// at /run.
func WithRunReport(r *etl.Report) Option {
	return func(s *Server) { s.run = r }
}

// WithMetrics serves the given registry at /metrics and counts requests
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheck adds a component to /health
func WithHealthCheck(check observability.HealthCheck) Option {
	return func(s *Server) { s.health.RegisterCheck(check) }
}

// WithLogger replaces the default logger
func WithLogger(l *observability.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New builds the router. params are the defaults that query parameters
// override per request.
func New(cfg models.Server, engine *analytics.Engine, params analytics.Params, opts ...Option) (*Server, error) {
	ttl := defaultCacheTTL
	if cfg.CacheTTL != "" {
		d, err := time.ParseDuration(cfg.CacheTTL)
		if err != nil || d <= 0 {
			return nil, apperrors.ConfigError(fmt.Sprintf("invalid duration %q", cfg.CacheTTL), "server.cache_ttl")
		}
		ttl = d
	}
	address := cfg.Address
	if address == "" {
		address = defaultAddress
	}

	s := &Server{
		address: address,
		engine:  engine,
		params:  params,
		cache:   newReportCache(ttl),
		logger:  observability.GetDefaultLogger(),
	}
	s.health = observability.NewHealthManager(5*time.Second, s.logger)
	s.health.RegisterCheck(observability.CheckFunc{CheckName: "store", Fn: s.storeHealth})

	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithField("component", "server")
	s.router = s.routes(cfg.AllowOrigins)
	return s, nil
}

// Handler returns the HTTP handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Address is the listen address
func (s *Server) Address() string {
	return s.address
}

func (s *Server) routes(origins []string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{http.MethodGet, http.MethodOptions}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	r.Use(cors.New(corsConfig))

	r.GET("/health", s.handleHealth)
	r.GET("/reports", s.handleCatalog)
	r.GET("/reports/:id", s.handleReport)
	r.GET("/run", s.handleRun)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return r
}

// Run listens until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoWithFields("Report server listening", map[string]interface{}{"address": s.address})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "report server failed").
			WithContext("address", s.address)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("Shutting down report server")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.DebugWithFields("Request served", map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}

func (s *Server) storeHealth(context.Context) observability.HealthResult {
	n := s.engine.Store().Len()
	details := map[string]interface{}{"facts": n}
	if n == 0 {
		return observability.HealthResult{Status: observability.HealthStatusDegraded, Message: "fact store is empty", Details: details}
	}
	return observability.HealthResult{Status: observability.HealthStatusUp, Details: details}
}
