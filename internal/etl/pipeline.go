// Package etl turns raw survey rows into the dimensional model: dimension
// tables keyed by surrogate ids and a fact table of cleaned observations.
package etl

import (
	"context"
	"time"

	"hcahps/internal/observability"
	"hcahps/internal/store"
	"hcahps/pkg/models"
)

// Result is the output of one pipeline run.
type Result struct {
	Dims   *models.Dimensions
	Store  *store.Store
	Report *Report
}

// Pipeline runs dimension build, cleaning and store construction in order.
type Pipeline struct {
	Workers int
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewPipeline creates a pipeline with the default logger
func NewPipeline(workers int, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		Workers: workers,
		Logger:  observability.GetDefaultLogger().WithField("component", "etl"),
		Metrics: metrics,
	}
}

// Run executes the pipeline over a closed batch. Row problems end up in the
// report; only cancellation or a broken store invariant returns an error.
func (p *Pipeline) Run(ctx context.Context, rows []models.RawObservation) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}

	started := time.Now()
	dims := BuildDimensions(rows)
	p.stage(logger, "dimensions", started, map[string]interface{}{
		"states":   len(dims.States),
		"measures": len(dims.Measures),
		"answers":  len(dims.Answers),
	})

	started = time.Now()
	cleaner := &Cleaner{Workers: p.Workers, Logger: logger}
	facts, report, err := cleaner.Clean(ctx, rows, dims)
	if err != nil {
		return nil, err
	}
	p.stage(logger, "clean", started, map[string]interface{}{
		"facts":   report.Facts,
		"skipped": report.Skipped,
	})

	started = time.Now()
	st, err := store.New(dims, facts)
	if err != nil {
		return nil, err
	}
	p.stage(logger, "store", started, nil)

	p.Metrics.RecordRun(report.InputRows, report.Facts, report.SkippedByReason())

	summary := map[string]interface{}{
		"input_rows": report.InputRows,
		"facts":      report.Facts,
		"skipped":    report.Skipped,
	}
	for _, reason := range report.Reasons() {
		summary["skipped_"+string(reason)] = report.ByReason[reason]
	}
	if report.Skipped > 0 {
		logger.WarnWithFields("run completed with skipped rows", summary)
	} else {
		logger.InfoWithFields("run completed", summary)
	}

	return &Result{Dims: dims, Store: st, Report: report}, nil
}

func (p *Pipeline) stage(logger *observability.Logger, name string, started time.Time, fields map[string]interface{}) {
	elapsed := time.Since(started)
	p.Metrics.ObserveStage(name, elapsed)

	if fields == nil {
		fields = make(map[string]interface{}, 2)
	}
	fields["stage"] = name
	fields["duration_ms"] = elapsed.Milliseconds()
	logger.DebugWithFields("stage finished", fields)
}
