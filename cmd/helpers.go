package cmd

import (
	"context"
	"strings"

	"hcahps/internal/analytics"
	"hcahps/internal/etl"
	"hcahps/internal/observability"
	"hcahps/internal/source"
	"hcahps/internal/warehouse"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

// inputLocation picks the positional argument over input.path
func inputLocation(args []string, cfg *models.Config) (string, error) {
	location := cfg.Input.Path
	if len(args) > 0 {
		location = args[0]
	}
	if strings.TrimSpace(location) == "" {
		return "", apperrors.ConfigError("no input given", "input.path").
			WithSuggestions("Pass a CSV path or s3://bucket/key, or use --from-warehouse")
	}
	return location, nil
}

// runPipeline reads the export and builds the in-memory model
func runPipeline(ctx context.Context, cfg *models.Config, location string, metrics *observability.Metrics) (*etl.Result, error) {
	logger := observability.GetDefaultLogger()
	logger.InfoWithFields("reading input", map[string]interface{}{"source": source.Describe(location)})

	rows, err := source.NewOpener(cfg.Source).Load(ctx, location)
	if err != nil {
		return nil, err
	}
	return etl.NewPipeline(cfg.Input.Workers, metrics).Run(ctx, rows)
}

// openWarehouse connects to the configured warehouse; the caller closes it
func openWarehouse(ctx context.Context, cfg *models.Config) (*warehouse.Warehouse, error) {
	w, err := warehouse.New(cfg.Warehouse)
	if err != nil {
		return nil, err
	}
	if err := w.Connect(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// engineSource is what report and serve analyse
type engineSource struct {
	engine *analytics.Engine
	run    *etl.Report          // nil when read back from the warehouse
	wh     *warehouse.Warehouse // nil when built from an input file
}

func (s *engineSource) Close() error {
	if s.wh == nil {
		return nil
	}
	return s.wh.Close()
}

// buildEngine loads the fact store from the warehouse or from an input
func buildEngine(ctx context.Context, cfg *models.Config, args []string, fromWarehouse bool, metrics *observability.Metrics) (*engineSource, error) {
	if fromWarehouse {
		w, err := openWarehouse(ctx, cfg)
		if err != nil {
			return nil, err
		}
		st, err := w.ReadStore(ctx)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		return &engineSource{engine: analytics.New(st), wh: w}, nil
	}

	location, err := inputLocation(args, cfg)
	if err != nil {
		return nil, err
	}
	result, err := runPipeline(ctx, cfg, location, metrics)
	if err != nil {
		return nil, err
	}
	return &engineSource{engine: analytics.New(result.Store), run: result.Report}, nil
}
