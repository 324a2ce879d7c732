package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"hcahps/internal/analytics"
	"hcahps/internal/observability"
	"hcahps/internal/server"
	"hcahps/internal/ui"
)

var serveFlags struct {
	fromWarehouse bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report battery over HTTP",
	Long: `Build the model once, from --input or the warehouse, and serve it
read-only: GET /reports, /reports/:id, /run, /health and /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("input", "", "survey export (CSV path or s3://bucket/key)")
	bindFlag(flags, "input", "input.path")
	flags.Int("workers", 1, "parallel row cleaning workers")
	bindFlag(flags, "workers", "input.workers")
	flags.BoolVar(&serveFlags.fromWarehouse, "from-warehouse", false, "read the model from the configured warehouse")
	flags.String("address", ":8080", "listen address")
	bindFlag(flags, "address", "server.address")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := appConfig
	metrics := observability.NewMetrics()

	src, err := buildEngine(ctx, cfg, nil, serveFlags.fromWarehouse, metrics)
	if err != nil {
		return err
	}
	defer src.Close()

	opts := []server.Option{server.WithMetrics(metrics)}
	if src.run != nil {
		opts = append(opts, server.WithRunReport(src.run))
	}
	if src.wh != nil {
		opts = append(opts, server.WithHealthCheck(observability.PingCheck("warehouse", src.wh.Ping)))
	}

	srv, err := server.New(cfg.Server, src.engine, analytics.ParamsFromConfig(cfg.Analytics), opts...)
	if err != nil {
		return err
	}
	ui.ShowInfo(fmt.Sprintf("Serving %d facts on %s", src.engine.Store().Len(), srv.Address()))
	return srv.Run(ctx)
}
