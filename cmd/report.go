package cmd

import (
	"github.com/spf13/cobra"

	"hcahps/internal/analytics"
	"hcahps/internal/ui"
)

var reportFlags struct {
	fromWarehouse bool
	format        string
	interactive   bool
	list          bool
}

var reportCmd = &cobra.Command{
	Use:   "report [report-id...]",
	Short: "Run analytic reports over the survey model",
	Long: `Run reports from the battery over a model built from --input or read
back from the warehouse with --from-warehouse. Without report ids the whole
battery runs in catalog order.

Examples:
  hcahps report --input hcahps.csv
  hcahps report top-states bottom-states --from-warehouse --limit 5
  hcahps report measure-gap --gap-a H_COMP_1 --gap-b H_COMP_5 -f csv
  hcahps report --list`,
	RunE: runReport,
}

func init() {
	flags := reportCmd.Flags()
	flags.String("input", "", "survey export (CSV path or s3://bucket/key)")
	bindFlag(flags, "input", "input.path")
	flags.Int("workers", 1, "parallel row cleaning workers")
	bindFlag(flags, "workers", "input.workers")
	flags.BoolVar(&reportFlags.fromWarehouse, "from-warehouse", false, "read the model from the configured warehouse")
	flags.StringVarP(&reportFlags.format, "format", "f", ui.FormatTable, "output format: table, json or csv")
	flags.BoolVarP(&reportFlags.interactive, "interactive", "i", false, "choose reports from a list")
	flags.BoolVar(&reportFlags.list, "list", false, "list the available reports and exit")

	flags.Int("limit", analytics.DefaultLimit, "rows for top and bottom reports")
	bindFlag(flags, "limit", "analytics.limit")
	flags.Int("top-k", analytics.DefaultTopK, "members per partition for ranked reports")
	bindFlag(flags, "top-k", "analytics.top_k")
	flags.Float64("threshold", analytics.DefaultThreshold, "cut-off for high score shares")
	bindFlag(flags, "threshold", "analytics.threshold")
	flags.String("gap-a", analytics.DefaultGapMeasureA, "first measure of the gap report")
	bindFlag(flags, "gap-a", "analytics.gap_measure_a")
	flags.String("gap-b", analytics.DefaultGapMeasureB, "second measure of the gap report")
	bindFlag(flags, "gap-b", "analytics.gap_measure_b")

	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	renderer, err := ui.NewRenderer(cmd.OutOrStdout(), reportFlags.format, ui.SupportsColor())
	if err != nil {
		return err
	}
	if reportFlags.list {
		return renderer.Report(catalogReport())
	}

	ids := args
	if reportFlags.interactive {
		if ids, err = ui.SelectReports(analytics.Catalog()); err != nil {
			return err
		}
	}
	params := analytics.ParamsFromConfig(appConfig.Analytics)
	if err := params.Validate(); err != nil {
		return err
	}

	src, err := buildEngine(cmd.Context(), appConfig, nil, reportFlags.fromWarehouse, nil)
	if err != nil {
		return err
	}
	defer src.Close()

	reports, err := src.engine.RunSelected(ids, params)
	if err != nil {
		return err
	}
	return renderer.Reports(reports)
}

func catalogReport() *analytics.Report {
	r := &analytics.Report{ID: "catalog", Title: "Available reports", Columns: []string{"id", "title"}}
	for _, d := range analytics.Catalog() {
		r.Rows = append(r.Rows, []any{d.ID, d.Title})
	}
	return r
}
