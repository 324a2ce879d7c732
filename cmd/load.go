package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"hcahps/internal/observability"
	"hcahps/internal/ui"
)

var loadFlags struct {
	persist bool
	format  string
	issues  int
}

var loadCmd = &cobra.Command{
	Use:   "load [csv-path|s3://bucket/key]",
	Short: "Clean a survey export into the dimensional model",
	Long: `Read the state-level HCAHPS export, build the state, measure and answer
dimensions, clean every row into a response fact and print a run summary.
Rows that cannot be cleaned are skipped and reported with their line number.

With --persist the model replaces the contents of the configured warehouse.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().Int("workers", 1, "parallel row cleaning workers")
	bindFlag(loadCmd.Flags(), "workers", "input.workers")
	loadCmd.Flags().BoolVar(&loadFlags.persist, "persist", false, "write the model to the configured warehouse")
	loadCmd.Flags().StringVarP(&loadFlags.format, "format", "f", ui.FormatTable, "summary format: table or json")
	loadCmd.Flags().IntVar(&loadFlags.issues, "show-issues", 10, "skipped rows to list (0 lists all)")

	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := appConfig

	location, err := inputLocation(args, cfg)
	if err != nil {
		return err
	}
	renderer, err := ui.NewRenderer(cmd.OutOrStdout(), loadFlags.format, ui.SupportsColor())
	if err != nil {
		return err
	}

	result, err := runPipeline(ctx, cfg, location, observability.NewMetrics())
	if err != nil {
		return err
	}

	if err := renderer.Summary(result.Report); err != nil {
		return err
	}
	if loadFlags.format != ui.FormatJSON {
		renderer.Issues(result.Report, loadFlags.issues)
	}

	if !loadFlags.persist {
		return nil
	}

	w, err := openWarehouse(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.CreateSchema(ctx); err != nil {
		return err
	}
	if err := w.Load(ctx, result.Dims, result.Store.Facts()); err != nil {
		return err
	}
	if loadFlags.format != ui.FormatJSON {
		ui.ShowSuccess(fmt.Sprintf("Persisted %d facts to the %s warehouse", result.Store.Len(), w.Dialect().Name))
	}
	return nil
}
