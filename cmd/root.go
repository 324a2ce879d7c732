package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"hcahps/internal/config"
	"hcahps/internal/observability"
	"hcahps/internal/ui"
	"hcahps/pkg/models"
)

// viperKey is the flag annotation naming the config key a flag overrides
const viperKey = "viper"

var (
	cfgFile   string
	appConfig *models.Config

	rootCmd = &cobra.Command{
		Use:   "hcahps",
		Short: "Load HCAHPS survey exports and report on them",
		Long: `hcahps cleans the state-level HCAHPS patient survey export into a
dimensional model (states, measures, answers and response facts), optionally
persists it to a SQL warehouse, and runs a battery of analytic reports over it.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: initConfig,
	}
)

// Execute runs the root command and exits non-zero on failure
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.ShowError(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.yaml or ~/.hcahps/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	bindFlag(rootCmd.PersistentFlags(), "log-level", "logging.level")
}

// bindFlag marks a flag as an override of a config key
func bindFlag(flags *pflag.FlagSet, name, key string) {
	_ = flags.SetAnnotation(name, viperKey, []string{key})
}

// initConfig discovers the config file, applies environment and flag
// overrides and configures the default logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	ui.Out = cmd.OutOrStdout()
	v := config.NewViper(cfgFile)

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		for _, key := range f.Annotations[viperKey] {
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	appConfig = cfg

	observability.SetDefaultLogger(observability.NewLogger(observability.LoggerConfig{
		Level:   observability.LogLevelFromString(cfg.Logging.Level),
		Output:  cmd.ErrOrStderr(),
		Version: Version,
		Encoder: observability.NewJSONEncoder(cfg.Logging.Pretty),
	}))
	observability.GetDefaultLogger().DebugWithFields("configuration loaded", map[string]interface{}{
		"config_file": v.ConfigFileUsed(),
		"dialect":     cfg.Warehouse.Dialect,
	})
	return nil
}
