package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"hcahps/internal/config"
	"hcahps/internal/ui"
	"hcahps/internal/warehouse"
	apperrors "hcahps/pkg/errors"
)

var configFlags struct {
	force       bool
	interactive bool
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	// Skips config loading so a broken file can be replaced.
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		ui.Out = cmd.OutOrStdout()
		return nil
	},
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		shown := *appConfig
		if shown.Warehouse.Password != "" {
			shown.Warehouse.Password = "********"
		}
		data, err := yaml.Marshal(&shown)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configFlags.force, "force", false, "overwrite an existing file")
	configInitCmd.Flags().BoolVarP(&configFlags.interactive, "interactive", "i", false, "answer a few questions first")

	configCmd.AddCommand(configInitCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	path := cfgFile
	if path == "" {
		path = config.GetConfigFile()
	}
	if _, err := os.Stat(path); err == nil && !configFlags.force {
		return apperrors.New(apperrors.ErrCodeConfigInvalid, fmt.Sprintf("%s already exists", path)).
			WithSuggestions("Use --force to overwrite it")
	}

	cfg := config.Defaults()
	if configFlags.interactive {
		dialect, err := ui.Select("Warehouse dialect:", warehouse.Dialects(), cfg.Warehouse.Dialect)
		if err != nil {
			return err
		}
		cfg.Warehouse.Dialect = dialect
		if cfg.Warehouse.Database, err = ui.Input("Database (file path for sqlite):", "", ""); err != nil {
			return err
		}
		if dialect != "sqlite" {
			if cfg.Warehouse.Username, err = ui.Input("Username:", "", ""); err != nil {
				return err
			}
			if cfg.Warehouse.UseKeyring, err = ui.Confirm("Read the password from the OS keyring?", true); err != nil {
				return err
			}
		}
		if cfg.Input.Path, err = ui.Input("Default survey export:", "", "CSV path or s3://bucket/key"); err != nil {
			return err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.Save(cfg, path); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "failed to write configuration")
	}
	ui.ShowSuccess("Configuration written to " + path)
	return nil
}
