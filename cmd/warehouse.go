package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hcahps/internal/security"
	"hcahps/internal/ui"
	"hcahps/internal/warehouse"
	apperrors "hcahps/pkg/errors"
)

var warehouseFlags struct {
	passwordStdin bool
}

var warehouseCmd = &cobra.Command{
	Use:   "warehouse",
	Short: "Manage the SQL warehouse",
}

var warehouseLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store the warehouse password in the OS keyring",
	Long: `Prompt for the warehouse password and keep it in the operating system
keyring under the configured dialect and username. Set warehouse.use_keyring
to true to have connections read it from there.`,
	Args: cobra.NoArgs,
	RunE: runWarehouseLogin,
}

var warehouseLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored warehouse password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dialect, user, err := warehouseIdentity()
		if err != nil {
			return err
		}
		if err := security.NewCredentialStore().Delete(security.WarehouseKey(dialect, user)); err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("Removed the stored password for %s on %s", user, dialect))
		return nil
	},
}

var warehouseInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the dimension and fact tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		w, err := openWarehouse(cmd.Context(), appConfig)
		if err != nil {
			return err
		}
		defer w.Close()

		if err := w.CreateSchema(cmd.Context()); err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("Schema ready on the %s warehouse", w.Dialect().Name))
		return nil
	},
}

func init() {
	warehouseLoginCmd.Flags().BoolVar(&warehouseFlags.passwordStdin, "password-stdin", false, "read the password from standard input")
	warehouseLoginCmd.Flags().String("username", "", "warehouse user")
	bindFlag(warehouseLoginCmd.Flags(), "username", "warehouse.username")

	warehouseCmd.AddCommand(warehouseLoginCmd, warehouseLogoutCmd, warehouseInitCmd)
	rootCmd.AddCommand(warehouseCmd)
}

func warehouseIdentity() (dialect, user string, err error) {
	d, err := warehouse.LookupDialect(appConfig.Warehouse.Dialect)
	if err != nil {
		return "", "", err
	}
	user = appConfig.Warehouse.Username
	if user == "" {
		return "", "", apperrors.ConfigError("no warehouse username configured", "warehouse.username")
	}
	return d.Name, user, nil
}

func runWarehouseLogin(cmd *cobra.Command, _ []string) error {
	dialect, user, err := warehouseIdentity()
	if err != nil {
		return err
	}

	var password string
	if warehouseFlags.passwordStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return apperrors.Wrap(err, apperrors.ErrCodeCredentials, "failed to read password from stdin")
		}
		password = strings.TrimRight(line, "\r\n")
	} else {
		password, err = ui.Password(fmt.Sprintf("Password for %s (%s):", user, dialect), "Stored in the OS keyring, never in the config file")
		if err != nil {
			return err
		}
	}
	if password == "" {
		return apperrors.ValidationError("password", "", "must not be empty")
	}

	if err := security.NewCredentialStore().SetPassword(dialect, user, password); err != nil {
		return err
	}
	ui.ShowSuccess(fmt.Sprintf("Stored the password for %s on %s", user, dialect))
	if !appConfig.Warehouse.UseKeyring {
		ui.ShowInfo("Set warehouse.use_keyring: true to use it when connecting")
	}
	return nil
}
