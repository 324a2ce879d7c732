package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"hcahps/internal/config"
	"hcahps/internal/security"
	apperrors "hcahps/pkg/errors"
)

const sampleCSV = `State,HCAHPS Measure ID,HCAHPS Question,HCAHPS Answer Description,HCAHPS Answer Percent,Footnote,Start Date,End Date
CA,H_COMP_1,Nurses communicated well,Always,90,,01/01/2023,12/31/2023
AZ,H_COMP_1,Nurses communicated well,Always,70,,01/01/2023,12/31/2023
AZ,H_COMP_2,Doctors communicated well,Always,Not Available,5,01/01/2023,12/31/2023
TX,H_COMP_1,Nurses communicated well,Always,abc,,01/01/2023,12/31/2023
`

// resetFlags puts every flag back to its default; rootCmd is shared
// between tests.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var b bytes.Buffer
	rootCmd.SetOut(&b)
	rootCmd.SetErr(&b)
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return b.String(), err
}

// workspace isolates HOME and writes a config pointing at a temp sqlite file
func workspace(t *testing.T) (csvPath, cfgPath string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(config.EnvConfig, "")

	csvPath = filepath.Join(dir, "hcahps.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0600))

	cfg := config.Defaults()
	cfg.Warehouse.Database = filepath.Join(dir, "warehouse.db")
	cfg.Logging.Level = "error"
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, config.Save(cfg, cfgPath))
	return csvPath, cfgPath
}

func TestRootCommand(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "hcahps")
	assert.Contains(t, out, "HCAHPS patient survey export")
}

func TestRootCommandHelp(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "Available Commands:")
	for _, name := range []string{"load", "report", "serve", "warehouse", "config", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestInvalidCommand(t *testing.T) {
	_, err := execute(t, "invalid-command")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hcahps version dev")
}

func TestLoadPrintsSummary(t *testing.T) {
	csvPath, cfgPath := workspace(t)

	out, err := execute(t, "load", csvPath, "--config", cfgPath, "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Rows read:    4")
	assert.Contains(t, out, "Facts loaded: 3")
	assert.Contains(t, out, "Rows skipped: 1")
	assert.Contains(t, out, "malformed_percentage")
	assert.Equal(t, 2, appConfig.Input.Workers)
}

func TestLoadWithoutInput(t *testing.T) {
	_, cfgPath := workspace(t)

	_, err := execute(t, "load", "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConfigInvalid, apperrors.GetErrorCode(err))
}

func TestLoadMissingColumns(t *testing.T) {
	_, cfgPath := workspace(t)
	bad := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("State,Percent\nCA,1\n"), 0600))

	_, err := execute(t, "load", bad, "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeMissingColumns, apperrors.GetErrorCode(err))
}

func TestPersistThenReportFromWarehouse(t *testing.T) {
	csvPath, cfgPath := workspace(t)

	out, err := execute(t, "load", csvPath, "--persist", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Persisted 3 facts to the sqlite warehouse")

	// a second load replaces rather than appends
	_, err = execute(t, "load", csvPath, "--persist", "--config", cfgPath)
	require.NoError(t, err)

	out, err = execute(t, "report", "coverage", "top-states", "--from-warehouse", "--format", "csv", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "report,total_rows,null,numeric\ncoverage,3,1,2\n")
	assert.Contains(t, out, "top-states,CA,90.00,1\ntop-states,AZ,70.00,1\n")
}

func TestReportFromInput(t *testing.T) {
	csvPath, cfgPath := workspace(t)

	out, err := execute(t, "report", "bottom-states", "--input", csvPath, "--limit", "1", "--format", "csv", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "report,state,avg_percent,n\nbottom-states,AZ,70.00,1\n", out)
}

func TestReportHonoursZeroThreshold(t *testing.T) {
	csvPath, cfgPath := workspace(t)

	out, err := execute(t, "report", "high-share-by-state", "--input", csvPath, "--format", "csv", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "report,state,share_percent,n\nhigh-share-by-state,CA,100.00,1\nhigh-share-by-state,AZ,0.00,1\n", out)

	out, err = execute(t, "report", "high-share-by-state", "--input", csvPath, "--threshold", "0", "--format", "csv", "--config", cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "report,state,share_percent,n\nhigh-share-by-state,AZ,100.00,1\nhigh-share-by-state,CA,100.00,1\n", out)
}

func TestReportUnknownID(t *testing.T) {
	csvPath, cfgPath := workspace(t)

	_, err := execute(t, "report", "nope", "--input", csvPath, "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnknownReport, apperrors.GetErrorCode(err))
}

func TestReportList(t *testing.T) {
	_, cfgPath := workspace(t)

	out, err := execute(t, "report", "--list", "--format", "csv", "--config", cfgPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 21)
	assert.Equal(t, "report,id,title", lines[0])
}

func TestReportRejectsBadFormat(t *testing.T) {
	_, cfgPath := workspace(t)

	_, err := execute(t, "report", "--list", "--format", "xml", "--config", cfgPath)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidParameter, apperrors.GetErrorCode(err))
}

func TestConfigInitAndShow(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := filepath.Join(dir, "hcahps.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration written to "+path)

	_, err = execute(t, "config", "init", "--config", path)
	require.Error(t, err)

	_, err = execute(t, "config", "init", "--config", path, "--force")
	require.NoError(t, err)

	t.Setenv("HCAHPS_WAREHOUSE_PASSWORD", "secret")
	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "dialect: sqlite")
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "secret")
}

func TestWarehouseLoginFromStdin(t *testing.T) {
	keyring.MockInit()
	_, cfgPath := workspace(t)
	t.Setenv("HCAHPS_WAREHOUSE_DIALECT", "postgresql")

	resetFlags(rootCmd)
	var b bytes.Buffer
	rootCmd.SetOut(&b)
	rootCmd.SetErr(&b)
	rootCmd.SetIn(strings.NewReader("s3cret\n"))
	rootCmd.SetArgs([]string{"warehouse", "login", "--password-stdin", "--username", "etl", "--config", cfgPath})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, b.String(), "Stored the password for etl on postgres")

	pw, err := security.NewCredentialStore().Password("postgres", "etl")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)

	t.Setenv("HCAHPS_WAREHOUSE_USERNAME", "etl")
	out, err := execute(t, "warehouse", "logout", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed the stored password for etl on postgres")

	_, err = security.NewCredentialStore().Password("postgres", "etl")
	assert.Equal(t, apperrors.ErrCodeCredentials, apperrors.GetErrorCode(err))
}
