package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"hcahps/internal/common"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

// EnvConfig names the environment variable that points at a config file
const EnvConfig = "HCAHPS_CONFIG"

// EnvPrefix is the prefix of environment overrides, e.g. HCAHPS_INPUT_WORKERS
const EnvPrefix = "HCAHPS"

var (
	dialects  = []string{"sqlite", "postgres", "postgresql", "snowflake", "sqlserver"}
	logLevels = []string{"debug", "info", "warn", "warning", "error"}
)

func GetConfigPath() string {
	if configPath := os.Getenv(EnvConfig); configPath != "" {
		return filepath.Dir(configPath)
	}
	return common.HomeDir()
}

func GetConfigFile() string {
	if configFile := os.Getenv(EnvConfig); configFile != "" {
		cleaned, err := common.CleanPath(configFile)
		if err != nil {
			// Fall back to default if invalid
			return filepath.Join(common.HomeDir(), "config.yaml")
		}
		return cleaned
	}
	return filepath.Join(GetConfigPath(), "config.yaml")
}

// Defaults returns a configuration that works without a config file: a
// local sqlite warehouse and the built-in report parameters.
func Defaults() *models.Config {
	return &models.Config{
		Input: models.Input{Workers: 1},
		Warehouse: models.Warehouse{
			Dialect: "sqlite",
			Timeout: "30s",
		},
		Analytics: models.Analytics{
			Limit:       10,
			TopK:        3,
			Threshold:   80,
			GapMeasureA: "H_COMP_1",
			GapMeasureB: "H_COMP_2",
		},
		Server: models.Server{
			Address:      ":8080",
			CacheTTL:     "5m",
			AllowOrigins: []string{"*"},
		},
		Logging: models.Logging{Level: "warn"},
	}
}

// Load reads a config file on top of the defaults. An empty path means
// GetConfigFile(); a missing file yields the defaults.
func Load(path string) (*models.Config, error) {
	if path == "" {
		path = GetConfigFile()
	}
	cleanedPath, err := common.CleanPath(path)
	if err != nil {
		return nil, apperrors.ConfigError(fmt.Sprintf("invalid config file path: %v", err), "config")
	}

	config := Defaults()
	if _, err := os.Stat(cleanedPath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(cleanedPath) // #nosec G304 - path is validated
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigNotFound, "failed to read config file").
			WithContext("path", cleanedPath)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "failed to unmarshal config").
			WithContext("path", cleanedPath)
	}
	return config, nil
}

func Save(config *models.Config, path string) error {
	if path == "" {
		path = GetConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(path), common.DirPermissionSecure); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, common.FilePermissionSecure); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func Exists() bool {
	_, err := os.Stat(GetConfigFile())
	return err == nil
}

// Validate checks values that would otherwise fail deep inside a run
func Validate(config *models.Config) error {
	if config.Input.Workers < 0 {
		return apperrors.ConfigError("input.workers must not be negative", "input.workers")
	}

	dialect := strings.ToLower(config.Warehouse.Dialect)
	if dialect != "" && !contains(dialects, dialect) {
		return apperrors.ConfigError(fmt.Sprintf("unsupported warehouse dialect %q", config.Warehouse.Dialect), "warehouse.dialect")
	}
	if config.Warehouse.Timeout != "" {
		if _, err := time.ParseDuration(config.Warehouse.Timeout); err != nil {
			return apperrors.ConfigError(fmt.Sprintf("invalid duration %q", config.Warehouse.Timeout), "warehouse.timeout")
		}
	}
	if config.Warehouse.Port < 0 || config.Warehouse.Port > 65535 {
		return apperrors.ConfigError("warehouse.port out of range", "warehouse.port")
	}

	a := config.Analytics
	if a.Limit < 0 || a.TopK < 0 {
		return apperrors.ConfigError("analytics.limit and analytics.top_k must not be negative", "analytics")
	}
	if a.Threshold < 0 || a.Threshold > 100 {
		return apperrors.ConfigError("analytics.threshold must be between 0 and 100", "analytics.threshold")
	}

	if config.Server.CacheTTL != "" {
		if _, err := time.ParseDuration(config.Server.CacheTTL); err != nil {
			return apperrors.ConfigError(fmt.Sprintf("invalid duration %q", config.Server.CacheTTL), "server.cache_ttl")
		}
	}

	if config.Logging.Level != "" {
		if !contains(logLevels, strings.ToLower(config.Logging.Level)) {
			return apperrors.ConfigError(fmt.Sprintf("unknown log level %q", config.Logging.Level), "logging.level")
		}
	}
	return nil
}

// NewViper prepares config discovery: an explicit file, HCAHPS_CONFIG, then
// ./config.yaml and ~/.hcahps/config.yaml. HCAHPS_* variables override keys.
func NewViper(explicit string) *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	switch {
	case explicit != "":
		v.SetConfigFile(explicit)
	case os.Getenv(EnvConfig) != "":
		v.SetConfigFile(GetConfigFile())
	default:
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath(common.HomeDir())
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// FromViper loads the file viper discovered (defaults when none) and applies
// every key set through the environment or bound flags.
func FromViper(v *viper.Viper) (*models.Config, error) {
	path := ""
	if err := v.ReadInConfig(); err == nil {
		path = v.ConfigFileUsed()
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "failed to read config file")
	}

	config := Defaults()
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		config = loaded
	}

	Overlay(config, v)
	if err := Validate(config); err != nil {
		return nil, err
	}
	return config, nil
}

// overrides maps viper keys onto config fields
var overrides = map[string]func(c *models.Config, v *viper.Viper, key string){
	"input.path":              func(c *models.Config, v *viper.Viper, k string) { c.Input.Path = v.GetString(k) },
	"input.workers":           func(c *models.Config, v *viper.Viper, k string) { c.Input.Workers = v.GetInt(k) },
	"source.region":           func(c *models.Config, v *viper.Viper, k string) { c.Source.Region = v.GetString(k) },
	"source.endpoint":         func(c *models.Config, v *viper.Viper, k string) { c.Source.Endpoint = v.GetString(k) },
	"source.use_path_style":   func(c *models.Config, v *viper.Viper, k string) { c.Source.UsePathStyle = v.GetBool(k) },
	"warehouse.dialect":       func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Dialect = v.GetString(k) },
	"warehouse.dsn":           func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.DSN = v.GetString(k) },
	"warehouse.account":       func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Account = v.GetString(k) },
	"warehouse.host":          func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Host = v.GetString(k) },
	"warehouse.port":          func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Port = v.GetInt(k) },
	"warehouse.username":      func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Username = v.GetString(k) },
	"warehouse.password":      func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Password = v.GetString(k) },
	"warehouse.database":      func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Database = v.GetString(k) },
	"warehouse.schema":        func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Schema = v.GetString(k) },
	"warehouse.warehouse":     func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Warehouse = v.GetString(k) },
	"warehouse.role":          func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Role = v.GetString(k) },
	"warehouse.timeout":       func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.Timeout = v.GetString(k) },
	"warehouse.use_keyring":   func(c *models.Config, v *viper.Viper, k string) { c.Warehouse.UseKeyring = v.GetBool(k) },
	"analytics.limit":         func(c *models.Config, v *viper.Viper, k string) { c.Analytics.Limit = v.GetInt(k) },
	"analytics.top_k":         func(c *models.Config, v *viper.Viper, k string) { c.Analytics.TopK = v.GetInt(k) },
	"analytics.threshold":     func(c *models.Config, v *viper.Viper, k string) { c.Analytics.Threshold = v.GetFloat64(k) },
	"analytics.gap_measure_a": func(c *models.Config, v *viper.Viper, k string) { c.Analytics.GapMeasureA = v.GetString(k) },
	"analytics.gap_measure_b": func(c *models.Config, v *viper.Viper, k string) { c.Analytics.GapMeasureB = v.GetString(k) },
	"server.address":          func(c *models.Config, v *viper.Viper, k string) { c.Server.Address = v.GetString(k) },
	"server.cache_ttl":        func(c *models.Config, v *viper.Viper, k string) { c.Server.CacheTTL = v.GetString(k) },
	"server.allow_origins":    func(c *models.Config, v *viper.Viper, k string) { c.Server.AllowOrigins = v.GetStringSlice(k) },
	"logging.level":           func(c *models.Config, v *viper.Viper, k string) { c.Logging.Level = v.GetString(k) },
	"logging.pretty":          func(c *models.Config, v *viper.Viper, k string) { c.Logging.Pretty = v.GetBool(k) },
}

// Overlay applies every key viper can see. File values agree with what Load
// read; environment variables and changed flags take precedence over them.
func Overlay(config *models.Config, v *viper.Viper) {
	for key, apply := range overrides {
		if v.IsSet(key) {
			apply(config, v, key)
		}
	}
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
