package warehouse

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"hcahps/internal/common"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

// Dialect captures what differs between the supported SQL engines
type Dialect struct {
	Name     string
	Driver   string
	KeyType  string // short, unique text columns
	TextType string // free text columns
	// ifMissing wraps a CREATE TABLE so it is skipped when the table exists
	ifMissing   func(table, ddl string) string
	placeholder func(n int) string
	dsn         func(cfg models.Warehouse) (string, error)
}

var dialects = map[string]Dialect{
	"sqlite": {
		Name:        "sqlite",
		Driver:      "sqlite",
		KeyType:     "TEXT",
		TextType:    "TEXT",
		ifMissing:   createIfNotExists,
		placeholder: func(int) string { return "?" },
		dsn:         sqliteDSN,
	},
	"postgres": {
		Name:        "postgres",
		Driver:      "pgx",
		KeyType:     "VARCHAR(255)",
		TextType:    "TEXT",
		ifMissing:   createIfNotExists,
		placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
		dsn:         postgresDSN,
	},
	"snowflake": {
		Name:        "snowflake",
		Driver:      "snowflake",
		KeyType:     "VARCHAR(255)",
		TextType:    "VARCHAR",
		ifMissing:   createIfNotExists,
		placeholder: func(int) string { return "?" },
		dsn:         snowflakeDSN,
	},
	"sqlserver": {
		Name:     "sqlserver",
		Driver:   "sqlserver",
		KeyType:  "NVARCHAR(255)",
		TextType: "NVARCHAR(MAX)",
		ifMissing: func(table, ddl string) string {
			return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL %s", table, ddl)
		},
		placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
		dsn:         sqlserverDSN,
	},
}

// LookupDialect resolves a configured dialect name; empty means sqlite.
func LookupDialect(name string) (Dialect, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "sqlite"
	}
	if name == "postgresql" {
		name = "postgres"
	}
	d, ok := dialects[name]
	if !ok {
		return Dialect{}, apperrors.ConfigError(fmt.Sprintf("unsupported warehouse dialect %q", name), "warehouse.dialect").
			WithSuggestions("Use one of: sqlite, postgres, snowflake, sqlserver")
	}
	return d, nil
}

// Dialects lists the supported dialect names
func Dialects() []string {
	return []string{"sqlite", "postgres", "snowflake", "sqlserver"}
}

// Placeholders returns n bind parameters separated by commas
func (d Dialect) Placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.placeholder(i + 1)
	}
	return strings.Join(ph, ", ")
}

// DSN builds the driver connection string. A configured DSN wins.
func (d Dialect) DSN(cfg models.Warehouse) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	return d.dsn(cfg)
}

func createIfNotExists(_, ddl string) string {
	return strings.Replace(ddl, "CREATE TABLE ", "CREATE TABLE IF NOT EXISTS ", 1)
}

func sqliteDSN(cfg models.Warehouse) (string, error) {
	path := cfg.Database
	if path == "" {
		path = filepath.Join(common.HomeDir(), "hcahps.db")
	}
	if path != ":memory:" {
		cleaned, err := common.CleanPath(path)
		if err != nil {
			return "", apperrors.ConfigError(err.Error(), "warehouse.database")
		}
		path = cleaned
	}
	return "file:" + path + "?_pragma=foreign_keys(1)", nil
}

func postgresDSN(cfg models.Warehouse) (string, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return "", apperrors.ConfigError("postgres needs host and database", "warehouse.host")
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Schema != "" {
		u.RawQuery = url.Values{"search_path": {cfg.Schema}}.Encode()
	}
	return u.String(), nil
}

func snowflakeDSN(cfg models.Warehouse) (string, error) {
	if cfg.Account == "" || cfg.Username == "" {
		return "", apperrors.ConfigError("snowflake needs account and username", "warehouse.account")
	}
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:   cfg.Account,
		User:      cfg.Username,
		Password:  cfg.Password,
		Database:  cfg.Database,
		Schema:    cfg.Schema,
		Warehouse: cfg.Warehouse,
		Role:      cfg.Role,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "invalid snowflake configuration")
	}
	return dsn, nil
}

func sqlserverDSN(cfg models.Warehouse) (string, error) {
	if cfg.Host == "" {
		return "", apperrors.ConfigError("sqlserver needs a host", "warehouse.host")
	}
	port := cfg.Port
	if port == 0 {
		port = 1433
	}
	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}
