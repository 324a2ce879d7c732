// Package warehouse persists the dimensional model in a SQL database and
// reads it back for report runs.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"hcahps/internal/observability"
	"hcahps/internal/security"
	"hcahps/internal/store"
	apperrors "hcahps/pkg/errors"
	"hcahps/pkg/models"
)

const defaultTimeout = 30 * time.Second

// PasswordSource looks up a stored warehouse password
type PasswordSource interface {
	Password(dialect, username string) (string, error)
}

// Warehouse provides the persisted-model operations
type Warehouse struct {
	db        *sql.DB
	config    models.Warehouse
	dialect   Dialect
	timeout   time.Duration
	connected bool
	logger    *observability.Logger
	retry     *apperrors.RetryConfig
	secrets   PasswordSource
	openDB    func(driver, dsn string) (*sql.DB, error)
}

// New validates the configuration and prepares a warehouse. No connection
// is made until Connect.
func New(cfg models.Warehouse) (*Warehouse, error) {
	dialect, err := LookupDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	timeout := defaultTimeout
	if cfg.Timeout != "" {
		timeout, err = time.ParseDuration(cfg.Timeout)
		if err != nil || timeout <= 0 {
			return nil, apperrors.ConfigError(fmt.Sprintf("invalid timeout %q", cfg.Timeout), "warehouse.timeout")
		}
	}

	logger := observability.GetDefaultLogger().WithFields(map[string]interface{}{
		"component": "warehouse",
		"dialect":   dialect.Name,
	})
	retry := apperrors.DefaultRetryConfig()
	retry.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.WarnWithFields("warehouse connection failed, retrying", map[string]interface{}{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
	}

	return &Warehouse{
		config:  cfg,
		dialect: dialect,
		timeout: timeout,
		logger:  logger,
		retry:   retry,
		secrets: security.NewCredentialStore(),
		openDB:  sql.Open,
	}, nil
}

// WithDB attaches an already open database, e.g. one managed by the caller
func (w *Warehouse) WithDB(db *sql.DB) *Warehouse {
	w.db = db
	w.connected = true
	return w
}

// WithPasswordSource replaces the keyring lookup
func (w *Warehouse) WithPasswordSource(src PasswordSource) *Warehouse {
	w.secrets = src
	return w
}

// Dialect returns the SQL dialect in use
func (w *Warehouse) Dialect() Dialect {
	return w.dialect
}

// Connect opens the database and verifies it answers, retrying transient
// failures with backoff.
func (w *Warehouse) Connect(ctx context.Context) error {
	if w.connected {
		return nil
	}

	cfg := w.config
	if cfg.Password == "" && cfg.UseKeyring && cfg.DSN == "" {
		pw, err := w.secrets.Password(w.dialect.Name, cfg.Username)
		if err != nil {
			return err
		}
		cfg.Password = pw
	}
	dsn, err := w.dialect.DSN(cfg)
	if err != nil {
		return err
	}

	return apperrors.Retry(ctx, w.retry, func(ctx context.Context) error {
		db, err := w.openDB(w.dialect.Driver, dsn)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeConnectionFailed, "failed to open warehouse connection").
				WithContext("dialect", w.dialect.Name)
		}

		if w.dialect.Name == "sqlite" {
			db.SetMaxOpenConns(1)
		} else {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(10 * time.Minute)
		}

		pingCtx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()

		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()

			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "authentication") || strings.Contains(msg, "password") || strings.Contains(msg, "login failed") {
				return apperrors.Wrap(err, apperrors.ErrCodeCredentials, "warehouse rejected the credentials").
					WithContext("user", cfg.Username).
					WithSuggestions(
						"Verify the username and password",
						"Run 'hcahps warehouse login' to update the stored password",
					)
			}
			return apperrors.Wrap(err, apperrors.ErrCodeConnectionFailed, "failed to connect to warehouse").
				WithContext("dialect", w.dialect.Name).
				AsRecoverable()
		}

		w.db = db
		w.connected = true
		w.logger.Info("connected to warehouse")
		return nil
	})
}

// Close closes the database connection
func (w *Warehouse) Close() error {
	if !w.connected {
		return nil
	}
	w.connected = false
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// Ping checks that an open connection still answers
func (w *Warehouse) Ping(ctx context.Context) error {
	if err := w.ensureConnected(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.db.PingContext(ctx); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeConnectionFailed, "warehouse ping failed")
	}
	return nil
}

// CreateSchema creates the dimension and fact tables when missing
func (w *Warehouse) CreateSchema(ctx context.Context) error {
	if err := w.ensureConnected(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	return w.inTx(ctx, func(tx *sql.Tx) error {
		for _, t := range schema(w.dialect) {
			stmt := w.dialect.ifMissing(t.name, t.ddl)
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return apperrors.SQLError(fmt.Sprintf("failed to create table %s", t.name), stmt, err).
					WithContext("table", t.name)
			}
		}
		return nil
	})
}

// Load replaces the persisted model with dims and facts in a single
// transaction, so a rerun over the same batch leaves the same tables.
func (w *Warehouse) Load(ctx context.Context, dims *models.Dimensions, facts []models.Fact) error {
	if err := w.ensureConnected(); err != nil {
		return err
	}
	started := time.Now()

	err := w.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{tableFact, tableAnswer, tableMeasure, tableState} {
			stmt := "DELETE FROM " + table
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return apperrors.SQLError("failed to clear "+table, stmt, err).WithContext("table", table)
			}
		}

		if err := w.insert(ctx, tx, tableState, []string{"state_id", "state_code"}, len(dims.States), func(i int) []any {
			s := dims.States[i]
			return []any{s.ID, s.Code}
		}); err != nil {
			return err
		}
		if err := w.insert(ctx, tx, tableMeasure, []string{"measure_key", "measure_id", "question"}, len(dims.Measures), func(i int) []any {
			m := dims.Measures[i]
			return []any{m.ID, m.MeasureID, m.Question}
		}); err != nil {
			return err
		}
		if err := w.insert(ctx, tx, tableAnswer, []string{"answer_id", "answer_description"}, len(dims.Answers), func(i int) []any {
			a := dims.Answers[i]
			return []any{a.ID, a.Description}
		}); err != nil {
			return err
		}
		return w.insert(ctx, tx, tableFact, factColumns, len(facts), func(i int) []any {
			f := facts[i]
			return []any{i + 1, f.StateID, f.MeasureID, f.AnswerID, f.Percent, nullable(f.Footnote), f.StartDate, f.EndDate}
		})
	})
	if err != nil {
		return err
	}

	w.logger.InfoWithFields("model loaded", map[string]interface{}{
		"states":      len(dims.States),
		"measures":    len(dims.Measures),
		"answers":     len(dims.Answers),
		"facts":       len(facts),
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

// ReadStore rebuilds the fact store from the persisted tables.
func (w *Warehouse) ReadStore(ctx context.Context) (*store.Store, error) {
	if err := w.ensureConnected(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var states []models.StateDim
	err := w.query(ctx, "SELECT state_id, state_code FROM "+tableState+" ORDER BY state_id", func(rows *sql.Rows) error {
		var s models.StateDim
		if err := rows.Scan(&s.ID, &s.Code); err != nil {
			return err
		}
		states = append(states, s)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var measures []models.MeasureDim
	err = w.query(ctx, "SELECT measure_key, measure_id, question FROM "+tableMeasure+" ORDER BY measure_key", func(rows *sql.Rows) error {
		var (
			m        models.MeasureDim
			question sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.MeasureID, &question); err != nil {
			return err
		}
		m.Question = question.String
		measures = append(measures, m)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var answers []models.AnswerDim
	err = w.query(ctx, "SELECT answer_id, answer_description FROM "+tableAnswer+" ORDER BY answer_id", func(rows *sql.Rows) error {
		var a models.AnswerDim
		if err := rows.Scan(&a.ID, &a.Description); err != nil {
			return err
		}
		answers = append(answers, a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var facts []models.Fact
	factQuery := "SELECT " + strings.Join(factColumns[1:], ", ") + " FROM " + tableFact + " ORDER BY fact_id"
	err = w.query(ctx, factQuery, func(rows *sql.Rows) error {
		var (
			f          models.Fact
			footnote   sql.NullString
			start, end any
		)
		if err := rows.Scan(&f.StateID, &f.MeasureID, &f.AnswerID, &f.Percent, &footnote, &start, &end); err != nil {
			return err
		}
		var err error
		if f.StartDate, err = asDate(start); err != nil {
			return err
		}
		if f.EndDate, err = asDate(end); err != nil {
			return err
		}
		f.Footnote = footnote.String
		facts = append(facts, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return store.New(models.NewDimensions(states, measures, answers), facts)
}

func (w *Warehouse) ensureConnected() error {
	if !w.connected {
		return apperrors.New(apperrors.ErrCodeConnectionFailed, "not connected to warehouse").
			WithSuggestions("Call Connect() before using the warehouse")
	}
	return nil
}

// inTx runs fn in a transaction, rolling back when fn or the commit fails.
func (w *Warehouse) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSQLTransaction, "failed to begin transaction")
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			w.logger.ErrorWithFields("rollback failed", map[string]interface{}{"error": rbErr.Error()})
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeSQLTransaction, "failed to commit transaction")
	}
	return nil
}

func (w *Warehouse) insert(ctx context.Context, tx *sql.Tx, table string, columns []string, n int, row func(i int) []any) error {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), w.dialect.Placeholders(len(columns)))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return apperrors.SQLError("failed to prepare insert into "+table, query, err)
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return apperrors.SQLError("failed to insert into "+table, query, err).
				WithContext("table", table).
				WithContext("row", i+1)
		}
	}
	return nil
}

func (w *Warehouse) query(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return apperrors.SQLError("query failed", query, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return apperrors.SQLError("failed to read row", query, err)
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.SQLError("failed to read rows", query, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
}

// asDate normalises the date representations returned by the drivers.
func asDate(v any) (time.Time, error) {
	var s string
	switch t := v.(type) {
	case time.Time:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported date value %T", v)
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
