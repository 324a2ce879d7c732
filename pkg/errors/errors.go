package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a unique error code for categorizing errors
type ErrorCode string

const (
	// Input errors (1xxx)
	ErrCodeSourceUnreadable ErrorCode = "HCAH1001"
	ErrCodeMissingColumns   ErrorCode = "HCAH1002"
	ErrCodeSourceLocation   ErrorCode = "HCAH1003"

	// Row cleaning errors (2xxx). These are never fatal for a batch.
	ErrCodeMalformedPercentage ErrorCode = "HCAH2001"
	ErrCodeMalformedDate       ErrorCode = "HCAH2002"
	ErrCodeUnresolvedDimension ErrorCode = "HCAH2003"

	// Analytics errors (3xxx)
	ErrCodeEmptyAggregation ErrorCode = "HCAH3001"
	ErrCodeUnknownReport    ErrorCode = "HCAH3002"
	ErrCodeInvalidParameter ErrorCode = "HCAH3003"

	// Configuration errors (4xxx)
	ErrCodeConfigNotFound ErrorCode = "HCAH4001"
	ErrCodeConfigInvalid  ErrorCode = "HCAH4002"

	// Warehouse errors (5xxx)
	ErrCodeConnectionFailed   ErrorCode = "HCAH5001"
	ErrCodeConnectionTimeout  ErrorCode = "HCAH5002"
	ErrCodeSQLExecution       ErrorCode = "HCAH5003"
	ErrCodeSQLTransaction     ErrorCode = "HCAH5004"
	ErrCodeIntegrityViolation ErrorCode = "HCAH5005"
	ErrCodeCredentials        ErrorCode = "HCAH5006"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "HCAH9001"
	ErrCodeMaxRetriesExceeded ErrorCode = "HCAH9002"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL" // Batch aborted
	SeverityError    ErrorSeverity = "ERROR"    // Operation failed
	SeverityWarning  ErrorSeverity = "WARNING"  // Row skipped, batch continues
	SeverityInfo     ErrorSeverity = "INFO"
)

// AppError represents a structured application error with context
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

// Error implements the error interface
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return b.String()
}

// Unwrap returns the cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches another AppError by code
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error with AppError
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	var inner *AppError
	if errors.As(err, &inner) {
		for k, v := range inner.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as recoverable
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common error constructors

// RowError creates a row-level cleaning error. The batch keeps going.
func RowError(code ErrorCode, line int, field string, value string, reason string) *AppError {
	return New(code, fmt.Sprintf("row %d: %s %q: %s", line, field, value, reason)).
		WithContext("line", line).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning).
		AsRecoverable()
}

// MissingColumnsError reports a structurally broken input header
func MissingColumnsError(columns []string) *AppError {
	return New(ErrCodeMissingColumns, fmt.Sprintf("input is missing required columns: %s", strings.Join(columns, ", "))).
		WithContext("columns", columns).
		WithSeverity(SeverityCritical).
		WithSuggestions(
			"Check that the file is the HCAHPS state-level export",
			"Verify the first line of the file is the header row",
		)
}

// ConfigError creates a configuration-related error
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'hcahps config init' to write a default configuration",
		)
}

// SQLError creates an SQL execution error
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLExecution, message).
		WithContext("query", truncateString(query, 200))

	msg := strings.ToLower(fmt.Sprint(cause))
	switch {
	case strings.Contains(msg, "foreign key") || strings.Contains(msg, "not null"):
		err.Code = ErrCodeIntegrityViolation
		_ = err.WithSuggestions("Rebuild the dimensions from the same batch as the facts")
	case strings.Contains(msg, "timeout"):
		err.Code = ErrCodeConnectionTimeout
		_ = err.WithSuggestions("Increase warehouse.timeout in the configuration")
	}

	return err
}

// ValidationError creates a validation error
func ValidationError(field string, value interface{}, reason string) *AppError {
	return New(ErrCodeInvalidParameter, fmt.Sprintf("Validation failed for %s: %s", field, reason)).
		WithContext("field", field).
		WithContext("value", value).
		WithSeverity(SeverityWarning).
		AsRecoverable()
}

// IsRecoverable checks if an error is recoverable
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
