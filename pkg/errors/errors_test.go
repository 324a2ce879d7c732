package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "basic error",
			err:      New(ErrCodeConnectionFailed, "Connection failed"),
			expected: "[HCAH5001] ERROR: Connection failed",
		},
		{
			name: "error with suggestions",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithSuggestions("Check network", "Verify credentials"),
			expected: "[HCAH5001] ERROR: Connection failed\nSuggestions:\n  1. Check network\n  2. Verify credentials",
		},
		{
			name: "error with context",
			err: New(ErrCodeConnectionFailed, "Connection failed").
				WithContext("host", "example.com"),
			expected: "[HCAH5001] ERROR: Connection failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestErrorWrapping(t *testing.T) {
	baseErr := fmt.Errorf("database connection refused")

	appErr := Wrap(baseErr, ErrCodeConnectionFailed, "Failed to connect to warehouse")

	assert.Equal(t, baseErr, appErr.Cause)
	assert.True(t, stderrors.Is(appErr, baseErr))
	assert.True(t, stderrors.Is(appErr, New(ErrCodeConnectionFailed, "")))
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
}

func TestWrapInheritsContext(t *testing.T) {
	inner := New(ErrCodeSQLExecution, "insert failed").WithContext("table", "fact_response")
	outer := Wrap(inner, ErrCodeSQLTransaction, "load failed")

	assert.Equal(t, "fact_response", outer.Context["table"])
	assert.Equal(t, ErrCodeSQLTransaction, GetErrorCode(outer))
}

func TestRowError(t *testing.T) {
	err := RowError(ErrCodeMalformedPercentage, 7, "HCAHPS Answer Percent", "abc", "not a decimal")

	assert.Equal(t, SeverityWarning, err.Severity)
	assert.True(t, IsRecoverable(err))
	assert.Equal(t, 7, err.Context["line"])
	assert.Contains(t, err.Message, `row 7: HCAHPS Answer Percent "abc"`)
}

func TestMissingColumnsError(t *testing.T) {
	err := MissingColumnsError([]string{"State", "End Date"})

	assert.Equal(t, ErrCodeMissingColumns, err.Code)
	assert.Equal(t, SeverityCritical, err.Severity)
	assert.False(t, IsRecoverable(err))
	assert.Contains(t, err.Error(), "State, End Date")
}

func TestSQLErrorClassification(t *testing.T) {
	err := SQLError("insert fact", "INSERT INTO fact_response ...", fmt.Errorf("FOREIGN KEY constraint failed"))
	assert.Equal(t, ErrCodeIntegrityViolation, err.Code)

	err = SQLError("insert fact", "INSERT", fmt.Errorf("i/o timeout"))
	assert.Equal(t, ErrCodeConnectionTimeout, err.Code)

	err = SQLError("insert fact", "INSERT", fmt.Errorf("syntax error"))
	assert.Equal(t, ErrCodeSQLExecution, err.Code)
}

func TestGetErrorCodeForPlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetErrorCode(fmt.Errorf("plain")))
}

func TestRetryLogic(t *testing.T) {
	attempts := 0
	maxAttempts := 3
	var retried []int

	config := &RetryConfig{
		MaxRetries:   maxAttempts - 1,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		RetryableError: func(err error) bool {
			return true
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			retried = append(retried, attempt)
		},
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		if attempts < maxAttempts {
			return New(ErrCodeConnectionTimeout, "Timeout").AsRecoverable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, maxAttempts, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return New(ErrCodeConfigInvalid, "bad dsn")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeConfigInvalid, GetErrorCode(err))
}

func TestRetryExhausted(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:     1,
		InitialDelay:   time.Millisecond,
		MaxDelay:       time.Millisecond,
		Multiplier:     1,
		RetryableError: func(error) bool { return true },
	}

	err := Retry(context.Background(), config, func(ctx context.Context) error {
		return fmt.Errorf("still down")
	})

	require.Error(t, err)
	assert.Equal(t, ErrCodeMaxRetriesExceeded, GetErrorCode(err))
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	config := &RetryConfig{
		MaxRetries:     5,
		InitialDelay:   time.Second,
		MaxDelay:       time.Second,
		Multiplier:     1,
		RetryableError: func(error) bool { return true },
	}

	err := Retry(ctx, config, func(ctx context.Context) error {
		return fmt.Errorf("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
