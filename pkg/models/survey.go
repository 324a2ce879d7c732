package models

import (
	"database/sql/driver"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NotAvailable is the sentinel the export uses for a suppressed percentage.
const NotAvailable = "Not Available"

// RawObservation is one row of the flat survey export, exactly as read.
type RawObservation struct {
	Line      int    `json:"line"`
	State     string `json:"state"`
	MeasureID string `json:"measure_id"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Percent   string `json:"percent"`
	Footnote  string `json:"footnote,omitempty"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// StateDim is a row of the state dimension
type StateDim struct {
	ID   int    `json:"id"`
	Code string `json:"code"`
}

// MeasureDim is a row of the measure dimension
type MeasureDim struct {
	ID        int    `json:"id"`
	MeasureID string `json:"measure_id"`
	Question  string `json:"question"`
}

// AnswerDim is a row of the answer-category dimension
type AnswerDim struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// Fact is one cleaned observation. All three dimension ids are non-zero.
type Fact struct {
	StateID   int       `json:"state_id"`
	MeasureID int       `json:"measure_id"`
	AnswerID  int       `json:"answer_id"`
	Percent   Percent   `json:"percent"`
	Footnote  string    `json:"footnote,omitempty"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Percent is a nullable percentage with two fractional digits, held as
// hundredths so that 85.5 and 85.50 are the same value.
type Percent struct {
	Hundredths int64
	Valid      bool
}

// NewPercent rounds v to two fractional digits.
func NewPercent(v float64) Percent {
	return Percent{Hundredths: int64(math.Round(v * 100)), Valid: true}
}

// ParsePercent parses a plain decimal literal ("85", "85.5", "-0.125") and
// rounds it half away from zero to two fractional digits.
func ParsePercent(s string) (Percent, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Percent{}, fmt.Errorf("empty decimal")
	}

	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Percent{}, fmt.Errorf("no digits")
	}
	if !allDigits(whole) || !allDigits(frac) {
		return Percent{}, fmt.Errorf("not a decimal number")
	}
	if len(whole) > 15 {
		return Percent{}, fmt.Errorf("value out of range")
	}
	if whole == "" {
		whole = "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Percent{}, err
	}
	f, _ := strconv.Atoi((frac + "000")[:3])

	h := w*100 + int64(f/10)
	if f%10 >= 5 {
		h++
	}
	if neg {
		h = -h
	}
	return Percent{Hundredths: h, Valid: true}, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Float returns the value as a float64; callers must check Valid.
func (p Percent) Float() float64 {
	return float64(p.Hundredths) / 100
}

// String renders "85.50", or "NULL" when absent.
func (p Percent) String() string {
	if !p.Valid {
		return "NULL"
	}
	sign := ""
	h := p.Hundredths
	if h < 0 {
		sign = "-"
		h = -h
	}
	return fmt.Sprintf("%s%d.%02d", sign, h/100, h%100)
}

// Value implements driver.Valuer
func (p Percent) Value() (driver.Value, error) {
	if !p.Valid {
		return nil, nil
	}
	return p.Float(), nil
}

// Scan implements sql.Scanner
func (p *Percent) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = Percent{}
	case float64:
		*p = NewPercent(v)
	case float32:
		*p = NewPercent(float64(v))
	case int64:
		*p = Percent{Hundredths: v * 100, Valid: true}
	case []byte:
		parsed, err := ParsePercent(string(v))
		if err != nil {
			return fmt.Errorf("scan percent %q: %w", v, err)
		}
		*p = parsed
	case string:
		parsed, err := ParsePercent(v)
		if err != nil {
			return fmt.Errorf("scan percent %q: %w", v, err)
		}
		*p = parsed
	default:
		return fmt.Errorf("scan percent: unsupported type %T", src)
	}
	return nil
}

// MarshalJSON renders the percentage as a number or null
func (p Percent) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return []byte(p.String()), nil
}
