package models

import (
	"encoding/json"
	"fmt"
	"time"

	dErrors "irpf/pkg/domain-errors"
)

// Period is a calendar month. The zero value means "undated".
type Period struct {
	Year  int
	Month time.Month
}

// NewPeriod builds a validated period.
func NewPeriod(year int, month time.Month) (Period, error) {
	if year < 1900 || year > 9999 {
		return Period{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid period year: %d", year))
	}
	if month < time.January || month > time.December {
		return Period{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid period month: %d", month))
	}
	return Period{Year: year, Month: month}, nil
}

// PeriodOf returns the month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("invalid period %q, expected YYYY-MM", s))
	}
	return NewPeriod(t.Year(), t.Month())
}

func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

func (p Period) String() string {
	if p.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Compare returns -1, 0 or 1. Undated periods sort before any dated one.
func (p Period) Compare(o Period) int {
	switch {
	case p.Year != o.Year:
		if p.Year < o.Year {
			return -1
		}
		return 1
	case p.Month != o.Month:
		if p.Month < o.Month {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// Contains reports whether t falls within the period.
func (p Period) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

func (p Period) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(p.String())
}

func (p *Period) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = Period{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("period must be a YYYY-MM string: %w", err)
	}
	if s == "" {
		*p = Period{}
		return nil
	}
	parsed, err := ParsePeriod(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
