// Package trial defines the raw record read from a session file: one
// stimulus presentation and the subject's response, keyed by column name.
package trial

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Well-known field names shared by every task.
const (
	FieldResponseTime = "response_time"
	FieldAccuracy     = "accuracy"
)

// Missing is the marker experiment software writes for an absent measurement.
const Missing = "NA"

var (
	ErrMissingField    = errors.New("field not present")
	ErrMalformedNumber = errors.New("malformed number")
)

// Trial maps column names to raw cell values. The column set is whatever the
// session file's header declares.
type Trial map[string]string

// Get returns the raw value of field and whether the field exists.
func (t Trial) Get(field string) (string, bool) {
	v, ok := t[field]
	return v, ok
}

// Value returns the raw value of field, or "" when it is absent.
func (t Trial) Value(field string) string {
	return t[field]
}

// Float parses field as a float64. Empty, NA, NaN, Inf and non-numeric
// values all report ErrMalformedNumber.
func (t Trial) Float(field string) (float64, error) {
	raw, ok := t[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return ParseFloat(raw)
}

// Clone returns an independent copy of the trial.
func (t Trial) Clone() Trial {
	c := make(Trial, len(t)+1)
	for k, v := range t {
		c[k] = v
	}
	return c
}

// With returns a copy of the trial with field set to value.
func (t Trial) With(field, value string) Trial {
	c := t.Clone()
	c[field] = value
	return c
}

// ParseFloat parses a raw cell value as a finite float64.
func ParseFloat(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == Missing {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNumber, raw)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrMalformedNumber, raw)
	}
	return f, nil
}
