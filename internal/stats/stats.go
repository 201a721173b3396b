// Package stats computes the descriptive statistics reported for each
// condition: arithmetic mean and Bessel-corrected sample standard deviation.
//
// A statistic over too few samples is undefined rather than zero. Undefined
// values travel as Value{Valid: false} and render as "null" in output tables.
package stats

import (
	"strconv"

	"github.com/montanaflynn/stats"

	"github.com/sbuss/data-filter-utils/internal/trial"
)

// Null is how an undefined statistic is written to an output table.
const Null = "null"

// Value is a statistic that may be undefined.
type Value struct {
	Float float64
	Valid bool
}

// Defined wraps f as a defined value.
func Defined(f float64) Value {
	return Value{Float: f, Valid: true}
}

// Undefined returns the undefined value.
func Undefined() Value {
	return Value{}
}

// Sub returns v - o, undefined if either operand is.
func (v Value) Sub(o Value) Value {
	if !v.Valid || !o.Valid {
		return Undefined()
	}
	return Defined(v.Float - o.Float)
}

// String renders the value for an output cell.
func (v Value) String() string {
	if !v.Valid {
		return Null
	}
	return strconv.FormatFloat(v.Float, 'f', -1, 64)
}

// Estimate is the mean and sample standard deviation of one sample.
type Estimate struct {
	Mean   Value
	StdDev Value
	N      int
}

// MeanStdDev returns the arithmetic mean and the n-1 sample standard
// deviation of values. With no values both are undefined; with a single
// value the standard deviation is undefined.
func MeanStdDev(values []float64) Estimate {
	est := Estimate{N: len(values)}
	if len(values) == 0 {
		return est
	}

	mean, err := stats.Mean(values)
	if err != nil {
		return est
	}
	est.Mean = Defined(mean)
	if len(values) == 1 {
		return est
	}

	sd, err := stats.StandardDeviationSample(values)
	if err != nil {
		return est
	}
	est.StdDev = Defined(sd)
	return est
}

// FieldValues collects the numeric values of field across trials, dropping
// trials where the field is missing or malformed.
func FieldValues(trials []trial.Trial, field string) []float64 {
	out := make([]float64, 0, len(trials))
	for _, t := range trials {
		if f, err := t.Float(field); err == nil {
			out = append(out, f)
		}
	}
	return out
}
