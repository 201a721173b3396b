// Package filters holds the trial-validity predicates applied before
// aggregation. A Predicate returns true when a trial must be excluded; a set
// of predicates excludes a trial when any one of them does.
package filters

import (
	"github.com/sbuss/data-filter-utils/internal/trial"
)

// Response-time window in milliseconds outside of which a trial is treated as
// an anticipation or a lapse.
const (
	MinResponseTime = 200
	MaxResponseTime = 2000
)

// Predicate reports whether a trial should be excluded.
type Predicate func(trial.Trial) bool

// Any combines predicates with a logical OR of exclusions. With no
// predicates nothing is excluded.
func Any(preds ...Predicate) Predicate {
	return func(t trial.Trial) bool {
		for _, p := range preds {
			if p(t) {
				return true
			}
		}
		return false
	}
}

// ExcludeWrong excludes trials answered incorrectly.
func ExcludeWrong(t trial.Trial) bool {
	raw, ok := t.Get(trial.FieldAccuracy)
	if !ok {
		return false
	}
	if raw == "0" {
		return true
	}
	f, err := trial.ParseFloat(raw)
	return err == nil && f == 0
}

// ExcludeResponseTimeOutOfRange excludes trials without a usable response
// time or with one outside [MinResponseTime, MaxResponseTime].
var ExcludeResponseTimeOutOfRange = ResponseTimeOutside(MinResponseTime, MaxResponseTime)

// ResponseTimeOutside excludes trials whose response time is missing,
// malformed, below min or above max. Both bounds are inclusive.
func ResponseTimeOutside(min, max float64) Predicate {
	return func(t trial.Trial) bool {
		rt, err := t.Float(trial.FieldResponseTime)
		if err != nil {
			return true
		}
		return rt < min || rt > max
	}
}
