package filters

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/sbuss/data-filter-utils/internal/stats"
	"github.com/sbuss/data-filter-utils/internal/trial"
)

// DefaultSigma is the z-score threshold used by the TRT outlier variants.
const DefaultSigma = 2.5

// OutlierScope selects the population an outlier threshold is computed over.
type OutlierScope string

const (
	// ScopeSession computes the threshold from each session file alone.
	ScopeSession OutlierScope = "session"
	// ScopeCohort computes it once over every file the task matches.
	ScopeCohort OutlierScope = "cohort"
)

// ParseOutlierScope validates a scope name.
func ParseOutlierScope(s string) (OutlierScope, error) {
	switch OutlierScope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeSession, "":
		return ScopeSession, nil
	case ScopeCohort:
		return ScopeCohort, nil
	default:
		return "", fmt.Errorf("unknown outlier scope %q (want session or cohort)", s)
	}
}

// OutlierOption bounds one side of the outlier window.
type OutlierOption func(*outlierBounds)

type outlierBounds struct {
	min, max       float64
	hasMin, hasMax bool
}

// WithMinSigma excludes values more than sigma standard deviations below the
// mean.
func WithMinSigma(sigma float64) OutlierOption {
	return func(b *outlierBounds) {
		b.min, b.hasMin = sigma, true
	}
}

// WithMaxSigma excludes values more than sigma standard deviations above the
// mean.
func WithMaxSigma(sigma float64) OutlierOption {
	return func(b *outlierBounds) {
		b.max, b.hasMax = sigma, true
	}
}

// Outlier excludes trials whose field lies outside
// [mean - minSigma*sd, mean + maxSigma*sd]. A side without a sigma is
// unbounded. Trials whose field is missing or malformed are excluded, and so
// is every trial when the reference estimate is undefined.
func Outlier(field string, ref stats.Estimate, opts ...OutlierOption) Predicate {
	var b outlierBounds
	for _, opt := range opts {
		opt(&b)
	}

	return func(t trial.Trial) bool {
		if !ref.Mean.Valid || !ref.StdDev.Valid {
			return true
		}
		v, err := t.Float(field)
		if err != nil {
			return true
		}
		// A zero deviation yields NaN for v == mean, which passes both checks.
		z := stat.StdScore(v, ref.Mean.Float, ref.StdDev.Float)
		if b.hasMin && z < -b.min {
			return true
		}
		if b.hasMax && z > b.max {
			return true
		}
		return false
	}
}

// SessionOutlier builds an Outlier predicate whose reference estimate comes
// from the given trials.
func SessionOutlier(trials []trial.Trial, field string, opts ...OutlierOption) (Predicate, stats.Estimate) {
	ref := stats.MeanStdDev(stats.FieldValues(trials, field))
	return Outlier(field, ref, opts...), ref
}

// Loader reads every trial of one session file.
type Loader func(path string) ([]trial.Trial, error)

// CohortOutlier scans every path, pools the numeric field values and builds a
// single Outlier predicate from the pooled estimate. All files are read
// before the predicate exists, so the threshold does not depend on the order
// the sessions are later processed in. Files that fail to load are passed to
// onError and left out of the pool.
func CohortOutlier(paths []string, load Loader, field string, onError func(path string, err error), opts ...OutlierOption) (Predicate, stats.Estimate) {
	var pooled []float64
	for _, p := range paths {
		trials, err := load(p)
		if err != nil {
			if onError != nil {
				onError(p, err)
			}
			continue
		}
		pooled = append(pooled, stats.FieldValues(trials, field)...)
	}
	ref := stats.MeanStdDev(pooled)
	return Outlier(field, ref, opts...), ref
}
