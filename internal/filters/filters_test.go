package filters

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sbuss/data-filter-utils/internal/stats"
	"github.com/sbuss/data-filter-utils/internal/trial"
)

func rt(v string) trial.Trial {
	return trial.Trial{trial.FieldResponseTime: v, trial.FieldAccuracy: "1"}
}

func TestExcludeResponseTimeOutOfRange(t *testing.T) {
	tests := []struct {
		value   string
		exclude bool
	}{
		{"199", true},
		{"200", false},
		{"1000", false},
		{"2000", false},
		{"2001", true},
		{"NA", true},
		{"", true},
		{"slow", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.exclude, ExcludeResponseTimeOutOfRange(rt(tt.value)))
		})
	}

	assert.True(t, ExcludeResponseTimeOutOfRange(trial.Trial{}), "missing field is excluded")
}

func TestExcludeWrong(t *testing.T) {
	tests := []struct {
		name    string
		trial   trial.Trial
		exclude bool
	}{
		{"wrong", trial.Trial{trial.FieldAccuracy: "0"}, true},
		{"wrong as float", trial.Trial{trial.FieldAccuracy: "0.0"}, true},
		{"correct", trial.Trial{trial.FieldAccuracy: "1"}, false},
		{"missing accuracy", trial.Trial{}, false},
		{"NA accuracy", trial.Trial{trial.FieldAccuracy: "NA"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.exclude, ExcludeWrong(tt.trial))
		})
	}
}

func TestAny(t *testing.T) {
	never := func(trial.Trial) bool { return false }
	always := func(trial.Trial) bool { return true }

	assert.False(t, Any()(rt("500")))
	assert.False(t, Any(never, never)(rt("500")))
	assert.True(t, Any(never, always)(rt("500")))

	combined := Any(ExcludeWrong, ExcludeResponseTimeOutOfRange)
	assert.True(t, combined(trial.Trial{trial.FieldAccuracy: "0", trial.FieldResponseTime: "500"}))
	assert.True(t, combined(trial.Trial{trial.FieldAccuracy: "1", trial.FieldResponseTime: "150"}))
	assert.False(t, combined(trial.Trial{trial.FieldAccuracy: "1", trial.FieldResponseTime: "500"}))
}

func TestOutlier(t *testing.T) {
	ref := stats.Estimate{Mean: stats.Defined(500), StdDev: stats.Defined(100), N: 10}
	pred := Outlier(trial.FieldResponseTime, ref, WithMinSigma(2.5), WithMaxSigma(2.5))

	tests := []struct {
		value   string
		exclude bool
	}{
		{"150", true},
		{"900", true},
		{"400", false},
		{"600", false},
		{"250", false},
		{"750", false},
		{"NA", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.exclude, pred(rt(tt.value)))
		})
	}
}

func TestOutlier_OneSided(t *testing.T) {
	ref := stats.Estimate{Mean: stats.Defined(500), StdDev: stats.Defined(100)}

	upperOnly := Outlier(trial.FieldResponseTime, ref, WithMaxSigma(2))
	assert.False(t, upperOnly(rt("1")))
	assert.True(t, upperOnly(rt("701")))

	lowerOnly := Outlier(trial.FieldResponseTime, ref, WithMinSigma(1))
	assert.True(t, lowerOnly(rt("399")))
	assert.False(t, lowerOnly(rt("100000")))

	unbounded := Outlier(trial.FieldResponseTime, ref)
	assert.False(t, unbounded(rt("-100000")))
	assert.True(t, unbounded(rt("NA")))
}

func TestOutlier_UndefinedReferenceExcludesAll(t *testing.T) {
	ref := stats.MeanStdDev([]float64{480})
	pred := Outlier(trial.FieldResponseTime, ref, WithMinSigma(2.5), WithMaxSigma(2.5))
	assert.True(t, pred(rt("480")))
}

func TestOutlier_ZeroDeviation(t *testing.T) {
	ref := stats.MeanStdDev([]float64{500, 500, 500})
	pred := Outlier(trial.FieldResponseTime, ref, WithMinSigma(2.5), WithMaxSigma(2.5))
	assert.False(t, pred(rt("500")))
	assert.True(t, pred(rt("501")))
	assert.True(t, pred(rt("499")))
}

func TestSessionOutlier(t *testing.T) {
	trials := []trial.Trial{rt("400"), rt("500"), rt("600"), rt("NA")}
	pred, ref := SessionOutlier(trials, trial.FieldResponseTime, WithMaxSigma(1))

	assert.Equal(t, 3, ref.N)
	assert.InDelta(t, 500, ref.Mean.Float, 1e-9)
	assert.InDelta(t, 100, ref.StdDev.Float, 1e-9)
	assert.True(t, pred(rt("601")))
	assert.False(t, pred(rt("600")))
}

func TestCohortOutlier(t *testing.T) {
	files := map[string][]trial.Trial{
		"a.csv": {rt("300"), rt("400")},
		"b.csv": {rt("500"), rt("600"), rt("NA")},
		"c.csv": {rt("700")},
	}
	load := func(p string) ([]trial.Trial, error) {
		if p == "broken.csv" {
			return nil, errors.New("unreadable")
		}
		return files[p], nil
	}

	var failed []string
	pred, ref := CohortOutlier(
		[]string{"a.csv", "broken.csv", "b.csv", "c.csv"},
		load,
		trial.FieldResponseTime,
		func(p string, err error) { failed = append(failed, p) },
		WithMinSigma(1), WithMaxSigma(1),
	)

	require.Equal(t, []string{"broken.csv"}, failed)
	assert.Equal(t, 5, ref.N)
	assert.InDelta(t, 500, ref.Mean.Float, 1e-9)
	// sample sd of 300..700 step 100
	assert.InDelta(t, 158.11388300841898, ref.StdDev.Float, 1e-9)
	assert.True(t, pred(rt("300")))
	assert.False(t, pred(rt("400")))
	assert.True(t, pred(rt("700")))
}

func TestCohortOutlier_OrderIndependent(t *testing.T) {
	files := map[string][]trial.Trial{
		"a.csv": {rt("250"), rt("260")},
		"b.csv": {rt("900"), rt("1200")},
	}
	load := func(p string) ([]trial.Trial, error) { return files[p], nil }

	_, forward := CohortOutlier([]string{"a.csv", "b.csv"}, load, trial.FieldResponseTime, nil)
	_, backward := CohortOutlier([]string{"b.csv", "a.csv"}, load, trial.FieldResponseTime, nil)
	assert.InDelta(t, forward.Mean.Float, backward.Mean.Float, 1e-9)
	assert.InDelta(t, forward.StdDev.Float, backward.StdDev.Float, 1e-9)
}

func TestParseOutlierScope(t *testing.T) {
	s, err := ParseOutlierScope("Cohort")
	require.NoError(t, err)
	assert.Equal(t, ScopeCohort, s)

	s, err = ParseOutlierScope("")
	require.NoError(t, err)
	assert.Equal(t, ScopeSession, s)

	_, err = ParseOutlierScope("global")
	assert.Error(t, err)
}
