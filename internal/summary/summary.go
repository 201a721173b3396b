// Package summary groups filtered trials by condition and reports response
// time and accuracy statistics per condition and overall.
package summary

import (
	"sort"
	"strings"

	"github.com/maruel/natural"

	"github.com/sbuss/data-filter-utils/internal/filters"
	"github.com/sbuss/data-filter-utils/internal/stats"
	"github.com/sbuss/data-filter-utils/internal/trial"
)

// Overall is the synthetic group spanning every trial of a session.
const Overall = "overall"

// GroupStats holds the statistics of one condition.
type GroupStats struct {
	// ResponseTime covers correctly answered trials only.
	ResponseTime stats.Estimate
	// Accuracy covers every trial in the group.
	Accuracy stats.Estimate
	Trials   int
}

// Summary is the per-condition breakdown of one session.
type Summary struct {
	groups map[string]GroupStats
}

// Summarize partitions trials by the lowercased value of groupField.
//
// Trials with an empty group value are left out of every condition but still
// count towards Overall. A condition literally named "overall" is shadowed by
// the synthetic group.
func Summarize(trials []trial.Trial, groupField string) *Summary {
	byKey := make(map[string][]trial.Trial)
	for _, t := range trials {
		key := strings.ToLower(t.Value(groupField))
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], t)
	}

	s := &Summary{groups: make(map[string]GroupStats, len(byKey)+1)}
	for key, group := range byKey {
		s.groups[key] = groupStats(group)
	}
	s.groups[Overall] = groupStats(trials)
	return s
}

func groupStats(trials []trial.Trial) GroupStats {
	correct := make([]trial.Trial, 0, len(trials))
	for _, t := range trials {
		if !filters.ExcludeWrong(t) {
			correct = append(correct, t)
		}
	}
	return GroupStats{
		ResponseTime: stats.MeanStdDev(stats.FieldValues(correct, trial.FieldResponseTime)),
		Accuracy:     stats.MeanStdDev(stats.FieldValues(trials, trial.FieldAccuracy)),
		Trials:       len(trials),
	}
}

// Labels returns every group label, Overall included, in natural order.
func (s *Summary) Labels() []string {
	labels := make([]string, 0, len(s.groups))
	for l := range s.groups {
		labels = append(labels, l)
	}
	NaturalSort(labels)
	return labels
}

// Group returns the statistics of label.
func (s *Summary) Group(label string) (GroupStats, bool) {
	g, ok := s.groups[strings.ToLower(label)]
	return g, ok
}

// MeanRT returns the mean correct response time of label, undefined when
// the session has no such group.
func (s *Summary) MeanRT(label string) stats.Value {
	g, ok := s.Group(label)
	if !ok {
		return stats.Undefined()
	}
	return g.ResponseTime.Mean
}

// Column name prefixes.
const (
	PrefixAvgRT  = "AvgRT"
	PrefixSDRT   = "SDRT"
	PrefixAvgAcc = "AvgAcc"
	PrefixSDAcc  = "SDAcc"
)

// Column builds a "<statistic>-<group>" column name.
func Column(prefix, label string) string {
	return prefix + "-" + label
}

// FlattenOptions controls which statistics become columns.
type FlattenOptions struct {
	IncludeStdDev bool
}

// Flatten turns the summary into a row with AvgRT-<group> and AvgAcc-<group>
// columns, plus SDRT-/SDAcc- columns when requested.
func (s *Summary) Flatten(opts FlattenOptions) Row {
	row := make(Row, len(s.groups)*4)
	for label, g := range s.groups {
		row.SetValue(Column(PrefixAvgRT, label), g.ResponseTime.Mean)
		row.SetValue(Column(PrefixAvgAcc, label), g.Accuracy.Mean)
		if opts.IncludeStdDev {
			row.SetValue(Column(PrefixSDRT, label), g.ResponseTime.StdDev)
			row.SetValue(Column(PrefixSDAcc, label), g.Accuracy.StdDev)
		}
	}
	return row
}

// Row is one line of an aggregate table, keyed by column name.
type Row map[string]string

// Set stores a text cell.
func (r Row) Set(column, value string) {
	r[column] = value
}

// SetValue stores a statistic cell.
func (r Row) SetValue(column string, v stats.Value) {
	r[column] = v.String()
}

// Columns returns the row's column names in natural order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	NaturalSort(cols)
	return cols
}

// Record returns the row's cells in the order of columns, with missing in
// place of columns the row lacks.
func (r Row) Record(columns []string, missing string) []string {
	rec := make([]string, len(columns))
	for i, c := range columns {
		v, ok := r[c]
		if !ok {
			v = missing
		}
		rec[i] = v
	}
	return rec
}

// NaturalSort orders strings so that embedded numbers compare numerically
// ("cond2" before "cond10").
func NaturalSort(s []string) {
	sort.Sort(natural.StringSlice(s))
}
