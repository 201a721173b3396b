// Package tasks describes the cognitive tasks the summarizer knows how to
// process and runs the per-file pipeline for each of them.
//
// A Task is plain configuration: which files belong to it, how many practice
// trials lead each session, how trials are classified and which filtering
// variants produce output rows. The built-in tasks (ldt, simon, ospan, trt)
// are defined in Go; further tasks can be loaded from YAML.
package tasks

import (
	"path/filepath"
	"strings"

	"github.com/sbuss/data-filter-utils/internal/classify"
	"github.com/sbuss/data-filter-utils/internal/config"
	"github.com/sbuss/data-filter-utils/internal/files"
	"github.com/sbuss/data-filter-utils/internal/table"
)

// How the participant identifier is derived from a session file name.
const (
	// ParticipantStem uses the file name without its extension.
	ParticipantStem = "stem"
	// ParticipantPrefix uses the file name up to the first underscore.
	ParticipantPrefix = "prefix"
)

// Default identifier column.
const ColumnParticipant = "participant"

// Variant is one filtering pass over a session. Each variant yields its own
// output row.
type Variant struct {
	Name string `yaml:"name" validate:"required"`
	// Outliers drops response times beyond Task.Sigma standard deviations.
	Outliers bool `yaml:"outliers"`
	// ResponseTimeRange drops response times outside [200, 2000] ms.
	ResponseTimeRange bool `yaml:"response_time_range"`
}

// Difference adds a column holding the mean correct response time of one
// condition minus that of another.
type Difference struct {
	Column     string `yaml:"column" validate:"required"`
	Minuend    string `yaml:"minuend" validate:"required"`
	Subtrahend string `yaml:"subtrahend" validate:"required"`
}

// Task configures how one kind of session file is summarized.
type Task struct {
	Name            string `yaml:"name" validate:"required"`
	Pattern         string `yaml:"pattern" validate:"required,regexp"`
	CaseInsensitive bool   `yaml:"case_insensitive"`
	// Skip is the number of leading practice trials.
	Skip int `yaml:"skip" validate:"gte=0"`
	// ExpectedLines enables the stray-heading repair for CSV sessions.
	ExpectedLines int `yaml:"expected_lines" validate:"gte=0"`
	// GroupField holds the condition label. With a Classifier the label is
	// computed and written there; otherwise it must be a column of the file.
	GroupField  string         `yaml:"group_field" validate:"required"`
	Classifier  *classify.Spec `yaml:"classifier" validate:"omitempty"`
	Participant string         `yaml:"participant" validate:"omitempty,oneof=stem prefix"`
	IDColumn    string         `yaml:"id_column"`
	Variants    []Variant      `yaml:"variants" validate:"dive"`
	Sigma       float64        `yaml:"sigma" validate:"gte=0"`
	Differences []Difference   `yaml:"differences" validate:"dive"`
	Output      string         `yaml:"output" validate:"required,filename"`
	StdDev      bool           `yaml:"std_dev"`
}

// Validate checks the task definition.
func (t Task) Validate() error {
	return config.ValidateStruct(t)
}

// FilePattern compiles the task's file name pattern.
func (t Task) FilePattern() (*files.Pattern, error) {
	return files.CompilePattern(t.Pattern, t.CaseInsensitive)
}

// ParticipantID derives the participant identifier from a session path.
func (t Task) ParticipantID(path string) string {
	stem := table.Stem(path)
	if t.Participant == ParticipantPrefix {
		stem, _, _ = strings.Cut(stem, "_")
	}
	return stem
}

// IdentifierColumn is the column naming each output row.
func (t Task) IdentifierColumn() string {
	if t.IDColumn == "" {
		return ColumnParticipant
	}
	return t.IDColumn
}

// EffectiveVariants returns the configured variants, or a single pass with
// no extra filters.
func (t Task) EffectiveVariants() []Variant {
	if len(t.Variants) == 0 {
		return []Variant{{Name: "all"}}
	}
	return t.Variants
}

// UsesOutliers reports whether any variant needs an outlier threshold.
func (t Task) UsesOutliers() bool {
	for _, v := range t.Variants {
		if v.Outliers {
			return true
		}
	}
	return false
}

// RowID is the identifier value of the row produced for participant by
// variant. Tasks with explicit variants suffix the variant name.
func (t Task) RowID(participant string, v Variant) string {
	if len(t.Variants) == 0 {
		return participant
	}
	return participant + "-" + v.Name
}

// OutputPath places the task's output file in dir.
func (t Task) OutputPath(dir string) string {
	return filepath.Join(dir, t.Output)
}
