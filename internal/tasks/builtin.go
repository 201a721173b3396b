package tasks

import (
	"sort"

	"github.com/sbuss/data-filter-utils/internal/classify"
	"github.com/sbuss/data-filter-utils/internal/filters"
)

// Lexical decision: 16 practice trials, then 60 words and 60 pseudo-words.
// Some exports carry extra heading rows above the real header.
func LDT() Task {
	return Task{
		Name:          "ldt",
		Pattern:       `.*LDT.*\.csv`,
		Skip:          16,
		ExpectedLines: 1 + 16 + 60 + 60,
		GroupField:    "word_or_nonword",
		Classifier:    &classify.Spec{Kind: classify.KindLDT},
		Participant:   ParticipantStem,
		Output:        "ldt-summary.csv",
	}
}

// Simon task: 25 practice trials. The Simon effect is the response time cost
// of incongruent over congruent trials.
func Simon() Task {
	return Task{
		Name:        "simon",
		Pattern:     `si.*\.csv`,
		Skip:        25,
		GroupField:  "congruent",
		Classifier:  &classify.Spec{Kind: classify.KindCongruency},
		Participant: ParticipantStem,
		Differences: []Difference{{
			Column:     "simon_score",
			Minuend:    classify.LabelIncongruent,
			Subtrahend: classify.LabelCongruent,
		}},
		Output: "simon-summary.csv",
	}
}

// Operation span: 24 practice trials, grouped by the use_correct column.
func OSPAN() Task {
	return Task{
		Name:        "ospan",
		Pattern:     `.*OSPAN.*\.csv`,
		Skip:        24,
		GroupField:  "use_correct",
		Participant: ParticipantPrefix,
		Output:      "ospan-summary.csv",
	}
}

// Translation recognition: 17 leading rows, grouped by distractor class and
// summarized four ways per session.
func TRT() Task {
	return Task{
		Name:        "trt",
		Pattern:     `.*TRT.*\.csv`,
		Skip:        17,
		GroupField:  "class",
		Participant: ParticipantPrefix,
		IDColumn:    "trt_session",
		Sigma:       filters.DefaultSigma,
		Variants: []Variant{
			{Name: "all"},
			{Name: "exclude outliers", Outliers: true},
			{Name: "exclude <200ms and >2000ms", ResponseTimeRange: true},
			{Name: "exclude both", Outliers: true, ResponseTimeRange: true},
		},
		Output: "trt-summary.csv",
	}
}

var builtins = map[string]func() Task{
	"ldt":   LDT,
	"simon": Simon,
	"ospan": OSPAN,
	"trt":   TRT,
}

// Builtin returns the built-in task called name.
func Builtin(name string) (Task, bool) {
	fn, ok := builtins[name]
	if !ok {
		return Task{}, false
	}
	return fn(), true
}

// BuiltinNames lists the built-in task names in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
