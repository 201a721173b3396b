// Package classify maps a trial to the experimental condition it belongs to.
//
// Each task supplies its own Classifier. A classifier reads whatever fields
// its task's session files carry and returns the empty label for trials it
// cannot place; those trials are left out of per-condition statistics.
package classify

import (
	"iter"
	"slices"
	"strings"

	"github.com/sbuss/data-filter-utils/internal/trial"
)

// Classifier assigns a condition label to a trial.
type Classifier interface {
	Classify(trial.Trial) string
}

// Func adapts a plain function to the Classifier interface.
type Func func(trial.Trial) string

// Classify calls f(t).
func (f Func) Classify(t trial.Trial) string {
	return f(t)
}

// Annotate yields a copy of every trial with its label stored under field.
// Source trials are never modified.
func Annotate(seq iter.Seq[trial.Trial], c Classifier, field string) iter.Seq[trial.Trial] {
	return func(yield func(trial.Trial) bool) {
		for t := range seq {
			if !yield(t.With(field, c.Classify(t))) {
				return
			}
		}
	}
}

// Field uses an existing column as the label.
func Field(name string) Classifier {
	return Func(func(t trial.Trial) string {
		return t.Value(name)
	})
}

// Word and nonword labels for lexical decision trials.
const (
	LabelWord    = "word"
	LabelNonword = "nonword"
)

// IsWord classifies bilingual LDT sessions, which flag real words with
// isword=1.
var IsWord Classifier = Func(func(t trial.Trial) string {
	if t.Value("isword") == "1" {
		return LabelWord
	}
	return LabelNonword
})

// ImagePrefix classifies immersion LDT sessions by the stimulus image name:
// pseudo-words start with "j", real words with "word".
var ImagePrefix Classifier = Func(func(t trial.Trial) string {
	image := t.Value("image")
	switch {
	case strings.HasPrefix(image, "j"):
		return LabelNonword
	case strings.HasPrefix(image, "word"):
		return LabelWord
	default:
		return ""
	}
})

// ForLDTHeader picks the LDT classifier matching a session's columns. The
// choice is made once per file.
func ForLDTHeader(header []string) Classifier {
	if slices.Contains(header, "isword") {
		return IsWord
	}
	return ImagePrefix
}

// Simon task labels.
const (
	LabelCongruent   = "congruent"
	LabelIncongruent = "incongruent"
)

// Congruency classifies Simon trials: the red square belongs on the left,
// the blue one on the right, and centred boxes are congruent for both.
var Congruency Classifier = Func(func(t trial.Trial) string {
	box := t.Value("box_img")
	align := t.Value("alignment")
	switch {
	case box == "redsquare.bmp" && (align == "left" || align == "center"):
		return LabelCongruent
	case box == "bluesquare.bmp" && (align == "right" || align == "center"):
		return LabelCongruent
	default:
		return LabelIncongruent
	}
})
