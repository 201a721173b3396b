// Package stream applies a practice-trial prefix skip and a set of exclusion
// predicates to a sequence of trials in a single lazy pass.
package stream

import (
	"iter"
	"log/slog"

	"github.com/sbuss/data-filter-utils/internal/filters"
	"github.com/sbuss/data-filter-utils/internal/trial"
)

// Counts tallies what a Stream did with each record it consumed.
type Counts struct {
	Included int
	Skipped  int
	Excluded int
}

// Stream is a forward-only, single-use filtered view over a record sequence.
type Stream struct {
	records iter.Seq[trial.Trial]
	skip    int
	exclude filters.Predicate
	counts  Counts
	used    bool
	onDone  func(Counts)
	logger  *slog.Logger
}

// Option configures a Stream.
type Option func(*Stream)

// OnDone registers fn to run once, with the final counts, when the
// underlying records are exhausted.
func OnDone(fn func(Counts)) Option {
	return func(s *Stream) { s.onDone = fn }
}

// WithLogger sets the logger that receives the exhaustion summary.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Stream) { s.logger = logger }
}

// New drops the first skip records unconditionally, then drops every record
// for which any predicate returns true. A nil record stands for a row that
// could not be read: it takes its place in the skipped prefix and is
// otherwise dropped without being counted.
func New(records iter.Seq[trial.Trial], skip int, preds []filters.Predicate, opts ...Option) *Stream {
	if skip < 0 {
		skip = 0
	}
	s := &Stream{
		records: records,
		skip:    skip,
		exclude: filters.Any(preds...),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// All yields the records that survive the filter, in input order. The
// stream can be ranged over once; later calls yield nothing.
func (s *Stream) All() iter.Seq[trial.Trial] {
	return func(yield func(trial.Trial) bool) {
		if s.used {
			return
		}
		s.used = true

		for rec := range s.records {
			if s.counts.Skipped < s.skip {
				s.counts.Skipped++
				continue
			}
			if rec == nil {
				continue
			}
			if s.exclude(rec) {
				s.counts.Excluded++
				continue
			}
			s.counts.Included++
			if !yield(rec) {
				return
			}
		}
		s.finish()
	}
}

// Counts returns the tallies so far. They are final once OnDone has fired.
func (s *Stream) Counts() Counts {
	return s.counts
}

func (s *Stream) finish() {
	s.logger.Debug("filtered stream exhausted",
		slog.Int("included", s.counts.Included),
		slog.Int("skipped", s.counts.Skipped),
		slog.Int("excluded", s.counts.Excluded))
	if s.onDone != nil {
		s.onDone(s.counts)
	}
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq[trial.Trial]) []trial.Trial {
	var out []trial.Trial
	for t := range seq {
		out = append(out, t)
	}
	return out
}

// FromSlice adapts a slice to a record sequence.
func FromSlice(trials []trial.Trial) iter.Seq[trial.Trial] {
	return func(yield func(trial.Trial) bool) {
		for _, t := range trials {
			if !yield(t) {
				return
			}
		}
	}
}
