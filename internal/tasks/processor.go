package tasks

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"github.com/sbuss/data-filter-utils/internal/classify"
	apperrors "github.com/sbuss/data-filter-utils/internal/errors"
	"github.com/sbuss/data-filter-utils/internal/files"
	"github.com/sbuss/data-filter-utils/internal/filters"
	"github.com/sbuss/data-filter-utils/internal/stats"
	"github.com/sbuss/data-filter-utils/internal/stream"
	"github.com/sbuss/data-filter-utils/internal/summary"
	"github.com/sbuss/data-filter-utils/internal/table"
	"github.com/sbuss/data-filter-utils/internal/trial"
)

// FileResult is what one session file contributed.
type FileResult struct {
	Rows []summary.Row
	// Counts sums the stream counters of every variant.
	Counts stream.Counts
	// Malformed is the number of unreadable rows the reader skipped.
	Malformed int
	// Reference is the session outlier estimate, when one was computed.
	Reference *stats.Estimate
}

// Processor runs a task's per-file pipeline: read, skip practice trials,
// filter, classify, summarize and flatten.
type Processor struct {
	task    Task
	scope   filters.OutlierScope
	logger  *slog.Logger
	cohort  filters.Predicate
	prepped bool
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithScope selects where outlier thresholds are computed. The default is
// per session.
func WithScope(scope filters.OutlierScope) ProcessorOption {
	return func(p *Processor) { p.scope = scope }
}

// WithLogger sets the processor's logger.
func WithLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) { p.logger = logger }
}

// NewProcessor validates task and returns a processor for it.
func NewProcessor(task Task, opts ...ProcessorOption) (*Processor, error) {
	if err := task.Validate(); err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("invalid task %q", task.Name), err)
	}
	p := &Processor{
		task:   task,
		scope:  filters.ScopeSession,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("task", task.Name))
	return p, nil
}

// Task returns the processor's task definition.
func (p *Processor) Task() Task {
	return p.task
}

// Prepare runs before any file is processed. With cohort scope it reads
// every session once and fixes the outlier threshold for the whole batch.
func (p *Processor) Prepare(ctx context.Context, paths []string) (*stats.Estimate, error) {
	p.prepped = true
	if p.scope != filters.ScopeCohort || !p.task.UsesOutliers() {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pred, ref := filters.CohortOutlier(paths, p.load, trial.FieldResponseTime,
		func(path string, err error) {
			p.logger.WarnContext(ctx, "Session left out of cohort estimate",
				slog.String("file", path),
				slog.String("error", err.Error()))
		},
		p.sigmaOptions()...)
	p.cohort = pred

	p.logger.InfoContext(ctx, "Cohort outlier threshold computed",
		slog.Int("files", len(paths)),
		slog.Int("samples", ref.N),
		slog.String("mean", ref.Mean.String()),
		slog.String("std_dev", ref.StdDev.String()))
	return &ref, nil
}

func (p *Processor) load(path string) ([]trial.Trial, error) {
	_, trials, err := table.ReadAll(path, p.readOptions()...)
	return trials, err
}

func (p *Processor) readOptions() []table.ReadOption {
	opts := []table.ReadOption{table.WithReadLogger(p.logger)}
	if p.task.ExpectedLines > 0 {
		opts = append(opts, table.WithExpectedLines(p.task.ExpectedLines))
	}
	return opts
}

func (p *Processor) sigmaOptions() []filters.OutlierOption {
	return []filters.OutlierOption{
		filters.WithMinSigma(p.task.Sigma),
		filters.WithMaxSigma(p.task.Sigma),
	}
}

// ProcessFile summarizes one session file into one row per variant. Any
// error is file level: the caller should skip the file and carry on.
func (p *Processor) ProcessFile(ctx context.Context, path string) (*FileResult, error) {
	if p.scope == filters.ScopeCohort && p.task.UsesOutliers() && !p.prepped {
		return nil, fmt.Errorf("processor for task %q used with cohort scope before Prepare", p.task.Name)
	}

	r, err := table.Open(path, p.readOptions()...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	header := r.Header()
	if err := p.checkHeader(header); err != nil {
		return nil, apperrors.NewSchemaError("session columns do not fit task", err).
			WithContext("file", path)
	}

	classifier, err := p.classifier(header)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to build classifier", err).
			WithContext("file", path)
	}

	variants := p.task.EffectiveVariants()
	result := &FileResult{}

	// A single plain pass streams straight from the file. Anything else
	// needs the whole session in memory: variants re-read it, and a session
	// outlier threshold is computed over every row before filtering. Both
	// read Rows, whose nil placeholders keep malformed rows inside the
	// practice prefix.
	var (
		source  func() iter.Seq[trial.Trial]
		outlier filters.Predicate
	)
	if len(variants) == 1 && !p.task.UsesOutliers() {
		source = r.Rows
	} else {
		all := stream.Collect(r.Rows())
		if err := r.Err(); err != nil {
			return nil, err
		}
		source = func() iter.Seq[trial.Trial] { return stream.FromSlice(all) }

		if p.task.UsesOutliers() {
			outlier = p.cohort
			if p.scope != filters.ScopeCohort {
				pred, ref := filters.SessionOutlier(all, trial.FieldResponseTime, p.sigmaOptions()...)
				outlier = pred
				result.Reference = &ref
			}
		}
	}

	participant := p.task.ParticipantID(path)
	for _, v := range variants {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var preds []filters.Predicate
		if v.Outliers {
			preds = append(preds, outlier)
		}
		if v.ResponseTimeRange {
			preds = append(preds, filters.ExcludeResponseTimeOutOfRange)
		}

		s := stream.New(source(), p.task.Skip, preds, stream.WithLogger(p.logger))
		seq := s.All()
		if classifier != nil {
			seq = classify.Annotate(seq, classifier, p.task.GroupField)
		}
		trials := stream.Collect(seq)
		if err := r.Err(); err != nil {
			return nil, err
		}

		row := p.summarize(trials)
		row.Set(p.task.IdentifierColumn(), p.task.RowID(participant, v))
		result.Rows = append(result.Rows, row)

		c := s.Counts()
		result.Counts.Included += c.Included
		result.Counts.Skipped += c.Skipped
		result.Counts.Excluded += c.Excluded

		p.logger.DebugContext(ctx, "Variant summarized",
			slog.String("file", path),
			slog.String("variant", v.Name),
			slog.Int("included", c.Included),
			slog.Int("excluded", c.Excluded))
	}
	result.Malformed = r.Malformed()

	return result, nil
}

func (p *Processor) summarize(trials []trial.Trial) summary.Row {
	sum := summary.Summarize(trials, p.task.GroupField)
	row := sum.Flatten(summary.FlattenOptions{IncludeStdDev: p.task.StdDev})
	for _, d := range p.task.Differences {
		row.SetValue(d.Column, sum.MeanRT(d.Minuend).Sub(sum.MeanRT(d.Subtrahend)))
	}
	return row
}

// checkHeader makes sure the columns the pipeline reads are present,
// including those the classifier needs. A session that fails here must not
// reach the output table, where its narrower columns would fix the header.
func (p *Processor) checkHeader(header []string) error {
	required := []string{trial.FieldResponseTime, trial.FieldAccuracy}
	if p.task.Classifier == nil {
		required = append(required, p.task.GroupField)
	} else {
		required = append(required, classify.RequiredColumns(*p.task.Classifier, header)...)
	}
	for _, col := range required {
		if !slices.Contains(header, col) {
			return fmt.Errorf("missing column %q", col)
		}
	}
	return nil
}

// classifier returns nil when the group field is read as is.
func (p *Processor) classifier(header []string) (classify.Classifier, error) {
	if p.task.Classifier == nil {
		return nil, nil
	}
	return classify.Named(*p.task.Classifier, header)
}

// DirectoryOutlier scans every file under dir matching pattern, pools the
// numeric values of field and returns an outlier predicate built from the
// pooled estimate. Files that cannot be read are logged and left out.
func DirectoryOutlier(dir string, pattern *files.Pattern, field string, opts ...filters.OutlierOption) (filters.Predicate, stats.Estimate, error) {
	found, err := files.NewDiscovery("").FindByPattern(dir, pattern)
	if err != nil {
		return nil, stats.Estimate{}, apperrors.NewStorageError("failed to scan cohort directory", err).
			WithContext("dir", dir)
	}

	load := func(path string) ([]trial.Trial, error) {
		_, trials, err := table.ReadAll(path)
		return trials, err
	}
	onError := func(path string, err error) {
		slog.Warn("Session left out of cohort estimate",
			slog.String("file", path),
			slog.String("error", err.Error()))
	}

	pred, ref := filters.CohortOutlier(files.Paths(found), load, field, onError, opts...)
	return pred, ref, nil
}
