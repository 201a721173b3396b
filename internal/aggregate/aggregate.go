// Package aggregate runs a task over every matching session file in a
// directory and collects one output table.
//
// A session file that cannot be summarized is logged and skipped; the batch
// always runs to the end. Only failures of the output table itself abort it.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	apperrors "github.com/sbuss/data-filter-utils/internal/errors"
	"github.com/sbuss/data-filter-utils/internal/files"
	"github.com/sbuss/data-filter-utils/internal/filters"
	"github.com/sbuss/data-filter-utils/internal/stats"
	"github.com/sbuss/data-filter-utils/internal/stream"
	"github.com/sbuss/data-filter-utils/internal/summary"
	"github.com/sbuss/data-filter-utils/internal/table"
	"github.com/sbuss/data-filter-utils/internal/tasks"
)

// ErrHeaderMismatch marks a session whose rows carry columns the output
// table does not have.
var ErrHeaderMismatch = errors.New("row columns do not match output header")

// Recorder receives batch progress. infrastructure.Metrics implements it.
type Recorder interface {
	FileProcessed(task string)
	FileFailed(task string, reason string)
	TrialsCounted(task string, c stream.Counts)
	MalformedRows(task string, n int)
	RowsWritten(task string, n int)
}

// FileFailure records why a session file was skipped.
type FileFailure struct {
	Path string
	Err  error
}

// Report summarizes a batch run.
type Report struct {
	Task      string
	Processed []string
	Failed    []FileFailure
	Rows      int
	// Output is the table written, or empty when no file succeeded.
	Output string
	// Reference is the cohort outlier estimate, when one was computed.
	Reference *stats.Estimate
}

// Aggregator runs tasks over directories.
type Aggregator struct {
	Discovery *files.Discovery
	OutputDir string
	Scope     filters.OutlierScope
	Write     table.WriteOptions
	Logger    *slog.Logger
	Metrics   Recorder
}

// New creates an aggregator writing to outputDir.
func New(outputDir string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		Discovery: files.NewDiscovery(""),
		OutputDir: outputDir,
		Scope:     filters.ScopeSession,
		Logger:    logger,
	}
}

// Run summarizes every session file of task found under dir.
//
// The first file that succeeds fixes the output header: the natural-sorted
// union of its rows' columns. Rows of later files may lack some of those
// columns, which are then written as null, but a file whose rows add a
// column is rejected as a SCHEMA failure.
func (a *Aggregator) Run(ctx context.Context, dir string, task tasks.Task) (*Report, error) {
	logger := a.Logger.With(slog.String("task", task.Name))
	report := &Report{Task: task.Name}

	pattern, err := task.FilePattern()
	if err != nil {
		return nil, apperrors.NewConfigError("invalid task file pattern", err)
	}
	found, err := a.Discovery.FindByPattern(dir, pattern)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to scan input directory", err).
			WithContext("dir", dir)
	}
	paths := files.Paths(found)

	proc, err := tasks.NewProcessor(task, tasks.WithScope(a.Scope), tasks.WithLogger(a.Logger))
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Starting batch",
		slog.String("dir", dir),
		slog.Int("files", len(paths)),
		slog.String("outlier_scope", string(a.Scope)))

	ref, err := proc.Prepare(ctx, paths)
	if err != nil {
		return nil, err
	}
	report.Reference = ref

	out := &output{path: task.OutputPath(a.OutputDir), opts: a.Write}
	defer out.close()

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		logger.InfoContext(ctx, "Processing file", slog.String("file", path))

		res, err := proc.ProcessFile(ctx, path)
		if err == nil {
			err = out.accept(res.Rows)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			var outErr *outputError
			if errors.As(err, &outErr) {
				return report, outErr.err
			}
			a.fail(ctx, logger, report, task.Name, path, err)
			continue
		}

		report.Processed = append(report.Processed, path)
		report.Rows += len(res.Rows)
		if a.Metrics != nil {
			a.Metrics.FileProcessed(task.Name)
			a.Metrics.TrialsCounted(task.Name, res.Counts)
			a.Metrics.MalformedRows(task.Name, res.Malformed)
			a.Metrics.RowsWritten(task.Name, len(res.Rows))
		}
		if res.Malformed > 0 {
			logger.WarnContext(ctx, "Skipped malformed rows",
				slog.String("file", path),
				slog.Int("rows", res.Malformed))
		}
	}

	if err := out.close(); err != nil {
		return report, err
	}
	if out.writer == nil {
		logger.WarnContext(ctx, "No session file could be summarized; output not written",
			slog.String("output", out.path),
			slog.Int("failed", len(report.Failed)))
	} else {
		report.Output = out.path
	}

	logger.InfoContext(ctx, "Batch complete",
		slog.Int("processed", len(report.Processed)),
		slog.Int("failed", len(report.Failed)),
		slog.Int("rows", report.Rows),
		slog.String("output", report.Output))

	return report, nil
}

func (a *Aggregator) fail(ctx context.Context, logger *slog.Logger, report *Report, task, path string, err error) {
	report.Failed = append(report.Failed, FileFailure{Path: path, Err: err})

	reason := failureReason(err)
	logger.ErrorContext(ctx, "Couldn't summarize file",
		slog.String("file", path),
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	if a.Metrics != nil {
		a.Metrics.FileFailed(task, reason)
	}
}

// failureReason is the metrics label for a skipped file: its error type, or
// UNKNOWN for errors that carry none.
func failureReason(err error) string {
	if reason := apperrors.TypeOf(err); reason != "" {
		return string(reason)
	}
	return "UNKNOWN"
}

// outputError wraps failures of the output table, which end the batch.
type outputError struct {
	err error
}

func (e *outputError) Error() string { return e.err.Error() }
func (e *outputError) Unwrap() error { return e.err }

// output creates the table on the first accepted rows.
type output struct {
	path   string
	opts   table.WriteOptions
	header []string
	writer table.Writer
	closed bool
}

func (o *output) accept(rows []summary.Row) error {
	if len(rows) == 0 {
		return nil
	}

	if o.header == nil {
		o.header = headerOf(rows)
	} else {
		for _, row := range rows {
			if extra := extraColumns(row, o.header); len(extra) > 0 {
				return apperrors.NewSchemaError(
					fmt.Sprintf("columns %v are not in the output header", extra), ErrHeaderMismatch)
			}
		}
	}

	if o.writer == nil {
		w, err := table.Create(o.path, o.header, o.opts)
		if err != nil {
			return &outputError{err: err}
		}
		o.writer = w
	}

	for _, row := range rows {
		// A column the row lacks belongs to a condition with no trials in
		// this session, so its statistic is undefined.
		if err := o.writer.Write(row.Record(o.header, stats.Null)); err != nil {
			return &outputError{err: err}
		}
	}
	return nil
}

func (o *output) close() error {
	if o.writer == nil || o.closed {
		return nil
	}
	o.closed = true
	return o.writer.Close()
}

// headerOf returns the natural-sorted union of the rows' columns.
func headerOf(rows []summary.Row) []string {
	union := make(summary.Row)
	for _, row := range rows {
		for col := range row {
			union[col] = ""
		}
	}
	return union.Columns()
}

func extraColumns(row summary.Row, header []string) []string {
	var extra []string
	for _, col := range row.Columns() {
		if !slices.Contains(header, col) {
			extra = append(extra, col)
		}
	}
	return extra
}
