package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	apperrors "github.com/sbuss/data-filter-utils/internal/errors"
	"github.com/sbuss/data-filter-utils/internal/files"
	"github.com/sbuss/data-filter-utils/internal/filters"
	"github.com/sbuss/data-filter-utils/internal/stream"
	"github.com/sbuss/data-filter-utils/internal/table"
)

// FilterReport summarizes a Filter run.
type FilterReport struct {
	Written []string
	Failed  []FileFailure
	Counts  stream.Counts
}

// FilteredName is the file a filtered copy of path is written to.
func FilteredName(path string) string {
	return table.Stem(path) + "-out.csv"
}

// Filter writes a copy of every file under dir matching pattern into the
// aggregator's output directory, keeping only the rows no predicate
// excludes. Copies keep the source header. As with Run, a file that fails
// is logged and skipped.
func (a *Aggregator) Filter(ctx context.Context, dir string, pattern *files.Pattern, preds []filters.Predicate) (*FilterReport, error) {
	found, err := a.Discovery.FindByPattern(dir, pattern)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to scan input directory", err).
			WithContext("dir", dir)
	}

	report := &FilterReport{}
	for _, path := range files.Paths(found) {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		a.Logger.InfoContext(ctx, "Filtering file", slog.String("file", path))

		dst := filepath.Join(a.OutputDir, FilteredName(path))
		counts, err := filterFile(path, dst, preds, a.Logger)
		if err != nil {
			report.Failed = append(report.Failed, FileFailure{Path: path, Err: err})
			a.Logger.ErrorContext(ctx, "Couldn't filter file",
				slog.String("file", path),
				slog.String("error", err.Error()))
			if a.Metrics != nil {
				a.Metrics.FileFailed("filter", failureReason(err))
			}
			continue
		}

		report.Written = append(report.Written, dst)
		report.Counts.Included += counts.Included
		report.Counts.Excluded += counts.Excluded
		if a.Metrics != nil {
			a.Metrics.FileProcessed("filter")
			a.Metrics.TrialsCounted("filter", counts)
		}
		a.Logger.InfoContext(ctx, "Filtered file",
			slog.String("file", path),
			slog.String("output", dst),
			slog.Int("included", counts.Included),
			slog.Int("excluded", counts.Excluded))
	}
	return report, nil
}

func filterFile(src, dst string, preds []filters.Predicate, logger *slog.Logger) (stream.Counts, error) {
	r, err := table.Open(src, table.WithReadLogger(logger))
	if err != nil {
		return stream.Counts{}, err
	}
	defer r.Close()

	header := r.Header()
	w, err := table.CreateStreamWriter(dst, header, table.WriteOptions{})
	if err != nil {
		return stream.Counts{}, err
	}

	s := stream.New(r.Records(), 0, preds, stream.WithLogger(logger))
	for t := range s.All() {
		rec := make([]string, len(header))
		for i, col := range header {
			rec[i] = t.Value(col)
		}
		if err := w.Write(rec); err != nil {
			w.Close()
			return s.Counts(), err
		}
	}
	return s.Counts(), errors.Join(r.Err(), w.Close())
}
