package table

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"

	apperrors "github.com/sbuss/data-filter-utils/internal/errors"
)

// Writer receives the rows of an output table. The header is written when
// the writer is created.
type Writer interface {
	Write(record []string) error
	Close() error
}

// WriteOptions configures Create.
type WriteOptions struct {
	// BOMPrefix adds a UTF-8 BOM to CSV output so Excel detects the encoding.
	BOMPrefix bool
}

// Create opens an output table at path and writes header. A path ending in
// .xlsx produces a workbook; any other path a CSV file.
func Create(path string, header []string, opts WriteOptions) (Writer, error) {
	if IsWorkbook(path) {
		w, err := CreateWorkbook(path, header)
		if err != nil {
			return nil, err
		}
		return w, nil
	}
	w, err := CreateStreamWriter(path, header, opts)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// StreamWriter writes CSV rows straight to disk, flushing after every row so
// a run that dies midway leaves every completed row on disk.
type StreamWriter struct {
	file   *os.File
	writer *csv.Writer
}

// CreateStreamWriter creates (or truncates) the CSV file at path and writes
// header.
func CreateStreamWriter(path string, header []string, opts WriteOptions) (*StreamWriter, error) {
	slog.Info("Creating CSV stream writer",
		slog.String("file_path", path),
		slog.Int("header_count", len(header)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.NewStorageError("failed to create directory", err).
			WithContext("file", path)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create file", err).
			WithContext("file", path)
	}

	if opts.BOMPrefix {
		if _, err := file.Write([]byte(utf8BOM)); err != nil {
			file.Close()
			return nil, apperrors.NewStorageError("failed to write BOM", err).
				WithContext("file", path)
		}
	}

	s := &StreamWriter{file: file, writer: csv.NewWriter(file)}
	if len(header) > 0 {
		if err := s.Write(header); err != nil {
			file.Close()
			return nil, err
		}
	}
	return s, nil
}

// Write writes and flushes a single record.
func (s *StreamWriter) Write(record []string) error {
	if err := s.writer.Write(record); err != nil {
		return apperrors.NewStorageError("failed to write record", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return apperrors.NewStorageError("failed to flush record", err)
	}
	return nil
}

// Close flushes and closes the stream writer.
func (s *StreamWriter) Close() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
