package table

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	apperrors "github.com/sbuss/data-filter-utils/internal/errors"
)

// xlsxSource streams the rows of a workbook's first sheet.
type xlsxSource struct {
	file  *excelize.File
	rows  *excelize.Rows
	width int
}

func openXLSX(path string) (*xlsxSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open workbook", err).
			WithContext("file", path)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, apperrors.NewParsingError("workbook has no sheets", nil).
			WithContext("file", path)
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		f.Close()
		return nil, apperrors.NewParsingError(fmt.Sprintf("failed to read sheet %q", sheets[0]), err).
			WithContext("file", path)
	}
	return &xlsxSource{file: f, rows: rows}, nil
}

// next returns the following row. Excel drops trailing empty cells, so rows
// shorter than the header are padded back to its width.
func (s *xlsxSource) next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	cols, err := s.rows.Columns()
	if err != nil {
		return nil, err
	}
	if s.width == 0 {
		s.width = len(cols)
		return cols, nil
	}
	for len(cols) < s.width {
		cols = append(cols, "")
	}
	return cols, nil
}

func (s *xlsxSource) close() error {
	rowsErr := s.rows.Close()
	if err := s.file.Close(); err != nil {
		return err
	}
	return rowsErr
}

// WorkbookWriter buffers rows into the first sheet of a new workbook and
// saves it on Close.
type WorkbookWriter struct {
	path  string
	file  *excelize.File
	sheet string
	row   int
}

const defaultSheet = "Sheet1"

// CreateWorkbook starts a workbook at path with header as its first row.
func CreateWorkbook(path string, header []string) (*WorkbookWriter, error) {
	slog.Info("Creating workbook writer",
		slog.String("file_path", path),
		slog.Int("header_count", len(header)))

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.NewStorageError("failed to create directory", err).
			WithContext("file", path)
	}

	w := &WorkbookWriter{path: path, file: excelize.NewFile(), sheet: defaultSheet}
	if len(header) > 0 {
		if err := w.Write(header); err != nil {
			w.file.Close()
			return nil, err
		}
	}
	return w, nil
}

// Write appends one row.
func (w *WorkbookWriter) Write(record []string) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(record))
	for i, v := range record {
		values[i] = v
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &values); err != nil {
		return apperrors.NewStorageError("failed to write workbook row", err).
			WithContext("file", w.path)
	}
	return nil
}

// Close saves the workbook.
func (w *WorkbookWriter) Close() error {
	defer w.file.Close()
	if err := w.file.SaveAs(w.path); err != nil {
		return apperrors.NewStorageError("failed to save workbook", err).
			WithContext("file", w.path)
	}
	return nil
}
