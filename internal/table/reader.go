package table

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/sbuss/data-filter-utils/internal/errors"
	"github.com/sbuss/data-filter-utils/internal/trial"
)

const utf8BOM = "\ufeff"

// rowSource yields raw rows, returning io.EOF after the last one.
type rowSource interface {
	next() ([]string, error)
	close() error
}

// Reader streams the trials of one session file. The first row is the
// header; every later row becomes a Trial keyed by it.
type Reader struct {
	path      string
	src       rowSource
	header    []string
	malformed int
	err       error
	used      bool
	closed    bool
	logger    *slog.Logger
}

// ReadOption configures Open.
type ReadOption func(*readOptions)

type readOptions struct {
	expectedLines int
	logger        *slog.Logger
}

// WithExpectedLines declares how many physical lines a well-formed CSV
// session has, header included. Files that are longer carry stray rows above
// the real header; the surplus leading lines are discarded before parsing.
func WithExpectedLines(n int) ReadOption {
	return func(o *readOptions) { o.expectedLines = n }
}

// WithReadLogger sets the logger used for malformed-row reports.
func WithReadLogger(logger *slog.Logger) ReadOption {
	return func(o *readOptions) { o.logger = logger }
}

// Open opens a session file and reads its header. Files ending in .xlsx are
// read from their first worksheet, anything else as CSV.
func Open(path string, opts ...ReadOption) (*Reader, error) {
	o := readOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		src rowSource
		err error
	)
	if IsWorkbook(path) {
		src, err = openXLSX(path)
	} else {
		src, err = openCSV(path, o.expectedLines)
	}
	if err != nil {
		return nil, err
	}

	header, err := src.next()
	if err != nil {
		src.close()
		if errors.Is(err, io.EOF) {
			return nil, apperrors.NewParsingError("session file has no header", err).
				WithContext("file", path)
		}
		return nil, apperrors.NewParsingError("failed to read header", err).
			WithContext("file", path)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	return &Reader{
		path:   path,
		src:    src,
		header: header,
		logger: o.logger,
	}, nil
}

// Path returns the file being read.
func (r *Reader) Path() string {
	return r.path
}

// Header returns the column names in file order.
func (r *Reader) Header() []string {
	return r.header
}

// Records yields one Trial per well-formed row. Rows whose field count does
// not match the header, or that fail to parse, are skipped and counted. An
// I/O error ends the sequence and is reported by Err. Records and Rows share
// the file: only one of them can be ranged over, once.
func (r *Reader) Records() iter.Seq[trial.Trial] {
	return func(yield func(trial.Trial) bool) {
		for t := range r.Rows() {
			if t != nil && !yield(t) {
				return
			}
		}
	}
}

// Rows is Records with a nil Trial in place of every malformed row, so that
// positions in the sequence match the data rows of the file.
func (r *Reader) Rows() iter.Seq[trial.Trial] {
	return func(yield func(trial.Trial) bool) {
		if r.used || r.closed {
			return
		}
		r.used = true

		n := 0
		for {
			row, err := r.src.next()
			n++
			if errors.Is(err, io.EOF) {
				return
			}
			var t trial.Trial
			switch {
			case err != nil:
				var perr *csv.ParseError
				if !errors.As(err, &perr) {
					r.err = apperrors.NewStorageError("failed to read session file", err).
						WithContext("file", r.path)
					return
				}
				r.skipRow(n, err.Error())
			case len(row) != len(r.header):
				r.skipRow(n, fmt.Sprintf("expected %d fields, got %d", len(r.header), len(row)))
			default:
				t = make(trial.Trial, len(r.header)+1)
				for i, col := range r.header {
					t[col] = row[i]
				}
			}
			if !yield(t) {
				return
			}
		}
	}
}

func (r *Reader) skipRow(n int, reason string) {
	r.malformed++
	r.logger.Debug("skipping malformed row",
		slog.String("file", r.path),
		slog.Int("row", n),
		slog.String("reason", reason))
}

// Malformed returns the number of rows skipped so far.
func (r *Reader) Malformed() int {
	return r.malformed
}

// Err returns the I/O error that ended Records, if any.
func (r *Reader) Err() error {
	return r.err
}

// Close releases the underlying file. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.src.close()
}

// ReadAll reads every trial of the session file at path.
func ReadAll(path string, opts ...ReadOption) ([]string, []trial.Trial, error) {
	r, err := Open(path, opts...)
	if err != nil {
		return nil, nil, err
	}
	defer r.Close()

	var trials []trial.Trial
	for t := range r.Records() {
		trials = append(trials, t)
	}
	if err := r.Err(); err != nil {
		return nil, nil, err
	}
	return r.Header(), trials, nil
}

// IsWorkbook reports whether path names an Excel workbook.
func IsWorkbook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type csvSource struct {
	file *os.File
	csv  *csv.Reader
}

func openCSV(path string, expectedLines int) (*csvSource, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to open session file", err).
			WithContext("file", path)
	}

	var body io.Reader = file
	if expectedLines > 0 {
		body, err = dropSurplusLines(file, expectedLines)
		if err != nil {
			file.Close()
			return nil, apperrors.NewStorageError("failed to scan session file", err).
				WithContext("file", path)
		}
	}

	reader := csv.NewReader(body)
	reader.FieldsPerRecord = -1
	return &csvSource{file: file, csv: reader}, nil
}

// dropSurplusLines counts the physical lines of file and returns a reader
// positioned after the first total-expected of them.
func dropSurplusLines(file *os.File, expected int) (io.Reader, error) {
	total, err := countLines(file)
	if err != nil {
		return nil, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	br := bufio.NewReader(file)
	for i := 0; i < total-expected; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			return nil, err
		}
	}
	return br, nil
}

func countLines(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for sc.Scan() {
		n++
	}
	return n, sc.Err()
}

func (s *csvSource) next() ([]string, error) {
	return s.csv.Read()
}

func (s *csvSource) close() error {
	return s.file.Close()
}
