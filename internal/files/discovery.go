package files

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/maruel/natural"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Pattern matches file base names. Like a prefix match, it is anchored at the
// start of the name only: `.*LDT.*\.csv` also matches "01_LDT.csv.bak".
type Pattern struct {
	source string
	re     *regexp.Regexp
}

// CompilePattern compiles expr, optionally ignoring case.
func CompilePattern(expr string, caseInsensitive bool) (*Pattern, error) {
	flags := ""
	if caseInsensitive {
		flags = "(?i)"
	}
	re, err := regexp.Compile(flags + `^(?:` + expr + `)`)
	if err != nil {
		return nil, fmt.Errorf("invalid file pattern %q: %w", expr, err)
	}
	return &Pattern{source: expr, re: re}, nil
}

// MustCompilePattern is CompilePattern for patterns known to be valid.
func MustCompilePattern(expr string, caseInsensitive bool) *Pattern {
	p, err := CompilePattern(expr, caseInsensitive)
	if err != nil {
		panic(err)
	}
	return p
}

// Match reports whether name matches the pattern.
func (p *Pattern) Match(name string) bool {
	return p.re.MatchString(name)
}

// String returns the pattern as written.
func (p *Pattern) String() string {
	return p.source
}

// Discovery provides file discovery operations
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance. Relative directories
// passed to its methods are resolved against basePath.
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

// FindByPattern walks dir recursively and returns every regular file whose
// base name matches pattern, ordered by natural sort of the full path.
func (d *Discovery) FindByPattern(dir string, pattern *Pattern) ([]FileInfo, error) {
	fullPath := d.resolve(dir)

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", fullPath)
	}

	var files []FileInfo
	err = filepath.WalkDir(fullPath, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("Skipping unreadable path",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if entry != nil && entry.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || !pattern.Match(entry.Name()) {
			return nil
		}

		fi, err := entry.Info()
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:    path,
			Name:    entry.Name(),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory %s: %w", fullPath, err)
	}

	sort.Slice(files, func(i, j int) bool {
		return natural.Less(files[i].Path, files[j].Path)
	})

	slog.Debug("Discovered files",
		slog.String("dir", fullPath),
		slog.String("pattern", pattern.String()),
		slog.Int("count", len(files)))

	return files, nil
}

// Paths returns the Path of every file.
func Paths(files []FileInfo) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}
