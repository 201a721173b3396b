package tasks

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v2"

	apperrors "github.com/sbuss/data-filter-utils/internal/errors"
)

// fileFormat is the layout of a tasks YAML file:
//
//	tasks:
//	  - name: flanker
//	    pattern: 'flanker.*\.csv'
//	    skip: 10
//	    group_field: condition
//	    output: flanker-summary.csv
type fileFormat struct {
	Tasks []Task `yaml:"tasks" validate:"dive"`
}

// LoadFile reads and validates the task definitions in a YAML file.
func LoadFile(path string) ([]Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read tasks file", err).
			WithContext("file", path)
	}
	return Parse(data)
}

// Parse decodes and validates YAML task definitions.
func Parse(data []byte) ([]Task, error) {
	var f fileFormat
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, apperrors.NewConfigError("failed to parse tasks file", err)
	}

	seen := make(map[string]bool, len(f.Tasks))
	for i, t := range f.Tasks {
		if err := t.Validate(); err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("invalid task #%d %q", i+1, t.Name), err)
		}
		if seen[t.Name] {
			return nil, apperrors.NewConfigError(fmt.Sprintf("task %q defined twice", t.Name), nil)
		}
		seen[t.Name] = true
	}
	return f.Tasks, nil
}

// Registry resolves task names to definitions.
type Registry struct {
	tasks map[string]Task
}

// NewRegistry holds the built-in tasks plus extra. An extra task with a
// built-in's name replaces it.
func NewRegistry(extra ...Task) *Registry {
	r := &Registry{tasks: make(map[string]Task, len(builtins)+len(extra))}
	for name, fn := range builtins {
		r.tasks[name] = fn()
	}
	for _, t := range extra {
		r.tasks[t.Name] = t
	}
	return r
}

// Lookup returns the task called name.
func (r *Registry) Lookup(name string) (Task, error) {
	t, ok := r.tasks[name]
	if !ok {
		return Task{}, apperrors.NewNotFoundError(fmt.Sprintf("task %q", name))
	}
	return t, nil
}

// Names lists every registered task in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
