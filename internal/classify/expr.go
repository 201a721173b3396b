package classify

import (
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sbuss/data-filter-utils/internal/trial"
)

// ExprClassifier evaluates a user-supplied expression against each trial's
// fields, e.g. `isword == "1" ? "word" : "nonword"`.
type ExprClassifier struct {
	source  string
	program *vm.Program
	logger  *slog.Logger
}

// Expr compiles source. Fields missing from a trial evaluate to nil.
func Expr(source string) (*ExprClassifier, error) {
	program, err := expr.Compile(source, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid classifier expression %q: %w", source, err)
	}
	return &ExprClassifier{source: source, program: program, logger: slog.Default()}, nil
}

// Classify returns the expression's string result. Evaluation errors and
// non-string results leave the trial unclassified.
func (c *ExprClassifier) Classify(t trial.Trial) string {
	env := make(map[string]any, len(t))
	for k, v := range t {
		env[k] = v
	}

	out, err := expr.Run(c.program, env)
	if err != nil {
		c.logger.Debug("classifier expression failed",
			slog.String("expression", c.source),
			slog.String("error", err.Error()))
		return ""
	}
	label, ok := out.(string)
	if !ok {
		return ""
	}
	return label
}

// String returns the expression source.
func (c *ExprClassifier) String() string {
	return c.source
}
