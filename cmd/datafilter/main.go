// Command datafilter summarizes behavioral-experiment session files.
//
// Each task subcommand reads every matching session file under a directory,
// filters and classifies its trials and writes one aggregate table with a
// row per participant (or per participant and filtering variant):
//
//	datafilter ldt data/ldt
//	datafilter trt --outlier-scope cohort data/trt
//	datafilter run --task stroop data/stroop
//	datafilter filter data/trt
//
// Files that cannot be summarized are logged and skipped; the exit status
// is 0 as long as the batch itself ran.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sbuss/data-filter-utils/internal/aggregate"
	"github.com/sbuss/data-filter-utils/internal/config"
	apperrors "github.com/sbuss/data-filter-utils/internal/errors"
	"github.com/sbuss/data-filter-utils/internal/files"
	"github.com/sbuss/data-filter-utils/internal/filters"
	"github.com/sbuss/data-filter-utils/internal/infrastructure"
	"github.com/sbuss/data-filter-utils/internal/table"
	"github.com/sbuss/data-filter-utils/internal/tasks"
	"github.com/sbuss/data-filter-utils/internal/trial"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitFailure = 1
)

const defaultFilterPattern = `.*TRT.*\.csv`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newApp(os.Stdout, nil).rootCommand().ExecuteContext(ctx)
	infrastructure.CloseLogFile()
	if err != nil {
		os.Exit(ExitFailure)
	}
	os.Exit(ExitSuccess)
}

// app holds the flag values and the state PersistentPreRunE sets up for
// the subcommands.
type app struct {
	out    io.Writer
	logger *slog.Logger
	cfg    *config.Config

	configPath   string
	outputDir    string
	outlierScope string
	stdDev       bool
	bom          bool
	metricsFile  string
	logLevel     string

	taskName        string
	filterPattern   string
	caseInsensitive bool
	filterSigma     float64
}

// newApp creates the CLI. A nil logger means the global logger is built
// from configuration.
func newApp(out io.Writer, logger *slog.Logger) *app {
	return &app{out: out, logger: logger}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   config.AppName,
		Short: "Summarize behavioral-experiment session files",
		Long: `datafilter reads one session file per participant, skips practice trials,
drops invalid and outlier trials, groups the rest by condition and writes
mean and standard deviation statistics to an aggregate table.

Configuration comes from datafilter.yaml (or --config), DATAFILTER_*
environment variables and the flags below, in increasing precedence.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "configuration file (default datafilter.yaml if present)")
	flags.StringVarP(&a.outputDir, "output-dir", "o", "", "directory aggregate tables are written to")
	flags.StringVar(&a.outlierScope, "outlier-scope", "", "where outlier thresholds are estimated: session or cohort")
	flags.BoolVar(&a.stdDev, "std-dev", false, "add SDRT-* and SDAcc-* columns")
	flags.BoolVar(&a.bom, "bom", false, "prefix CSV output with a UTF-8 byte order mark")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write batch metrics to this Prometheus textfile")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")

	for _, name := range tasks.BuiltinNames() {
		root.AddCommand(a.taskCommand(name))
	}
	root.AddCommand(a.runCommand(), a.filterCommand(), a.listCommand())
	return root
}

func (a *app) taskCommand(name string) *cobra.Command {
	task, _ := tasks.Builtin(name)
	return &cobra.Command{
		Use:   name + " <dir>",
		Short: fmt.Sprintf("Summarize %s sessions (files matching %s)", name, task.Pattern),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTask(cmd.Context(), name, args[0])
		},
	}
}

func (a *app) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run --task NAME <dir>",
		Short: "Summarize sessions with a built-in task or one from the tasks file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTask(cmd.Context(), a.taskName, args[0])
		},
	}
	cmd.Flags().StringVarP(&a.taskName, "task", "t", "", "task name")
	cmd.MarkFlagRequired("task")
	return cmd
}

func (a *app) filterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter <dir>",
		Short: "Write a copy of each session without wrong or out-of-range trials",
		Long: `filter copies every matching session file to <output-dir>/<name>-out.csv,
keeping the header and dropping trials answered wrong or with a response
time outside 200-2000 ms. With --outlier-sigma it also drops trials whose
response time is that many standard deviations from the mean of every
matching file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFilter(cmd.Context(), args[0])
		},
	}
	cmd.Flags().StringVar(&a.filterPattern, "pattern", defaultFilterPattern, "regular expression session file names must match")
	cmd.Flags().BoolVarP(&a.caseInsensitive, "ignore-case", "i", false, "match the pattern case-insensitively")
	cmd.Flags().Float64Var(&a.filterSigma, "outlier-sigma", 0, "also exclude cohort response time outliers beyond this many standard deviations (0 disables)")
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tasks run --task accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := a.registry()
			if err != nil {
				return err
			}
			for _, name := range registry.Names() {
				task, _ := registry.Lookup(name)
				fmt.Fprintf(a.out, "%-10s %-20s -> %s\n", name, task.Pattern, task.Output)
			}
			return nil
		},
	}
}

// setup loads configuration, applies flag overrides and starts logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.Output.Dir = a.outputDir
	}
	if flags.Changed("outlier-scope") {
		cfg.Outlier.Scope = a.outlierScope
	}
	if flags.Changed("std-dev") {
		cfg.Output.StdDev = a.stdDev
	}
	if flags.Changed("bom") {
		cfg.Output.BOM = a.bom
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = a.metricsFile
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	if a.logger == nil {
		logger, err := infrastructure.InitializeLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.logger = logger
	}
	return nil
}

func (a *app) registry() (*tasks.Registry, error) {
	if a.cfg.TasksFile == "" {
		return tasks.NewRegistry(), nil
	}
	extra, err := tasks.LoadFile(a.cfg.TasksFile)
	if err != nil {
		return nil, err
	}
	return tasks.NewRegistry(extra...), nil
}

func (a *app) aggregator() (*aggregate.Aggregator, *infrastructure.BatchMetrics, error) {
	scope, err := filters.ParseOutlierScope(a.cfg.Outlier.Scope)
	if err != nil {
		return nil, nil, err
	}
	metrics, err := infrastructure.NewBatchMetrics()
	if err != nil {
		return nil, nil, err
	}

	agg := aggregate.New(a.cfg.Output.Dir, infrastructure.WithComponent(a.logger, "aggregate"))
	agg.Scope = scope
	agg.Write = table.WriteOptions{BOMPrefix: a.cfg.Output.BOM}
	agg.Metrics = metrics
	return agg, metrics, nil
}

func (a *app) runTask(ctx context.Context, name, dir string) error {
	registry, err := a.registry()
	if err != nil {
		return err
	}
	task, err := registry.Lookup(name)
	if err != nil {
		return err
	}
	if a.cfg.Output.StdDev {
		task.StdDev = true
	}

	agg, metrics, err := a.aggregator()
	if err != nil {
		return err
	}

	ctx = infrastructure.EnsureRunID(ctx)
	report, err := agg.Run(ctx, dir, task)
	if err != nil {
		a.logger.ErrorContext(ctx, "Batch aborted",
			slog.String("task", task.Name),
			slog.String("error", err.Error()))
		return err
	}
	if err := a.writeMetrics(ctx, metrics); err != nil {
		return err
	}

	output := report.Output
	if output == "" {
		output = "(not written)"
	}
	fmt.Fprintf(a.out, "%s: %d processed, %d failed, %d rows -> %s\n",
		report.Task, len(report.Processed), len(report.Failed), report.Rows, output)
	for _, f := range report.Failed {
		fmt.Fprintf(a.out, "  skipped %s: %v\n", f.Path, f.Err)
	}
	return nil
}

func (a *app) runFilter(ctx context.Context, dir string) error {
	pattern, err := files.CompilePattern(a.filterPattern, a.caseInsensitive)
	if err != nil {
		return fmt.Errorf("invalid --pattern: %w", err)
	}
	agg, metrics, err := a.aggregator()
	if err != nil {
		return err
	}

	if a.filterSigma < 0 {
		return apperrors.NewAppValidationError("--outlier-sigma must not be negative")
	}

	ctx = infrastructure.EnsureRunID(ctx)
	preds := []filters.Predicate{filters.ExcludeWrong, filters.ExcludeResponseTimeOutOfRange}
	if a.filterSigma > 0 {
		outlier, ref, err := tasks.DirectoryOutlier(dir, pattern, trial.FieldResponseTime,
			filters.WithMinSigma(a.filterSigma), filters.WithMaxSigma(a.filterSigma))
		if err != nil {
			return err
		}
		a.logger.InfoContext(ctx, "Cohort outlier threshold computed",
			slog.Int("samples", ref.N),
			slog.String("mean", ref.Mean.String()),
			slog.String("std_dev", ref.StdDev.String()))
		preds = append(preds, outlier)
	}

	report, err := agg.Filter(ctx, dir, pattern, preds)
	if err != nil {
		return err
	}
	if err := a.writeMetrics(ctx, metrics); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "filter: %d written, %d failed, %d trials kept, %d excluded\n",
		len(report.Written), len(report.Failed), report.Counts.Included, report.Counts.Excluded)
	return nil
}

func (a *app) writeMetrics(ctx context.Context, metrics *infrastructure.BatchMetrics) error {
	if a.cfg.MetricsFile == "" {
		return nil
	}
	if err := metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		return err
	}
	a.logger.DebugContext(ctx, "Metrics written", slog.String("file", a.cfg.MetricsFile))
	return nil
}
