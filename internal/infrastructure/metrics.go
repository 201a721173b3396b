package infrastructure

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sbuss/data-filter-utils/internal/stream"
)

// MetricsNamespace prefixes every metric name.
const MetricsNamespace = "datafilter"

// BatchMetrics counts what batch runs did. It is registered on its own
// registry so a run can be written out as a node-exporter textfile without
// Go runtime collectors mixed in.
type BatchMetrics struct {
	registry *prometheus.Registry

	filesProcessed *prometheus.CounterVec
	filesFailed    *prometheus.CounterVec
	trials         *prometheus.CounterVec
	malformedRows  *prometheus.CounterVec
	rowsWritten    *prometheus.CounterVec
}

// NewBatchMetrics creates the batch counters on a fresh registry.
func NewBatchMetrics() (*BatchMetrics, error) {
	m := &BatchMetrics{
		registry: prometheus.NewRegistry(),
		filesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "files_processed_total",
			Help:      "Session files summarized successfully.",
		}, []string{"task"}),
		filesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "files_failed_total",
			Help:      "Session files skipped because they could not be summarized.",
		}, []string{"task", "reason"}),
		trials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "trials_total",
			Help:      "Trials read from session files, by outcome.",
		}, []string{"task", "outcome"}),
		malformedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "malformed_rows_total",
			Help:      "Unreadable rows skipped inside session files.",
		}, []string{"task"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Name:      "output_rows_total",
			Help:      "Rows written to aggregate tables.",
		}, []string{"task"}),
	}

	for _, c := range []prometheus.Collector{
		m.filesProcessed, m.filesFailed, m.trials, m.malformedRows, m.rowsWritten,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register batch metric: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry the counters live on.
func (m *BatchMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *BatchMetrics) FileProcessed(task string) {
	m.filesProcessed.WithLabelValues(task).Inc()
}

func (m *BatchMetrics) FileFailed(task, reason string) {
	m.filesFailed.WithLabelValues(task, reason).Inc()
}

func (m *BatchMetrics) TrialsCounted(task string, c stream.Counts) {
	m.trials.WithLabelValues(task, "included").Add(float64(c.Included))
	m.trials.WithLabelValues(task, "skipped").Add(float64(c.Skipped))
	m.trials.WithLabelValues(task, "excluded").Add(float64(c.Excluded))
}

func (m *BatchMetrics) MalformedRows(task string, n int) {
	m.malformedRows.WithLabelValues(task).Add(float64(n))
}

func (m *BatchMetrics) RowsWritten(task string, n int) {
	m.rowsWritten.WithLabelValues(task).Add(float64(n))
}

// WriteTextfile writes every counter to path in the Prometheus text format.
// The file is replaced atomically.
func (m *BatchMetrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
