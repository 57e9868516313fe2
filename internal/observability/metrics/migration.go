// Package metrics provides custom Prometheus metrics for docmigrate.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MigrationMetrics counts per-record outcomes of every engine operation.
// It satisfies migration.Observer.
type MigrationMetrics struct {
	outcomesTotal   *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
	recordDuration  *prometheus.HistogramVec
	lastRunFailures *prometheus.GaugeVec
	lastRunTime     *prometheus.GaugeVec
	objectSize      prometheus.Histogram
}

// NewMigrationMetrics creates and registers the migration metrics.
func NewMigrationMetrics(registry prometheus.Registerer) (*MigrationMetrics, error) {
	m := &MigrationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register migration metrics: %w", err)
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "record_outcomes_total",
			Help:      "Records processed, by operation, table and final status.",
		},
		[]string{"operation", "table", "status"},
	)

	m.bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "bytes_transferred_total",
			Help:      "Bytes written to the target store.",
		},
		[]string{"operation", "table"},
	)

	m.recordDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "record_duration_seconds",
			Help:      "Time spent on a single record including retries.",
			Buckets:   durationBuckets,
		},
		[]string{"operation"},
	)

	m.objectSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "object_size_bytes",
		Help:      "Size of objects written to the target store.",
		Buckets:   sizeBuckets,
	})

	m.lastRunFailures = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_failed_records",
			Help:      "Records that failed in the most recent run of an operation.",
		},
		[]string{"operation"},
	)

	m.lastRunTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the most recent run of an operation finished.",
		},
		[]string{"operation"},
	)
}

// ObserveOutcome records one record outcome.
func (m *MigrationMetrics) ObserveOutcome(operation, table, status string, bytes int64, elapsed time.Duration) {
	m.outcomesTotal.WithLabelValues(operation, table, status).Inc()
	m.recordDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	if bytes > 0 {
		m.bytesTotal.WithLabelValues(operation, table).Add(float64(bytes))
		m.objectSize.Observe(float64(bytes))
	}
}

// RecordRun stores the failure count and completion time of a run.
func (m *MigrationMetrics) RecordRun(operation string, failed int, finished time.Time) {
	m.lastRunFailures.WithLabelValues(operation).Set(float64(failed))
	m.lastRunTime.WithLabelValues(operation).Set(float64(finished.Unix()))
}

// Describe implements the prometheus.Collector interface.
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.outcomesTotal.Describe(ch)
	m.bytesTotal.Describe(ch)
	m.recordDuration.Describe(ch)
	m.objectSize.Describe(ch)
	m.lastRunFailures.Describe(ch)
	m.lastRunTime.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.outcomesTotal.Collect(ch)
	m.bytesTotal.Collect(ch)
	m.recordDuration.Collect(ch)
	m.objectSize.Collect(ch)
	m.lastRunFailures.Collect(ch)
	m.lastRunTime.Collect(ch)
}
