// Package metrics provides datastore metrics for observability
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const startKey = "docmigrate:metrics_start"

// DatastoreMetrics contains Prometheus metrics for record repository
// queries, collected through GORM callbacks.
type DatastoreMetrics struct {
	dbOperationsTotal      *prometheus.CounterVec
	dbOperationDuration    *prometheus.HistogramVec
	dbOperationErrorsTotal *prometheus.CounterVec
	dbRowsAffected         *prometheus.CounterVec
}

// NewDatastoreMetrics creates and registers datastore metrics.
func NewDatastoreMetrics(registry prometheus.Registerer) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register datastore metrics: %w", err)
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "db_operations_total",
			Help:      "Database operations by operation and table.",
		},
		[]string{"operation", "table"},
	)

	m.dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "db_operation_duration_seconds",
			Help:      "Database operation latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	m.dbOperationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "db_operation_errors_total",
			Help:      "Failed database operations.",
		},
		[]string{"operation", "table"},
	)

	m.dbRowsAffected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "db_rows_affected_total",
			Help:      "Rows changed by update statements.",
		},
		[]string{"table"},
	)
}

// Instrument registers timing callbacks on db.
func (m *DatastoreMetrics) Instrument(db *gorm.DB) error {
	cb := db.Callback()
	errs := []error{
		cb.Query().Before("gorm:query").Register("metrics:before_query", m.before),
		cb.Query().After("gorm:query").Register("metrics:after_query", m.after(OpDbQuery)),
		cb.Row().Before("gorm:row").Register("metrics:before_row", m.before),
		cb.Row().After("gorm:row").Register("metrics:after_row", m.after(OpDbRow)),
		cb.Update().Before("gorm:update").Register("metrics:before_update", m.before),
		cb.Update().After("gorm:update").Register("metrics:after_update", m.after(OpDbUpdate)),
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to register datastore callbacks: %w", err)
	}
	return nil
}

func (m *DatastoreMetrics) before(db *gorm.DB) {
	db.InstanceSet(startKey, time.Now())
}

func (m *DatastoreMetrics) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		table := db.Statement.Table
		if table == "" {
			table = LabelUnknown
		}

		m.dbOperationsTotal.WithLabelValues(op, table).Inc()
		if v, ok := db.InstanceGet(startKey); ok {
			if start, ok := v.(time.Time); ok {
				m.dbOperationDuration.WithLabelValues(op, table).Observe(time.Since(start).Seconds())
			}
		}
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			m.dbOperationErrorsTotal.WithLabelValues(op, table).Inc()
		}
		if op == OpDbUpdate && db.RowsAffected > 0 {
			m.dbRowsAffected.WithLabelValues(table).Add(float64(db.RowsAffected))
		}
	}
}

// Describe implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.dbOperationsTotal.Describe(ch)
	m.dbOperationDuration.Describe(ch)
	m.dbOperationErrorsTotal.Describe(ch)
	m.dbRowsAffected.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.dbOperationsTotal.Collect(ch)
	m.dbOperationDuration.Collect(ch)
	m.dbOperationErrorsTotal.Collect(ch)
	m.dbRowsAffected.Collect(ch)
}
