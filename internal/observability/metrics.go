// Package observability collects Prometheus metrics for docmigrate runs and
// exports them through the node exporter textfile collector.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/snd-ksa/docmigrate/internal/httpclient"
	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/migration"
	"github.com/snd-ksa/docmigrate/internal/observability/metrics"
)

// Metrics holds all the metric collectors for a run.
type Metrics struct {
	registry   *prometheus.Registry
	Migration  *metrics.MigrationMetrics
	HTTPClient *metrics.HTTPClientMetrics
	Datastore  *metrics.DatastoreMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	migrationMetrics, err := metrics.NewMigrationMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration metrics: %w", err)
	}

	httpMetrics, err := metrics.NewHTTPClientMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client metrics: %w", err)
	}

	datastoreMetrics, err := metrics.NewDatastoreMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore metrics: %w", err)
	}

	return &Metrics{
		registry:   registry,
		Migration:  migrationMetrics,
		HTTPClient: httpMetrics,
		Datastore:  datastoreMetrics,
	}, nil
}

// Observer returns the outcome observer to hand to engine components.
func (m *Metrics) Observer() migration.Observer {
	return m.Migration
}

// InstrumentHTTPClient installs request hooks on client.
func (m *Metrics) InstrumentHTTPClient(client *httpclient.Client) {
	client.SetBeforeRequestHook(m.HTTPClient.BeforeRequest)
	client.SetAfterResponseHook(m.HTTPClient.AfterResponse)
}

// InstrumentDatabase adds query timing callbacks and connection pool
// statistics for db.
func (m *Metrics) InstrumentDatabase(db *gorm.DB, name string) error {
	if err := m.Datastore.Instrument(db); err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}
	if err := m.registry.Register(collectors.NewDBStatsCollector(sqlDB, name)); err != nil {
		return fmt.Errorf("failed to register connection pool metrics: %w", err)
	}
	return nil
}

// RecordReport stores the run level figures of a finished report.
func (m *Metrics) RecordReport(r *migration.Report) {
	m.Migration.RecordRun(r.Command, r.Count(migration.StatusFailed), r.FinishedAt)
}

// Gatherer exposes the registry for inspection.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile atomically writes all metrics to path in the text
// exposition format. An empty path is a no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	log.Debug("metrics textfile written", logger.String("path", path))
	return nil
}
