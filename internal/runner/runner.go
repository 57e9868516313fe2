// Package runner prepares everything a docmigrate command needs: settings,
// logging, error telemetry, storage backends, metrics and the run lock.
package runner

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/snd-ksa/docmigrate/internal/buildinfo"
	"github.com/snd-ksa/docmigrate/internal/conf"
	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/httpclient"
	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/migration"
	"github.com/snd-ksa/docmigrate/internal/objectstore"
	"github.com/snd-ksa/docmigrate/internal/observability"
	"github.com/snd-ksa/docmigrate/internal/records"
	"github.com/snd-ksa/docmigrate/internal/runlock"
)

// Exit codes.
const (
	ExitOK     = 0
	ExitFailed = 1
	ExitFatal  = 2
)

// ErrCandidatesFailed reports a completed run in which at least one
// candidate failed. The report has already been written.
var ErrCandidatesFailed = errors.NewStd("one or more candidates failed")

// Options holds the command-line values that are not settings.
type Options struct {
	ConfigFile string
	DryRun     bool
	Table      string
}

// Runner owns the resources of one command invocation.
type Runner struct {
	Options  Options
	Settings *conf.Settings
	Config   migration.Config
	Format   migration.Format
	RunID    string

	out     io.Writer
	log     logger.Logger
	central *logger.CentralLogger
	metrics *observability.Metrics

	store  *records.Store
	repo   records.Repository
	stores migration.Stores
	http   *httpclient.Client
	lock   *runlock.Lock

	flushSentry func()
}

// New creates a Runner that writes command output to out.
func New(out io.Writer) *Runner {
	return &Runner{
		out:         out,
		log:         logger.Global().Module("runner"),
		flushSentry: func() {},
	}
}

// Out is the command output stream.
func (r *Runner) Out() io.Writer { return r.out }

// Log is the run-scoped logger. It carries the run id.
func (r *Runner) Log() logger.Logger { return r.log }

// Setup loads settings and initialises logging, telemetry and metrics.
// v must already have the command-line flags bound.
func (r *Runner) Setup(v *viper.Viper) error {
	settings, err := conf.Load(v, r.Options.ConfigFile)
	if err != nil {
		return err
	}
	r.Settings = settings

	if err := r.setupLogging(); err != nil {
		return err
	}

	flush, err := errors.InitSentry(settings.Sentry.DSN, settings.Sentry.Environment, buildinfo.Current().Version())
	if err != nil {
		r.log.Warn("error telemetry disabled", logger.Error(err))
	} else {
		r.flushSentry = flush
	}

	format, err := migration.ParseFormat(settings.Output)
	if err != nil {
		return err
	}
	r.Format = format

	tables, err := records.SelectTables(r.Options.Table)
	if err != nil {
		return err
	}

	r.RunID = uuid.NewString()
	r.log = r.log.With(logger.String("run_id", r.RunID))

	cfg := settings.MigrationConfig()
	cfg.DryRun = r.Options.DryRun
	cfg.Tables = tables
	cfg.RunID = r.RunID
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.Config = cfg

	metrics, err := observability.NewMetrics()
	if err != nil {
		return errors.New(err).Component("runner").Category(errors.CategoryConfiguration).Build()
	}
	r.metrics = metrics

	r.log.Info("run configured", append(settings.LogFields(),
		logger.Bool("dry_run", cfg.DryRun),
		logger.String("tables", tableList(tables)))...)
	return nil
}

func (r *Runner) setupLogging() error {
	cfg := r.Settings.Logging
	if r.Settings.Debug {
		cfg.DefaultLevel = string(logger.LogLevelDebug)
		if cfg.Console != nil {
			cfg.Console.Level = string(logger.LogLevelDebug)
		}
	}

	central, err := logger.NewCentralLogger(&cfg)
	if err != nil {
		return errors.New(fmt.Errorf("initialise logging: %w", err)).
			Component("runner").
			Category(errors.CategoryConfiguration).
			Build()
	}
	logger.SetGlobal(central)
	r.central = central
	r.log = central.Module("runner")
	return nil
}

// OpenRepository connects to the database. Commands that only read records
// need nothing else.
func (r *Runner) OpenRepository(ctx context.Context) (records.Repository, error) {
	if r.repo != nil {
		return r.repo, nil
	}

	store, err := records.Open(ctx, r.Settings.RecordsConfig())
	if err != nil {
		return nil, err
	}
	if err := r.metrics.InstrumentDatabase(store.DB(), store.Dialect()); err != nil {
		r.log.Warn("database metrics unavailable", logger.Error(err))
	}

	r.store = store
	r.repo = store
	return store, nil
}

// OpenStores connects the target store, the legacy store and the legacy
// link fetcher.
func (r *Runner) OpenStores(ctx context.Context) (migration.Stores, error) {
	if r.stores.Target != nil {
		return r.stores, nil
	}

	target, err := objectstore.NewS3Client(ctx, r.Settings.S3Config())
	if err != nil {
		return migration.Stores{}, err
	}

	httpCfg := r.Settings.HTTPClientConfig()
	httpCfg.UserAgent = "docmigrate/" + buildinfo.Current().Version()
	r.http = httpclient.New(&httpCfg)
	r.metrics.InstrumentHTTPClient(r.http)

	var limiter *rate.Limiter
	if r.Settings.Legacy.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.Settings.Legacy.RateLimit), r.Settings.Legacy.Burst)
	}

	stores := migration.Stores{
		Target:  target,
		Fetcher: objectstore.NewHTTPFetcher(r.http, limiter),
	}

	if r.Settings.Legacy.BaseURL != "" && r.Settings.Legacy.ServiceKey != "" {
		legacy, err := objectstore.NewLegacyStoreClient(r.Settings.LegacyStoreConfig(), r.http, limiter)
		if err != nil {
			return migration.Stores{}, err
		}
		stores.Legacy = legacy
	} else {
		r.log.Warn("legacy store credentials not configured; legacy objects are fetched by URL and kept")
	}

	r.stores = stores
	return stores, nil
}

// Lock takes the run lock for a state-changing command. Dry runs write
// nothing and skip it.
func (r *Runner) Lock() error {
	if r.Config.DryRun || r.lock != nil {
		return nil
	}
	lock, err := runlock.Acquire(r.Settings.Lock.Path)
	if err != nil {
		return err
	}
	r.lock = lock
	return nil
}

// EngineOptions are the options shared by every engine component.
func (r *Runner) EngineOptions() []migration.Option {
	return []migration.Option{
		migration.WithObserver(r.metrics.Observer()),
		migration.WithPool(migration.NewPool(r.Config.Workers)),
	}
}

// Write renders v in the configured output format.
func (r *Runner) Write(v interface {
	Write(io.Writer, migration.Format) error
}) error {
	return v.Write(r.out, r.Format)
}

// Finish prints and logs report, records run metrics and maps failures to
// ErrCandidatesFailed.
func (r *Runner) Finish(report *migration.Report) error {
	if err := report.Write(r.out, r.Format); err != nil {
		return errors.New(fmt.Errorf("write report: %w", err)).
			Component("runner").
			Category(errors.CategoryFileIO).
			Build()
	}

	level := logger.LogLevelInfo
	if report.HasFailures() {
		level = logger.LogLevelWarn
	}
	r.log.Log(level, report.Command+" finished", report.LogFields()...)

	r.metrics.RecordReport(report)
	if report.HasFailures() {
		return ErrCandidatesFailed
	}
	return nil
}

// Close releases every resource in reverse order of acquisition and
// writes the metrics textfile.
func (r *Runner) Close() {
	if r.metrics != nil && r.Settings != nil {
		if err := r.metrics.WriteTextfile(r.Settings.Metrics.TextfilePath); err != nil {
			r.log.Warn("metrics export failed", logger.Error(err))
		}
	}
	if err := r.lock.Release(); err != nil {
		r.log.Warn("run lock release failed", logger.Error(err))
	}
	if r.http != nil {
		r.http.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.Warn("database close failed", logger.Error(err))
		}
	}
	r.flushSentry()
	if r.central != nil {
		_ = r.central.Close()
	}
}

// ExitCode maps a command error to the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCandidatesFailed):
		return ExitFailed
	default:
		return ExitFatal
	}
}

func tableList(tables []records.Table) string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}
