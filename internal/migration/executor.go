package migration

import (
	"context"
	"time"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/objectstore"
	"github.com/snd-ksa/docmigrate/internal/records"
)

// Executor migrates candidates to their canonical location.
type Executor struct {
	*engine
}

// NewExecutor builds an executor.
func NewExecutor(cfg Config, repo records.Repository, stores Stores, opts ...Option) (*Executor, error) {
	e, err := newEngine("executor", cfg, repo, stores, opts)
	if err != nil {
		return nil, err
	}
	return &Executor{engine: e}, nil
}

// Migrate moves one candidate. Every failure is reported in the Outcome;
// the record and the source object are left untouched unless the new
// object is confirmed and the pointer rewritten.
func (x *Executor) Migrate(ctx context.Context, c Candidate) Outcome {
	start := time.Now()
	out := x.migrate(ctx, c)
	out.Duration = time.Since(start)

	x.logOutcome(out)
	x.observe("migrate", out)
	return out
}

func (x *Executor) migrate(ctx context.Context, c Candidate) Outcome {
	out := newOutcome(c)

	// 1. Parse the current pointer.
	src, err := x.classifier.Parse(c.FilePath)
	if err != nil {
		return out.with(StatusFailed, err)
	}

	// 2. Resolve the destination before any I/O.
	loc, canonicalURL, err := x.resolver.CanonicalURL(c)
	if err != nil {
		if errors.Is(err, ErrUnresolvableOwner) {
			return out.with(StatusNeedsReview, err)
		}
		return out.with(StatusFailed, err)
	}
	out.To = canonicalURL

	if c.FilePath == canonicalURL || (src.Kind == SourceCanonical && src.Location() == loc) {
		return out.with(StatusAlreadyCanonical, nil)
	}

	// Records that resolve to the same key are processed one at a time.
	unlock := x.lockObject(loc)
	defer unlock()

	// 3. Fetch the source.
	obj, err := x.fetch(ctx, src)
	if err != nil {
		if objectstore.IsNotFound(err) {
			return out.with(StatusSkippedMissing, err)
		}
		return out.with(StatusFailed, err)
	}
	out.Bytes = obj.Size()

	// 4. Skip the upload when a previous run already stored the same bytes.
	// Different bytes are only replaced when no other record points at them.
	want := fingerprint(obj)
	present := false
	existing, err := x.stat(ctx, loc)
	switch {
	case err == nil:
		present = objectstore.SameContent(want, existing)
		if !present {
			if err := x.guardOverwrite(ctx, c, loc, canonicalURL); err != nil {
				return conflictOutcome(out, err)
			}
		}
	case !objectstore.IsNotFound(err):
		return out.with(StatusFailed, err)
	}

	// 5. Dry-run stops before any write.
	if x.cfg.DryRun {
		return out.with(StatusPlanned, nil)
	}

	if present {
		x.log.Debug("canonical object already present, upload skipped",
			logger.String("record", c.Ref()),
			logger.String("key", loc.String()))
	} else if err := x.putVerified(ctx, loc, obj); err != nil {
		return out.with(StatusFailed, err)
	}

	// 6. Rewrite the pointer only after the object is confirmed.
	if err := x.repoint(ctx, c, canonicalURL); err != nil {
		return out.with(StatusFailed, err)
	}

	// 7. Remove the source once the canonical copy is verified.
	out.Warning = x.removeStale(ctx, src, loc)
	return out.with(StatusMigrated, nil)
}

// Run migrates every candidate with the shared pool and returns the report.
// Outcomes appear in input order.
func (x *Executor) Run(ctx context.Context, candidates []Candidate) *Report {
	report := NewReport("migrate", x.cfg)
	x.log.Info("migration started",
		logger.Int("candidates", len(candidates)),
		logger.Int("workers", x.pool.Workers()),
		logger.Bool("dry_run", x.cfg.DryRun))

	outcomes := runAll(ctx, x.pool, candidates,
		func(c Candidate) string { return recordKey(c.Table, c.ID) },
		x.Migrate)

	report.AddAll(outcomes)
	report.Finish()

	x.log.Info("migration finished", report.LogFields()...)
	return report
}

// logOutcome logs one outcome at a level matching its status
func (e *engine) logOutcome(o Outcome) {
	fields := []logger.Field{
		logger.String("record", o.Ref()),
		logger.String("status", string(o.Status)),
		logger.Duration("elapsed", o.Duration),
	}
	if o.To != "" {
		fields = append(fields, logger.String("to", o.To))
	}
	if o.Bytes > 0 {
		fields = append(fields, logger.Int64("bytes", o.Bytes))
	}

	switch {
	case o.Status == StatusFailed:
		e.log.Error("candidate failed", append(fields, logger.Error(o.err))...)
	case o.Status == StatusNeedsReview, o.Status == StatusSkippedMissing:
		e.log.Warn("candidate not processed", append(fields, logger.Error(o.err))...)
	case o.Warning != "":
		e.log.Warn("candidate processed with warning", append(fields, logger.String("warning", o.Warning))...)
	default:
		e.log.Debug("candidate processed", fields...)
	}
}
