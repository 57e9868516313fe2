package migration

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint compared with S3 ETags
	"encoding/hex"
	"fmt"
	"time"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/objectstore"
	"github.com/snd-ksa/docmigrate/internal/records"
)

// Stores bundles the storage backends of a run.
type Stores struct {
	// Target is the canonical S3-compatible store. Required.
	Target objectstore.Client
	// Legacy is the legacy object store. Optional; without it legacy store
	// objects are fetched by URL and never deleted.
	Legacy objectstore.Client
	// Fetcher downloads bare legacy HTTP links. Optional.
	Fetcher objectstore.Fetcher
}

// Observer receives one call per finished candidate. The metrics package
// implements it.
type Observer interface {
	ObserveOutcome(operation, table, status string, bytes int64, elapsed time.Duration)
}

// Option customises an engine component.
type Option func(*engine)

// WithObserver registers an outcome observer.
func WithObserver(obs Observer) Option {
	return func(e *engine) { e.observer = obs }
}

// WithPool shares a worker pool between components.
func WithPool(p *Pool) Option {
	return func(e *engine) { e.pool = p }
}

// WithLogger overrides the component logger.
func WithLogger(l logger.Logger) Option {
	return func(e *engine) { e.log = l }
}

// engine holds what every state-changing component shares.
type engine struct {
	cfg        Config
	repo       records.Repository
	stores     Stores
	classifier *Classifier
	resolver   *Resolver
	pool       *Pool
	retry      RetryConfig
	observer   Observer
	log        logger.Logger
}

func newEngine(component string, cfg Config, repo records.Repository, stores Stores, opts []Option) (*engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if repo == nil || stores.Target == nil {
		return nil, errors.Newf("%s requires a record repository and a target store", component).
			Component("migration").
			Category(errors.CategoryConfiguration).
			Build()
	}

	classifier := NewClassifier(cfg)
	e := &engine{
		cfg:        cfg,
		repo:       repo,
		stores:     stores,
		classifier: classifier,
		resolver:   NewResolver(classifier),
		retry:      cfg.retryConfig(),
		log:        GetLogger().Module(component),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pool == nil {
		e.pool = NewPool(cfg.Workers)
	}
	if cfg.RunID != "" {
		e.log = e.log.With(logger.String("run_id", cfg.RunID))
	}
	return e, nil
}

func (e *engine) observe(operation string, o Outcome) {
	if e.observer != nil {
		e.observer.ObserveOutcome(operation, string(o.Table), string(o.Status), o.Bytes, o.Duration)
	}
}

// fetch downloads the source object with retries.
func (e *engine) fetch(ctx context.Context, src SourceLocator) (*objectstore.Object, error) {
	var obj *objectstore.Object
	err := withRetry(ctx, e.retry, e.log, "fetch", func() error {
		var err error
		obj, err = e.fetchOnce(ctx, src)
		return err
	})
	return obj, err
}

func (e *engine) fetchOnce(ctx context.Context, src SourceLocator) (*objectstore.Object, error) {
	switch src.Kind {
	case SourceCanonical:
		return e.stores.Target.Get(ctx, src.Bucket, src.Key)
	case SourceLegacyStore:
		if e.stores.Legacy != nil {
			return e.stores.Legacy.Get(ctx, src.Bucket, src.Key)
		}
		if e.stores.Fetcher != nil {
			return e.stores.Fetcher.Fetch(ctx, src.URL)
		}
	case SourceLegacyHTTP:
		if e.stores.Fetcher != nil {
			return e.stores.Fetcher.Fetch(ctx, src.URL)
		}
	}
	return nil, errors.Newf("no backend configured for %s sources", src.Kind).
		Component("migration").
		Category(errors.CategoryConfiguration).
		Build()
}

// stat returns the target object info with retries.
func (e *engine) stat(ctx context.Context, loc Location) (objectstore.ObjectInfo, error) {
	var info objectstore.ObjectInfo
	err := withRetry(ctx, e.retry, e.log, "stat", func() error {
		var err error
		info, err = e.stores.Target.Stat(ctx, loc.Bucket, loc.Key)
		return err
	})
	return info, err
}

// exists checks the target store with retries.
func (e *engine) exists(ctx context.Context, loc Location) (bool, error) {
	var ok bool
	err := withRetry(ctx, e.retry, e.log, "exists", func() error {
		var err error
		ok, err = e.stores.Target.Exists(ctx, loc.Bucket, loc.Key)
		return err
	})
	return ok, err
}

// putVerified uploads obj to loc and confirms the stored object matches.
func (e *engine) putVerified(ctx context.Context, loc Location, obj *objectstore.Object) error {
	contentType := objectstore.ContentTypeFor(loc.Key, obj.ContentType)
	err := withRetry(ctx, e.retry, e.log, "put", func() error {
		_, err := e.stores.Target.Put(ctx, loc.Bucket, loc.Key, obj.Data, contentType)
		return err
	})
	if err != nil {
		return err
	}
	return e.verify(ctx, loc, fingerprint(obj))
}

// copyVerified duplicates a target-store object server-side and confirms it.
func (e *engine) copyVerified(ctx context.Context, src, dst Location) error {
	srcInfo, err := e.stat(ctx, src)
	if err != nil {
		return err
	}
	err = withRetry(ctx, e.retry, e.log, "copy", func() error {
		return e.stores.Target.Copy(ctx, src.Bucket, src.Key, dst.Bucket, dst.Key)
	})
	if err != nil {
		return err
	}
	return e.verify(ctx, dst, srcInfo)
}

// verify stats loc and compares it with want.
func (e *engine) verify(ctx context.Context, loc Location, want objectstore.ObjectInfo) error {
	got, err := e.stat(ctx, loc)
	if err != nil {
		return fmt.Errorf("verify %s: %w", loc, err)
	}
	if !objectstore.SameContent(want, got) {
		return errors.Newf("verify %s: stored object differs (size %d, want %d)", loc, got.Size, want.Size).
			Component("migration").
			Category(errors.CategoryStorage).
			ObjectContext(loc.Bucket, loc.Key).
			Build()
	}
	return nil
}

// lockObject serialises work on one object location across records.
func (e *engine) lockObject(loc Location) func() {
	return e.pool.locks.Lock("object:" + loc.String())
}

// claimant returns the first record other than c whose pointer is url,
// or "" when no other record uses it.
func (e *engine) claimant(ctx context.Context, c Candidate, url string) (string, error) {
	for _, table := range records.AllTables() {
		docs, err := e.repo.ListByFilePath(ctx, table, url)
		if err != nil {
			return "", errors.New(fmt.Errorf("look up references to %s: %w", url, err)).
				Component("migration").
				Category(errors.CategoryDatabase).
				Context("table", string(table)).
				Build()
		}
		for _, d := range docs {
			if d.Table != c.Table || d.ID != c.ID {
				return d.Ref(), nil
			}
		}
	}
	return "", nil
}

// guardOverwrite fails with ErrObjectInUse when the object at loc,
// whose content differs from c's, is referenced by another record.
func (e *engine) guardOverwrite(ctx context.Context, c Candidate, loc Location, url string) error {
	owner, err := e.claimant(ctx, c, url)
	if err != nil || owner == "" {
		return err
	}
	return errors.New(fmt.Errorf("%s is referenced by %s: %w", loc, owner, ErrObjectInUse)).
		Component("migration").
		Category(errors.CategoryConflict).
		ObjectContext(loc.Bucket, loc.Key).
		Context("referenced_by", owner).
		Build()
}

// conflictOutcome maps a guardOverwrite error onto out
func conflictOutcome(out Outcome, err error) Outcome {
	if errors.Is(err, ErrObjectInUse) {
		return out.with(StatusNeedsReview, err)
	}
	return out.with(StatusFailed, err)
}

// repoint rewrites the pointer. Database writes are never retried.
func (e *engine) repoint(ctx context.Context, c Candidate, newPath string) error {
	return e.repo.UpdateFilePath(ctx, c.Table, c.ID, c.FilePath, newPath)
}

// removeStale deletes the object src referenced after confirming the
// canonical copy exists. It returns a warning text instead of an error
// because the pointer is already correct.
func (e *engine) removeStale(ctx context.Context, src SourceLocator, canonical Location) string {
	if !e.cfg.DeleteSource {
		return ""
	}

	var client objectstore.Client
	switch src.Kind {
	case SourceCanonical:
		if src.Location() == canonical {
			return ""
		}
		client = e.stores.Target
	case SourceLegacyStore:
		client = e.stores.Legacy
	}
	if client == nil {
		return ""
	}

	ok, err := e.exists(ctx, canonical)
	if err != nil || !ok {
		e.log.Warn("canonical object not confirmed, source kept",
			logger.String("canonical", canonical.String()),
			logger.String("source", src.Location().String()),
			logger.Error(err))
		return "source kept: canonical object not confirmed"
	}

	if err := client.Delete(ctx, src.Bucket, src.Key); err != nil {
		e.log.Warn("failed to delete source object",
			logger.String("source", src.Location().String()),
			logger.Error(err))
		return "source delete failed: " + err.Error()
	}
	return ""
}

// fingerprint describes obj for comparison with a stored object
func fingerprint(obj *objectstore.Object) objectstore.ObjectInfo {
	sum := md5.Sum(obj.Data) //nolint:gosec // content fingerprint only
	return objectstore.ObjectInfo{
		Size: obj.Size(),
		ETag: hex.EncodeToString(sum[:]),
	}
}
