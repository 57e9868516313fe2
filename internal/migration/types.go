// Package migration moves document blobs from the legacy stores to the
// canonical target store and keeps the file_path pointers consistent with
// the objects that really exist.
//
// Every state-changing step follows the same order: write the new object,
// confirm it exists, rewrite the pointer, then delete the old object. A run
// interrupted between any two steps can be repeated safely.
package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/records"
)

// Candidate is a document row considered for migration or reconciliation.
type Candidate = records.Document

// Status is the result class of one candidate.
type Status string

const (
	StatusMigrated         Status = "migrated"
	StatusAlreadyCanonical Status = "already-canonical"
	StatusSkippedMissing   Status = "skipped-source-missing"
	StatusFailed           Status = "failed"
	// StatusNeedsReview marks candidates that cannot be resolved automatically.
	// They are excluded from the migrated and failed counts.
	StatusNeedsReview Status = "needs-review"
	// StatusPlanned is reported in dry-run mode instead of migrated.
	StatusPlanned Status = "planned"
	// StatusRemoved marks a duplicate object that was deleted.
	StatusRemoved Status = "duplicate-removed"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrInvalidSourceFormat = errors.NewStd("invalid source path format")
	ErrUnresolvableOwner   = errors.NewStd("owner business key is unknown")
	ErrCanonicalMissing    = errors.NewStd("canonical object missing")
	ErrObjectInUse         = errors.NewStd("object is referenced by another record")
)

// Location is a bucket/key pair in an object store.
type Location struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Key    string `json:"key" yaml:"key"`
}

func (l Location) String() string {
	return l.Bucket + "/" + l.Key
}

// IsZero reports whether the location is unset.
func (l Location) IsZero() bool {
	return l.Bucket == "" && l.Key == ""
}

// Outcome is the transient per-candidate result. It is never persisted.
type Outcome struct {
	Table    records.Table `json:"table" yaml:"table"`
	RecordID int64         `json:"record_id" yaml:"record_id"`
	FileName string        `json:"file_name" yaml:"file_name"`
	Status   Status        `json:"status" yaml:"status"`
	From     string        `json:"from,omitempty" yaml:"from,omitempty"`
	To       string        `json:"to,omitempty" yaml:"to,omitempty"`
	Bytes    int64         `json:"bytes,omitempty" yaml:"bytes,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty" yaml:"duration,omitempty"`
	Warning  string        `json:"warning,omitempty" yaml:"warning,omitempty"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`

	err error
}

// Err returns the underlying error of a failed or needs-review outcome.
func (o Outcome) Err() error { return o.err }

func newOutcome(c Candidate) Outcome {
	return Outcome{
		Table:    c.Table,
		RecordID: c.ID,
		FileName: c.FileName,
		From:     c.FilePath,
	}
}

func (o Outcome) with(status Status, err error) Outcome {
	o.Status = status
	if err != nil {
		o.err = err
		o.Error = err.Error()
	}
	return o
}

// Ref is a printable "table#id" reference.
func (o Outcome) Ref() string {
	return fmt.Sprintf("%s#%d", o.Table, o.RecordID)
}

// Config is the explicit configuration shared by every component. It is
// built once at startup; nothing reads the environment mid-run.
type Config struct {
	// CanonicalBaseURL prefixes every canonical file_path, e.g.
	// https://minio.example.com. Canonical URLs are {base}/{bucket}/{key}.
	CanonicalBaseURL string

	// LegacyStoreBaseURL is the legacy store REST endpoint. Paths that
	// contain it are classified as legacy store.
	LegacyStoreBaseURL string

	// LegacyHostMarker is a host substring identifying legacy store URLs.
	LegacyHostMarker string

	Workers       int
	RetryAttempts int
	RetryBackoff  time.Duration

	DryRun bool
	Tables []records.Table

	// DeleteSource removes the legacy object after the pointer is rewritten.
	DeleteSource bool

	RunID string
}

// Default configuration values.
const (
	DefaultWorkers          = 4
	DefaultRetryAttempts    = 3
	DefaultRetryBackoff     = time.Second
	DefaultLegacyHostMarker = "supabasekong."
)

// DefaultConfig returns a Config with the default tuning values.
func DefaultConfig() Config {
	return Config{
		LegacyHostMarker: DefaultLegacyHostMarker,
		Workers:          DefaultWorkers,
		RetryAttempts:    DefaultRetryAttempts,
		RetryBackoff:     DefaultRetryBackoff,
		Tables:           records.AllTables(),
		DeleteSource:     true,
	}
}

// Validate checks the fields every component relies on.
func (c Config) Validate() error {
	var errs []error

	base := strings.TrimSpace(c.CanonicalBaseURL)
	if base == "" {
		errs = append(errs, errors.NewStd("canonical base URL is required"))
	} else if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		errs = append(errs, fmt.Errorf("canonical base URL %q must be http(s)", base))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry attempts must be at least 1, got %d", c.RetryAttempts))
	}
	if c.RetryBackoff < 0 {
		errs = append(errs, fmt.Errorf("retry backoff must not be negative, got %s", c.RetryBackoff))
	}
	for _, t := range c.Tables {
		if !t.Valid() {
			errs = append(errs, fmt.Errorf("unknown table %q", t))
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.New(errors.Join(errs...)).
		Component("migration").
		Category(errors.CategoryConfiguration).
		Build()
}

func (c Config) tables() []records.Table {
	if len(c.Tables) == 0 {
		return records.AllTables()
	}
	return c.Tables
}
