package migration

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/objectstore"
	"github.com/snd-ksa/docmigrate/internal/records"
)

// Mismatch is a record whose pointer differs from its canonical URL.
type Mismatch struct {
	Candidate     Candidate `json:"-" yaml:"-"`
	Table         string    `json:"table" yaml:"table"`
	RecordID      int64     `json:"record_id" yaml:"record_id"`
	CurrentPath   string    `json:"current_path" yaml:"current_path"`
	CanonicalPath string    `json:"canonical_path" yaml:"canonical_path"`
	Canonical     Location  `json:"canonical" yaml:"canonical"`
	Class         PathClass `json:"class" yaml:"class"`
}

// AuditResult is the read-only output of an audit.
type AuditResult struct {
	Checked    int        `json:"checked" yaml:"checked"`
	Mismatches []Mismatch `json:"mismatches" yaml:"mismatches"`
	Review     []Outcome  `json:"needs_review,omitempty" yaml:"needs_review,omitempty"`
}

// Auditor detects layout drift regardless of backend and repairs it.
type Auditor struct {
	*engine
}

// NewAuditor builds an auditor.
func NewAuditor(cfg Config, repo records.Repository, stores Stores, opts ...Option) (*Auditor, error) {
	e, err := newEngine("auditor", cfg, repo, stores, opts)
	if err != nil {
		return nil, err
	}
	return &Auditor{engine: e}, nil
}

// Audit lists every record with a non-empty path whose pointer is not its
// canonical URL.
func (a *Auditor) Audit(ctx context.Context) ([]Mismatch, error) {
	res, err := a.AuditAll(ctx)
	if err != nil {
		return nil, err
	}
	return res.Mismatches, nil
}

// AuditAll is Audit plus the records whose owner cannot be resolved.
func (a *Auditor) AuditAll(ctx context.Context) (*AuditResult, error) {
	res := &AuditResult{}

	for _, table := range sortedTables(a.cfg) {
		docs, err := a.repo.ListAll(ctx, table)
		if err != nil {
			return nil, errors.New(fmt.Errorf("audit %s: %w", table, err)).
				Component("migration").
				Category(errors.CategoryDatabase).
				Context("table", string(table)).
				Build()
		}

		for _, c := range docs {
			if a.classifier.Classify(c.FilePath) == ClassEmpty {
				continue
			}
			res.Checked++

			loc, canonicalURL, err := a.resolver.CanonicalURL(c)
			if err != nil {
				res.Review = append(res.Review, newOutcome(c).with(StatusNeedsReview, err))
				continue
			}
			if c.FilePath == canonicalURL {
				continue
			}
			res.Mismatches = append(res.Mismatches, Mismatch{
				Candidate:     c,
				Table:         string(c.Table),
				RecordID:      c.ID,
				CurrentPath:   c.FilePath,
				CanonicalPath: canonicalURL,
				Canonical:     loc,
				Class:         a.classifier.Classify(c.FilePath),
			})
		}
	}

	a.log.Info("audit complete",
		logger.Int("checked", res.Checked),
		logger.Int("mismatches", len(res.Mismatches)),
		logger.Int("needs_review", len(res.Review)))
	return res, nil
}

// Fix repairs one mismatch: reuse the canonical object when it holds the
// same document, otherwise copy it from the current storage key; then
// repoint, confirm and delete the stale key. A canonical object with other
// content that another record references is never replaced.
func (a *Auditor) Fix(ctx context.Context, m Mismatch) Outcome {
	start := time.Now()
	out := a.fix(ctx, m)
	out.Duration = time.Since(start)

	a.logOutcome(out)
	a.observe("audit", out)
	return out
}

func (a *Auditor) fix(ctx context.Context, m Mismatch) Outcome {
	out := newOutcome(m.Candidate)
	out.To = m.CanonicalPath

	unlock := a.lockObject(m.Canonical)
	defer unlock()

	src, srcErr := a.classifier.Parse(m.CurrentPath)

	existing, err := a.stat(ctx, m.Canonical)
	present := err == nil
	if err != nil && !objectstore.IsNotFound(err) {
		return out.with(StatusFailed, err)
	}

	// What the current storage key holds, when it can be read.
	var (
		obj   *objectstore.Object
		want  objectstore.ObjectInfo
		known bool
	)
	if srcErr == nil {
		want, obj, err = a.sourceInfo(ctx, src)
		switch {
		case err == nil:
			known = true
		case !objectstore.IsNotFound(err):
			return out.with(StatusFailed, err)
		case !present:
			return out.with(StatusSkippedMissing, err)
		}
	} else if !present {
		return out.with(StatusFailed, srcErr)
	}

	reuse := present && known && objectstore.SameContent(want, existing)
	if present && !reuse {
		if err := a.guardOverwrite(ctx, m.Candidate, m.Canonical, m.CanonicalPath); err != nil {
			return conflictOutcome(out, err)
		}
		// Unreferenced: replace it from the source, or adopt it when the
		// source is gone.
		reuse = !known
	}

	if a.cfg.DryRun {
		return out.with(StatusPlanned, nil)
	}

	if !reuse {
		if err := a.materialize(ctx, src, obj, m.Canonical, &out); err != nil {
			if objectstore.IsNotFound(err) {
				return out.with(StatusSkippedMissing, err)
			}
			return out.with(StatusFailed, err)
		}
	}

	if err := a.repoint(ctx, m.Candidate, m.CanonicalPath); err != nil {
		return out.with(StatusFailed, err)
	}

	if srcErr == nil {
		out.Warning = a.removeStale(ctx, src, m.Canonical)
	}
	return out.with(StatusMigrated, nil)
}

// sourceInfo describes the object src references. Legacy objects are
// downloaded and returned for reuse; target-store objects are only stated.
func (a *Auditor) sourceInfo(ctx context.Context, src SourceLocator) (objectstore.ObjectInfo, *objectstore.Object, error) {
	if src.Kind == SourceCanonical {
		info, err := a.stat(ctx, src.Location())
		return info, nil, err
	}
	obj, err := a.fetch(ctx, src)
	if err != nil {
		return objectstore.ObjectInfo{}, nil, err
	}
	return fingerprint(obj), obj, nil
}

// materialize creates the canonical object from src, reusing obj when the
// source was already downloaded
func (a *Auditor) materialize(ctx context.Context, src SourceLocator, obj *objectstore.Object, dst Location, out *Outcome) error {
	if src.Kind == SourceCanonical {
		if err := a.copyVerified(ctx, src.Location(), dst); err != nil {
			return err
		}
		if info, err := a.stat(ctx, dst); err == nil {
			out.Bytes = info.Size
		}
		return nil
	}

	if obj == nil {
		var err error
		if obj, err = a.fetch(ctx, src); err != nil {
			return err
		}
	}
	out.Bytes = obj.Size()
	return a.putVerified(ctx, dst, obj)
}

// FixAll repairs mismatches with the shared pool, in input order.
func (a *Auditor) FixAll(ctx context.Context, mismatches []Mismatch) *Report {
	report := NewReport("audit", a.cfg)

	outcomes := runAll(ctx, a.pool, mismatches,
		func(m Mismatch) string { return recordKey(m.Candidate.Table, m.Candidate.ID) },
		a.Fix)

	report.AddAll(outcomes)
	report.Finish()

	a.log.Info("audit fixes finished", report.LogFields()...)
	return report
}

// Write renders the audit result.
func (r *AuditResult) Write(w io.Writer, format Format) error {
	if format != FormatText {
		return encode(w, format, r)
	}

	fmt.Fprintf(w, "Checked %d records, %d mismatches, %d need review\n",
		r.Checked, len(r.Mismatches), len(r.Review))
	for i, m := range r.Mismatches {
		fmt.Fprintf(w, "%d. [%s] id=%d (%s)\n   current:   %s\n   canonical: %s\n",
			i+1, m.Table, m.RecordID, m.Class, m.CurrentPath, m.CanonicalPath)
	}
	writeOutcomeList(w, "Needs manual review", r.Review, func(o Outcome) string { return o.Error })
	return nil
}

// sortedTables returns cfg's tables in name order
func sortedTables(cfg Config) []records.Table {
	tables := slices.Clone(cfg.tables())
	slices.Sort(tables)
	return tables
}
