package migration

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/logger"
	"github.com/snd-ksa/docmigrate/internal/objectstore"
	"github.com/snd-ksa/docmigrate/internal/records"
)

// Duplicate reasons.
const (
	ReasonPointerKey      = "pointer-key"
	ReasonSurrogateLayout = "surrogate-layout"
	ReasonTimestamped     = "timestamped-copy"
)

// DuplicatePair is a legacy-layout copy of a document whose canonical
// object exists in the target store.
type DuplicatePair struct {
	Candidate       Candidate `json:"-" yaml:"-"`
	Table           string    `json:"table" yaml:"table"`
	RecordID        int64     `json:"record_id" yaml:"record_id"`
	Canonical       Location  `json:"canonical" yaml:"canonical"`
	CanonicalURL    string    `json:"canonical_url" yaml:"canonical_url"`
	Legacy          Location  `json:"legacy" yaml:"legacy"`
	PointerOnLegacy bool      `json:"pointer_on_legacy" yaml:"pointer_on_legacy"`
	Reason          string    `json:"reason" yaml:"reason"`
}

// DuplicateResolver finds and removes legacy-layout copies of canonical
// objects in the target store.
type DuplicateResolver struct {
	*engine
}

// NewDuplicateResolver builds a duplicate resolver.
func NewDuplicateResolver(cfg Config, repo records.Repository, stores Stores, opts ...Option) (*DuplicateResolver, error) {
	e, err := newEngine("duplicates", cfg, repo, stores, opts)
	if err != nil {
		return nil, err
	}
	return &DuplicateResolver{engine: e}, nil
}

// dupIndex holds the target-store keys that must never be reported as
// duplicates: every record's canonical key and every key a pointer uses.
type dupIndex struct {
	canonical  map[Location]string
	referenced map[Location][]string
}

// protected reports whether a record other than owner depends on loc.
func (ix dupIndex) protected(loc Location, owner string) bool {
	if ref, ok := ix.canonical[loc]; ok && ref != owner {
		return true
	}
	for _, ref := range ix.referenced[loc] {
		if ref != owner {
			return true
		}
	}
	return false
}

// FindDuplicates lists every legacy copy of a document whose canonical
// object exists. Keys referenced by another record, or canonical for
// another record, are never reported.
func (d *DuplicateResolver) FindDuplicates(ctx context.Context) ([]DuplicatePair, error) {
	var docs []Candidate
	for _, table := range sortedTables(d.cfg) {
		rows, err := d.repo.ListAll(ctx, table)
		if err != nil {
			return nil, errors.New(fmt.Errorf("dedupe %s: %w", table, err)).
				Component("migration").
				Category(errors.CategoryDatabase).
				Context("table", string(table)).
				Build()
		}
		docs = append(docs, rows...)
	}

	ix := dupIndex{
		canonical:  make(map[Location]string),
		referenced: make(map[Location][]string),
	}
	for _, c := range docs {
		if loc, err := d.resolver.Resolve(c); err == nil {
			ix.canonical[loc] = c.Ref()
		}
		if src, err := d.classifier.Parse(c.FilePath); err == nil && src.Kind == SourceCanonical {
			ix.referenced[src.Location()] = append(ix.referenced[src.Location()], c.Ref())
		}
	}

	var pairs []DuplicatePair
	seen := make(map[Location]bool)

	for _, c := range docs {
		if d.classifier.Classify(c.FilePath) == ClassEmpty {
			continue
		}
		loc, canonicalURL, err := d.resolver.CanonicalURL(c)
		if err != nil {
			continue
		}

		info, err := d.stat(ctx, loc)
		if objectstore.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}

		found, err := d.duplicatesOf(ctx, c, loc, info)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if seen[f.loc] || f.loc == loc || ix.protected(f.loc, c.Ref()) {
				continue
			}
			seen[f.loc] = true
			pairs = append(pairs, DuplicatePair{
				Candidate:       c,
				Table:           string(c.Table),
				RecordID:        c.ID,
				Canonical:       loc,
				CanonicalURL:    canonicalURL,
				Legacy:          f.loc,
				PointerOnLegacy: f.pointer,
				Reason:          f.reason,
			})
		}
	}

	d.log.Info("duplicate scan complete",
		logger.Int("records", len(docs)),
		logger.Int("duplicates", len(pairs)))
	return pairs, nil
}

type foundKey struct {
	loc     Location
	reason  string
	pointer bool
}

// duplicatesOf collects the candidate legacy keys of one record
func (d *DuplicateResolver) duplicatesOf(ctx context.Context, c Candidate, canonical Location, info objectstore.ObjectInfo) ([]foundKey, error) {
	var found []foundKey

	if src, err := d.classifier.Parse(c.FilePath); err == nil && src.Kind == SourceCanonical && src.Location() != canonical {
		ok, err := d.exists(ctx, src.Location())
		if err != nil {
			return nil, err
		}
		if ok {
			found = append(found, foundKey{loc: src.Location(), reason: ReasonPointerKey, pointer: true})
		}
	}

	kind := normalizeKind(c.OwnerKind)
	name := path.Base(canonical.Key)
	if kind == "" || name == "" {
		return found, nil
	}

	if c.OwnerID > 0 {
		surrogate := Location{
			Bucket: canonical.Bucket,
			Key:    kind + "-" + strconv.FormatInt(c.OwnerID, 10) + "/" + name,
		}
		ok, err := d.exists(ctx, surrogate)
		if err != nil {
			return nil, err
		}
		if ok {
			found = append(found, foundKey{loc: surrogate, reason: ReasonSurrogateLayout})
		}
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	stamped := `-\d+` + regexp.QuoteMeta(ext) + `$`

	var prefixes []timestampPrefix
	if c.OwnerID > 0 {
		dir := kind + "-" + strconv.FormatInt(c.OwnerID, 10) + "/"
		prefixes = append(prefixes, timestampPrefix{
			prefix:  dir,
			pattern: regexp.MustCompile("^" + regexp.QuoteMeta(dir+stem) + stamped),
		})
	}
	for _, variant := range rootVariants(c) {
		root := kind + "-" + variant + "-"
		prefixes = append(prefixes, timestampPrefix{
			prefix:  root,
			pattern: regexp.MustCompile("^" + regexp.QuoteMeta(root) + `\d+` + regexp.QuoteMeta(ext) + `$`),
		})
	}

	for _, p := range prefixes {
		var objects []objectstore.ObjectInfo
		err := withRetry(ctx, d.retry, d.log, "list", func() error {
			var err error
			objects, err = d.stores.Target.List(ctx, canonical.Bucket, p.prefix)
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, obj := range objects {
			if !p.pattern.MatchString(obj.Key) || !objectstore.SameContent(info, obj) {
				continue
			}
			found = append(found, foundKey{
				loc:    Location{Bucket: canonical.Bucket, Key: obj.Key},
				reason: ReasonTimestamped,
			})
		}
	}
	return found, nil
}

type timestampPrefix struct {
	prefix  string
	pattern *regexp.Regexp
}

// rootVariants are the owner spellings used by root-level timestamped
// copies: the raw and normalised business key digits and the surrogate id
func rootVariants(c Candidate) []string {
	variants := DigitVariants(c.OwnerBusinessKey)
	if c.OwnerID > 0 {
		id := strconv.FormatInt(c.OwnerID, 10)
		if !slices.Contains(variants, id) {
			variants = append(variants, id)
		}
	}
	return variants
}

// Resolve removes one duplicate. The canonical object is authoritative:
// its existence is checked before the pointer moves and again immediately
// before the legacy key is deleted. A legacy key that another record still
// points at is never deleted.
func (d *DuplicateResolver) Resolve(ctx context.Context, pair DuplicatePair) Outcome {
	start := time.Now()
	out := d.resolve(ctx, pair)
	out.Duration = time.Since(start)

	d.logOutcome(out)
	d.observe("dedupe", out)
	return out
}

func (d *DuplicateResolver) resolve(ctx context.Context, pair DuplicatePair) Outcome {
	out := newOutcome(pair.Candidate)
	out.From = d.classifier.CanonicalURL(pair.Legacy)
	out.To = pair.CanonicalURL

	if d.cfg.DryRun {
		return out.with(StatusPlanned, nil)
	}

	unlock := d.lockObject(pair.Legacy)
	defer unlock()

	if err := d.confirmUnreferenced(ctx, pair, out.From); err != nil {
		return d.canonicalFailure(out, err)
	}
	if err := d.confirmCanonical(ctx, pair); err != nil {
		return d.canonicalFailure(out, err)
	}

	if pair.PointerOnLegacy {
		if err := d.repoint(ctx, pair.Candidate, pair.CanonicalURL); err != nil {
			return out.with(StatusFailed, err)
		}
		if err := d.confirmUnreferenced(ctx, pair, out.From); err != nil {
			return d.canonicalFailure(out, err)
		}
		if err := d.confirmCanonical(ctx, pair); err != nil {
			return d.canonicalFailure(out, err)
		}
	}

	err := withRetry(ctx, d.retry, d.log, "delete", func() error {
		return d.stores.Target.Delete(ctx, pair.Legacy.Bucket, pair.Legacy.Key)
	})
	if err != nil {
		return out.with(StatusFailed, err)
	}
	return out.with(StatusRemoved, nil)
}

// confirmCanonical fails with ErrCanonicalMissing when the canonical key is gone
func (d *DuplicateResolver) confirmCanonical(ctx context.Context, pair DuplicatePair) error {
	ok, err := d.exists(ctx, pair.Canonical)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New(fmt.Errorf("%s: %w", pair.Canonical, ErrCanonicalMissing)).
			Component("migration").
			Category(errors.CategoryNotFound).
			ObjectContext(pair.Canonical.Bucket, pair.Canonical.Key).
			Build()
	}
	return nil
}

// confirmUnreferenced fails with ErrObjectInUse when a record other
// than the pair's still points at the legacy key
func (d *DuplicateResolver) confirmUnreferenced(ctx context.Context, pair DuplicatePair, legacyURL string) error {
	owner, err := d.claimant(ctx, pair.Candidate, legacyURL)
	if err != nil || owner == "" {
		return err
	}
	return errors.New(fmt.Errorf("%s is still referenced by %s: %w", pair.Legacy, owner, ErrObjectInUse)).
		Component("migration").
		Category(errors.CategoryConflict).
		ObjectContext(pair.Legacy.Bucket, pair.Legacy.Key).
		Context("referenced_by", owner).
		Build()
}

func (d *DuplicateResolver) canonicalFailure(out Outcome, err error) Outcome {
	if errors.Is(err, ErrCanonicalMissing) || errors.Is(err, ErrObjectInUse) {
		return out.with(StatusNeedsReview, err)
	}
	return out.with(StatusFailed, err)
}

// ResolveAll resolves pairs with the shared pool, in input order.
func (d *DuplicateResolver) ResolveAll(ctx context.Context, pairs []DuplicatePair) *Report {
	report := NewReport("dedupe", d.cfg)

	outcomes := runAll(ctx, d.pool, pairs,
		func(p DuplicatePair) string { return recordKey(p.Candidate.Table, p.Candidate.ID) },
		d.Resolve)

	report.AddAll(outcomes)
	report.Finish()

	d.log.Info("duplicate cleanup finished", report.LogFields()...)
	return report
}

// WriteDuplicates renders a duplicate listing.
func WriteDuplicates(w io.Writer, format Format, pairs []DuplicatePair) error {
	if format != FormatText {
		if pairs == nil {
			pairs = []DuplicatePair{}
		}
		return encode(w, format, pairs)
	}

	fmt.Fprintf(w, "Found %d duplicate objects\n", len(pairs))
	for i, p := range pairs {
		pointer := ""
		if p.PointerOnLegacy {
			pointer = ", pointer moves"
		}
		fmt.Fprintf(w, "%d. [%s] id=%d (%s%s)\n   keep:   %s\n   remove: %s\n",
			i+1, p.Table, p.RecordID, p.Reason, pointer, p.Canonical, p.Legacy)
	}
	return nil
}
