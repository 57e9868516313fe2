package migration

import (
	"fmt"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/records"
)

// Buckets of the canonical store.
const (
	BucketEmployeeDocuments  = "employee-documents"
	BucketEquipmentDocuments = "equipment-documents"
	BucketGeneral            = "general"
)

// BucketFor returns the canonical bucket of table.
func BucketFor(table records.Table) string {
	switch table {
	case records.EmployeeDocuments:
		return BucketEmployeeDocuments
	case records.EquipmentDocuments:
		return BucketEquipmentDocuments
	default:
		return BucketGeneral
	}
}

// Resolver maps candidates to canonical locations. It is pure: the same
// (table, owner kind, business key, file name) always yields the same key.
type Resolver struct {
	classifier *Classifier
}

// NewResolver creates a resolver rendering URLs with classifier.
func NewResolver(classifier *Classifier) *Resolver {
	return &Resolver{classifier: classifier}
}

// Resolve returns the canonical location of c. The key is built from the
// owner's business key, never its surrogate id:
//
//	{ownerKind}-{normalizedBusinessKey}/{base(fileName)}
func (r *Resolver) Resolve(c Candidate) (Location, error) {
	kind := normalizeKind(c.OwnerKind)
	if kind == "" {
		return Location{}, unresolvable(c, "owner kind unknown")
	}

	owner := NormalizeBusinessKey(c.OwnerBusinessKey)
	if owner == "" {
		return Location{}, unresolvable(c, "business key empty")
	}

	name := fileBase(c.FileName)
	if name == "" {
		name = fileBase(stripQuery(c.FilePath))
	}
	if name == "" {
		return Location{}, invalidSource(c.FilePath, "no file name")
	}

	return Location{
		Bucket: BucketFor(c.Table),
		Key:    kind + "-" + owner + "/" + name,
	}, nil
}

// CanonicalURL resolves c and renders the canonical file_path.
func (r *Resolver) CanonicalURL(c Candidate) (Location, string, error) {
	loc, err := r.Resolve(c)
	if err != nil {
		return Location{}, "", err
	}
	return loc, r.classifier.CanonicalURL(loc), nil
}

// NormalizeBusinessKey reduces a business key to its canonical form. The
// last run of digits wins with leading zeroes removed ("EMP-0042" gives
// "42", "0000" gives "0"). Keys without digits are lower-cased,
// accent-folded and reduced to [a-z0-9-].
func NormalizeBusinessKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}

	if digits := lastDigitRun(key); digits != "" {
		trimmed := strings.TrimLeft(digits, "0")
		if trimmed == "" {
			return "0"
		}
		return trimmed
	}

	return slugify(key)
}

// DigitVariants returns the distinct digit spellings of a business key that
// legacy layouts used: the raw digit run and its normalized form.
func DigitVariants(key string) []string {
	raw := lastDigitRun(strings.TrimSpace(key))
	if raw == "" {
		return nil
	}
	trimmed := NormalizeBusinessKey(raw)
	if trimmed == raw {
		return []string{raw}
	}
	return []string{raw, trimmed}
}

func lastDigitRun(s string) string {
	end := -1
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] >= '0' && s[i] <= '9' {
			end = i + 1
			break
		}
	}
	if end < 0 {
		return ""
	}
	start := end - 1
	for start > 0 && s[start-1] >= '0' && s[start-1] <= '9' {
		start--
	}
	return s[start:end]
}

// slugify folds accents and keeps [a-z0-9-], collapsing other runs to "-"
func slugify(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

func normalizeKind(kind string) string {
	return slugify(kind)
}

// fileBase returns the last path element, accepting backslash separators
func fileBase(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func unresolvable(c Candidate, reason string) error {
	return errors.New(fmt.Errorf("%s: %w (%s)", c.Ref(), ErrUnresolvableOwner, reason)).
		Component("migration").
		Category(errors.CategoryValidation).
		RecordContext(string(c.Table), c.ID).
		Context("owner_kind", c.OwnerKind).
		Build()
}

func invalidSource(p, reason string) error {
	return errors.New(fmt.Errorf("%w: %s", ErrInvalidSourceFormat, reason)).
		Component("migration").
		Category(errors.CategoryValidation).
		Context("path_length", len(p)).
		Build()
}
