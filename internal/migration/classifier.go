package migration

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/snd-ksa/docmigrate/internal/records"
)

// PathClass is the backend classification of a file_path value.
type PathClass string

const (
	ClassCanonical   PathClass = "canonical"
	ClassLegacyStore PathClass = "legacyStore"
	ClassLegacyHTTP  PathClass = "legacyHttp"
	ClassEmpty       PathClass = "empty"
	ClassOther       PathClass = "other"
)

// AllClasses lists the classes in report order.
func AllClasses() []PathClass {
	return []PathClass{ClassCanonical, ClassLegacyStore, ClassLegacyHTTP, ClassEmpty, ClassOther}
}

// legacyObjectMarker is the path segment of legacy store object URLs
const legacyObjectMarker = "/storage/v1/object/"

// legacyAccessModes are the optional access segments after the marker
var legacyAccessModes = []string{"public/", "sign/", "authenticated/"}

// SourceKind tells the executor how to reach a source object.
type SourceKind string

const (
	SourceLegacyStore SourceKind = "legacyStore"
	SourceLegacyHTTP  SourceKind = "legacyHttp"
	SourceCanonical   SourceKind = "canonical"
)

// SourceLocator is a parsed file_path.
type SourceLocator struct {
	Kind   SourceKind
	Bucket string
	Key    string
	URL    string
}

// Location returns the bucket/key of store-backed locators.
func (s SourceLocator) Location() Location {
	return Location{Bucket: s.Bucket, Key: s.Key}
}

// Classifier classifies and parses file_path values. It is the single
// place where backends are recognised.
type Classifier struct {
	canonicalBase string
	legacyBase    string
	hostMarker    string
}

// NewClassifier builds a classifier from cfg.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{
		canonicalBase: strings.TrimRight(strings.TrimSpace(cfg.CanonicalBaseURL), "/"),
		legacyBase:    strings.TrimRight(strings.TrimSpace(cfg.LegacyStoreBaseURL), "/"),
		hostMarker:    strings.TrimSpace(cfg.LegacyHostMarker),
	}
}

// Classify returns the class of path. Precedence: empty, canonical,
// legacy store, legacy http, other.
func (c *Classifier) Classify(path string) PathClass {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return ClassEmpty
	case c.isCanonical(path):
		return ClassCanonical
	case c.isLegacyStore(path):
		return ClassLegacyStore
	case strings.HasPrefix(path, "http://"):
		return ClassLegacyHTTP
	default:
		return ClassOther
	}
}

func (c *Classifier) isCanonical(path string) bool {
	return c.canonicalBase != "" && strings.HasPrefix(path, c.canonicalBase+"/")
}

func (c *Classifier) isLegacyStore(path string) bool {
	return (c.hostMarker != "" && strings.Contains(path, c.hostMarker)) ||
		(c.legacyBase != "" && strings.HasPrefix(path, c.legacyBase+"/")) ||
		strings.Contains(path, legacyObjectMarker)
}

// Patterns returns the repository patterns selecting legacy paths.
func (c *Classifier) Patterns() []records.Pattern {
	patterns := []records.Pattern{
		{Prefix: "http://"},
		{Contains: legacyObjectMarker},
	}
	if c.hostMarker != "" {
		patterns = append(patterns, records.Pattern{Contains: c.hostMarker})
	}
	if c.legacyBase != "" {
		patterns = append(patterns, records.Pattern{Prefix: c.legacyBase + "/"})
	}
	return patterns
}

// CanonicalURL renders the file_path of a canonical location. Key segments
// are escaped so that the URL round-trips through Parse.
func (c *Classifier) CanonicalURL(loc Location) string {
	return c.canonicalBase + "/" + url.PathEscape(loc.Bucket) + "/" + escapeSegments(loc.Key)
}

// Parse turns a file_path into a SourceLocator. Relative keys and
// malformed URLs fail with ErrInvalidSourceFormat.
func (c *Classifier) Parse(path string) (SourceLocator, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return SourceLocator{}, invalidSource(path, "empty path")
	}

	if c.isCanonical(path) {
		bucket, key, err := splitBucketKey(stripQuery(path[len(c.canonicalBase)+1:]))
		if err != nil {
			return SourceLocator{}, invalidSource(path, err.Error())
		}
		return SourceLocator{Kind: SourceCanonical, Bucket: bucket, Key: key, URL: path}, nil
	}

	u, err := url.Parse(path)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return SourceLocator{}, invalidSource(path, "not an absolute http(s) URL")
	}

	if idx := strings.Index(u.EscapedPath(), legacyObjectMarker); idx >= 0 {
		rest := u.EscapedPath()[idx+len(legacyObjectMarker):]
		for _, mode := range legacyAccessModes {
			if strings.HasPrefix(rest, mode) {
				rest = rest[len(mode):]
				break
			}
		}
		bucket, key, err := splitBucketKey(rest)
		if err != nil {
			return SourceLocator{}, invalidSource(path, err.Error())
		}
		return SourceLocator{Kind: SourceLegacyStore, Bucket: bucket, Key: key, URL: path}, nil
	}

	if c.isLegacyStore(path) {
		return SourceLocator{}, invalidSource(path, "legacy store URL without object path")
	}

	return SourceLocator{Kind: SourceLegacyHTTP, URL: path}, nil
}

// splitBucketKey splits an escaped "bucket/key" path and unescapes it
func splitBucketKey(p string) (string, string, error) {
	p = strings.TrimLeft(p, "/")
	bucket, key, ok := strings.Cut(p, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("missing bucket or key in %q", p)
	}

	b, err := url.PathUnescape(bucket)
	if err != nil {
		return "", "", fmt.Errorf("bad bucket escape: %w", err)
	}
	k, err := url.PathUnescape(key)
	if err != nil {
		return "", "", fmt.Errorf("bad key escape: %w", err)
	}
	return b, k, nil
}

func stripQuery(p string) string {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		return p[:i]
	}
	return p
}

func escapeSegments(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
