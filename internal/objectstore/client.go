// Package objectstore defines the storage capability the migration engine
// needs and implements it for the S3-compatible target store, the legacy
// object store REST API and bare legacy HTTP links.
package objectstore

import (
	"context"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/snd-ksa/docmigrate/internal/errors"
)

// DefaultContentType is used when neither the source nor the file extension
// yields a content type.
const DefaultContentType = "application/octet-stream"

// ErrNotFound is returned (wrapped) when a bucket/key does not exist.
var ErrNotFound = errors.NewStd("object not found")

// ErrUnsupported is returned by backends that cannot perform an operation,
// such as deleting a bare legacy HTTP link.
var ErrUnsupported = errors.NewStd("operation not supported by backend")

// ObjectInfo describes a stored object without its content.
type ObjectInfo struct {
	Bucket       string
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// Object is a fully downloaded object. Documents are bounded in size so they
// are held in memory between fetch and upload.
type Object struct {
	Data        []byte
	ContentType string
	ETag        string
}

// Size returns the length of the object data.
func (o *Object) Size() int64 {
	if o == nil {
		return 0
	}
	return int64(len(o.Data))
}

// Client is the storage contract consumed by the migration engine.
// Implementations must be safe for concurrent use.
type Client interface {
	// Exists reports whether bucket/key is present.
	Exists(ctx context.Context, bucket, key string) (bool, error)

	// Stat returns object metadata or an error wrapping ErrNotFound.
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)

	// Get downloads the object or returns an error wrapping ErrNotFound.
	Get(ctx context.Context, bucket, key string) (*Object, error)

	// Put uploads data, overwriting any existing object.
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (ObjectInfo, error)

	// Copy duplicates an object server-side where the backend allows it.
	Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error

	// Delete removes an object. Deleting a missing object is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// List returns all objects whose key starts with prefix, ordered by key.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}

// Fetcher downloads a document from an absolute URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Object, error)
}

// documentTypes are the extensions the application accepts for uploads.
var documentTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ContentTypeFor returns the content type to store for key, preferring the
// value reported by the source.
func ContentTypeFor(key, reported string) string {
	reported = strings.TrimSpace(reported)
	if reported != "" && reported != DefaultContentType {
		return reported
	}

	ext := strings.ToLower(path.Ext(key))
	if ct, ok := documentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return DefaultContentType
}

// SameContent reports whether two objects are the same bytes as far as
// metadata can tell: sizes must match, and ETags must match when both are
// plain MD5 digests (multipart ETags contain a dash and are not comparable).
func SameContent(a, b ObjectInfo) bool {
	if a.Size != b.Size {
		return false
	}
	ea, eb := normalizeETag(a.ETag), normalizeETag(b.ETag)
	if ea == "" || eb == "" || strings.Contains(ea, "-") || strings.Contains(eb, "-") {
		return true
	}
	return ea == eb
}

func normalizeETag(etag string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(etag), `"`))
}
