// Package objectstoretest provides an in-memory objectstore.Client with
// call counters and fault injection for tests.
package objectstoretest

import (
	"context"
	"crypto/md5" //nolint:gosec // ETag compatibility only
	"encoding/hex"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/snd-ksa/docmigrate/internal/objectstore"
)

// Op names an operation for fault injection and counting.
type Op string

const (
	OpStat   Op = "stat"
	OpGet    Op = "get"
	OpPut    Op = "put"
	OpCopy   Op = "copy"
	OpDelete Op = "delete"
	OpList   Op = "list"
)

// ErrInjected is the transient error returned by injected faults.
var ErrInjected = &objectstore.StatusError{Op: "injected", URL: "memory", StatusCode: http.StatusServiceUnavailable}

type storedObject struct {
	data        []byte
	contentType string
	etag        string
	modified    time.Time
}

type fault struct {
	remaining int // <0 means forever
	err       error
}

// Store is a concurrency-safe in-memory object store.
type Store struct {
	mu      sync.Mutex
	objects map[string]storedObject
	calls   map[Op]int
	faults  map[string]*fault
	hook    func(op Op, bucket, key string)
}

var _ objectstore.Client = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		objects: make(map[string]storedObject),
		calls:   make(map[Op]int),
		faults:  make(map[string]*fault),
	}
}

func objectID(bucket, key string) string { return bucket + "/" + key }

func faultID(op Op, bucket, key string) string { return string(op) + " " + bucket + "/" + key }

// Seed stores data without counting a put.
func (s *Store) Seed(bucket, key string, data []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectID(bucket, key)] = newStored(data, contentType)
}

// Has reports whether bucket/key is stored.
func (s *Store) Has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[objectID(bucket, key)]
	return ok
}

// Data returns a copy of the stored bytes, or nil.
func (s *Store) Data(bucket, key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectID(bucket, key)]
	if !ok {
		return nil
	}
	return slices.Clone(obj.data)
}

// ContentType returns the stored content type of bucket/key.
func (s *Store) ContentType(bucket, key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[objectID(bucket, key)].contentType
}

// Keys lists stored "bucket/key" ids in order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for id := range s.objects {
		keys = append(keys, id)
	}
	slices.Sort(keys)
	return keys
}

// Calls returns how many times op was invoked.
func (s *Store) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Mutations returns the total number of put, copy and delete calls.
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[OpPut] + s.calls[OpCopy] + s.calls[OpDelete]
}

// FailTimes makes op on bucket/key fail n times with err (ErrInjected when
// nil) before succeeding. n < 0 fails forever.
func (s *Store) FailTimes(op Op, bucket, key string, n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[faultID(op, bucket, key)] = &fault{remaining: n, err: err}
}

// OnCall registers a hook run before every operation, outside the lock.
func (s *Store) OnCall(fn func(op Op, bucket, key string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = fn
}

// enter counts the call and returns any injected fault.
func (s *Store) enter(op Op, bucket, key string) error {
	s.mu.Lock()
	s.calls[op]++
	hook := s.hook
	var err error
	if f, ok := s.faults[faultID(op, bucket, key)]; ok && f.remaining != 0 {
		if f.remaining > 0 {
			f.remaining--
		}
		err = f.err
	}
	s.mu.Unlock()

	if hook != nil {
		hook(op, bucket, key)
	}
	return err
}

func newStored(data []byte, contentType string) storedObject {
	sum := md5.Sum(data) //nolint:gosec // ETag compatibility only
	return storedObject{
		data:        slices.Clone(data),
		contentType: contentType,
		etag:        `"` + hex.EncodeToString(sum[:]) + `"`,
		modified:    time.Now(),
	}
}

func (o storedObject) info(bucket, key string) objectstore.ObjectInfo {
	return objectstore.ObjectInfo{
		Bucket:       bucket,
		Key:          key,
		Size:         int64(len(o.data)),
		ETag:         o.etag,
		ContentType:  o.contentType,
		LastModified: o.modified,
	}
}

func missing(bucket, key string) error {
	return fmt.Errorf("%w: %s/%s", objectstore.ErrNotFound, bucket, key)
}

// Exists implements objectstore.Client.
func (s *Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.Stat(ctx, bucket, key)
	if objectstore.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// Stat implements objectstore.Client.
func (s *Store) Stat(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return objectstore.ObjectInfo{}, err
	}
	if err := s.enter(OpStat, bucket, key); err != nil {
		return objectstore.ObjectInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectID(bucket, key)]
	if !ok {
		return objectstore.ObjectInfo{}, missing(bucket, key)
	}
	return obj.info(bucket, key), nil
}

// Get implements objectstore.Client.
func (s *Store) Get(ctx context.Context, bucket, key string) (*objectstore.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.enter(OpGet, bucket, key); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectID(bucket, key)]
	if !ok {
		return nil, missing(bucket, key)
	}
	return &objectstore.Object{Data: slices.Clone(obj.data), ContentType: obj.contentType, ETag: obj.etag}, nil
}

// Put implements objectstore.Client.
func (s *Store) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (objectstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return objectstore.ObjectInfo{}, err
	}
	if err := s.enter(OpPut, bucket, key); err != nil {
		return objectstore.ObjectInfo{}, err
	}
	obj := newStored(data, objectstore.ContentTypeFor(key, contentType))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectID(bucket, key)] = obj
	return obj.info(bucket, key), nil
}

// Copy implements objectstore.Client.
func (s *Store) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.enter(OpCopy, dstBucket, dstKey); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectID(srcBucket, srcKey)]
	if !ok {
		return missing(srcBucket, srcKey)
	}
	s.objects[objectID(dstBucket, dstKey)] = newStored(obj.data, obj.contentType)
	return nil
}

// Delete implements objectstore.Client.
func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.enter(OpDelete, bucket, key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, objectID(bucket, key))
	return nil
}

// List implements objectstore.Client.
func (s *Store) List(ctx context.Context, bucket, prefix string) ([]objectstore.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.enter(OpList, bucket, prefix); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []objectstore.ObjectInfo
	bucketPrefix := bucket + "/"
	for id, obj := range s.objects {
		if !strings.HasPrefix(id, bucketPrefix) {
			continue
		}
		key := strings.TrimPrefix(id, bucketPrefix)
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj.info(bucket, key))
		}
	}
	slices.SortFunc(out, func(a, b objectstore.ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

// Fetcher serves Fetch from a URL map, for legacy HTTP links.
type Fetcher struct {
	mu    sync.Mutex
	docs  map[string]*objectstore.Object
	calls int
}

var _ objectstore.Fetcher = (*Fetcher)(nil)

// NewFetcher returns an empty fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{docs: make(map[string]*objectstore.Object)}
}

// Serve registers data under rawURL.
func (f *Fetcher) Serve(rawURL string, data []byte, contentType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[rawURL] = &objectstore.Object{Data: slices.Clone(data), ContentType: contentType}
}

// Calls returns the number of Fetch calls.
func (f *Fetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Fetch implements objectstore.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*objectstore.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	obj, ok := f.docs[rawURL]
	if !ok {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrNotFound, rawURL)
	}
	return &objectstore.Object{Data: slices.Clone(obj.Data), ContentType: obj.ContentType}, nil
}
