package cmd

import (
	"crypto/md5" //nolint:gosec // ETag of the fake store
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// s3Object is one object held by fakeS3.
type s3Object struct {
	data        []byte
	contentType string
}

// fakeS3 is an in-memory path-style S3 endpoint covering the calls the
// target store makes: HeadObject, GetObject, PutObject, CopyObject,
// DeleteObject and ListObjectsV2.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]s3Object // "bucket/key"
	calls   map[string]int
	server  *httptest.Server
}

func newFakeS3(t *testing.T) *fakeS3 {
	t.Helper()
	f := &fakeS3{
		objects: make(map[string]s3Object),
		calls:   make(map[string]int),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeS3) URL() string { return f.server.URL }

func (f *fakeS3) Seed(bucket, key string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = s3Object{data: data, contentType: "application/octet-stream"}
}

func (f *fakeS3) Data(bucket, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[bucket+"/"+key]
	return obj.data, ok
}

// Calls returns how many requests of the given kind were served
// ("put", "copy", "delete", ...).
func (f *fakeS3) Calls(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[kind]
}

func etag(data []byte) string {
	sum := md5.Sum(data) //nolint:gosec // ETag of the fake store
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (f *fakeS3) serve(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.Trim(r.URL.Path, "/"), "/")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && key == "":
		f.calls["list"]++
		f.list(w, bucket, r.URL.Query().Get("prefix"))
	case r.Method == http.MethodHead:
		f.calls["head"]++
		obj, ok := f.objects[bucket+"/"+key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeObjectHeaders(w, obj)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		f.calls["get"]++
		obj, ok := f.objects[bucket+"/"+key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		writeObjectHeaders(w, obj)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj.data)
	case r.Method == http.MethodPut && r.Header.Get("X-Amz-Copy-Source") != "":
		f.calls["copy"]++
		source, err := url.PathUnescape(strings.TrimPrefix(r.Header.Get("X-Amz-Copy-Source"), "/"))
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "InvalidArgument")
			return
		}
		obj, ok := f.objects[source]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		f.objects[bucket+"/"+key] = obj
		writeXML(w, struct {
			XMLName      xml.Name `xml:"CopyObjectResult"`
			ETag         string   `xml:"ETag"`
			LastModified string   `xml:"LastModified"`
		}{ETag: etag(obj.data), LastModified: time.Now().UTC().Format(time.RFC3339)})
	case r.Method == http.MethodPut:
		f.calls["put"]++
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		f.objects[bucket+"/"+key] = s3Object{data: data, contentType: r.Header.Get("Content-Type")}
		w.Header().Set("ETag", etag(data))
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete:
		f.calls["delete"]++
		delete(f.objects, bucket+"/"+key)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

type listEntry struct {
	Key  string `xml:"Key"`
	Size int64  `xml:"Size"`
	ETag string `xml:"ETag"`
}

func (f *fakeS3) list(w http.ResponseWriter, bucket, prefix string) {
	var entries []listEntry
	for name, obj := range f.objects {
		b, key, _ := strings.Cut(name, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			entries = append(entries, listEntry{Key: key, Size: int64(len(obj.data)), ETag: etag(obj.data)})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	writeXML(w, struct {
		XMLName     xml.Name    `xml:"http://s3.amazonaws.com/doc/2006-03-01/ ListBucketResult"`
		Name        string      `xml:"Name"`
		Prefix      string      `xml:"Prefix"`
		KeyCount    int         `xml:"KeyCount"`
		MaxKeys     int         `xml:"MaxKeys"`
		IsTruncated bool        `xml:"IsTruncated"`
		Contents    []listEntry `xml:"Contents"`
	}{Name: bucket, Prefix: prefix, KeyCount: len(entries), MaxKeys: 1000, Contents: entries})
}

func writeObjectHeaders(w http.ResponseWriter, obj s3Object) {
	w.Header().Set("Content-Length", fmt.Sprint(len(obj.data)))
	w.Header().Set("Content-Type", obj.contentType)
	w.Header().Set("ETag", etag(obj.data))
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

func writeXML(w http.ResponseWriter, v any) {
	body, err := xml.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, xml.Header)
	_, _ = w.Write(body)
}

// newLegacyServer serves files by path. Paths under /forbidden/ answer
// 403 so that a candidate fails without being retried.
func newLegacyServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/forbidden/") {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)
	return server
}
