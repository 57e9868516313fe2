package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/snd-ksa/docmigrate/internal/httpclient"
	"github.com/snd-ksa/docmigrate/internal/logger"
)

const (
	legacyObjectPath = "/storage/v1/object"
	legacyListLimit  = 1000
	errorBodyLimit   = 512
)

// LegacyStoreConfig configures access to the legacy object store REST API.
type LegacyStoreConfig struct {
	BaseURL    string // scheme://host of the legacy store
	ServiceKey string // service role key, sent as apikey and bearer token
}

// LegacyStoreClient implements Client against the legacy store's
// /storage/v1/object REST API.
type LegacyStoreClient struct {
	baseURL    string
	serviceKey string
	http       *httpclient.Client
	limiter    *rate.Limiter
	log        logger.Logger
}

var _ Client = (*LegacyStoreClient)(nil)

// NewLegacyStoreClient creates a client. limiter may be nil for no limit.
func NewLegacyStoreClient(cfg LegacyStoreConfig, client *httpclient.Client, limiter *rate.Limiter) (*LegacyStoreClient, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("invalid legacy store base URL %q", cfg.BaseURL)
	}
	if client == nil {
		client = httpclient.New(nil)
	}

	return &LegacyStoreClient{
		baseURL:    base,
		serviceKey: cfg.ServiceKey,
		http:       client,
		limiter:    limiter,
		log:        GetLogger().Module("legacy"),
	}, nil
}

// ObjectURL returns the authenticated REST URL of bucket/key.
func (c *LegacyStoreClient) ObjectURL(bucket, key string) string {
	return c.baseURL + legacyObjectPath + "/" + url.PathEscape(bucket) + "/" + escapeKey(key)
}

func (c *LegacyStoreClient) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.serviceKey != "" {
		req.Header.Set("apikey", c.serviceKey)
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	}
	return req, nil
}

func (c *LegacyStoreClient) do(ctx context.Context, op, method, target string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}

	c.log.Trace("legacy store request",
		logger.String("op", op),
		logger.Int("status", resp.StatusCode),
		logger.Duration("elapsed", time.Since(start)))

	return resp, nil
}

// Exists reports whether bucket/key is present.
func (c *LegacyStoreClient) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := c.Stat(ctx, bucket, key)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Stat issues a HEAD request for the object.
func (c *LegacyStoreClient) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	target := c.ObjectURL(bucket, key)
	resp, err := c.do(ctx, "stat", http.MethodHead, target, nil, "")
	if err != nil {
		return ObjectInfo{}, storageError(err, "stat", bucket, key)
	}
	defer drainAndClose(resp)

	if err := checkResponse(resp, "stat", target); err != nil {
		if IsNotFound(err) {
			return ObjectInfo{}, notFound(bucket, key)
		}
		return ObjectInfo{}, storageError(err, "stat", bucket, key)
	}

	info := ObjectInfo{
		Bucket:      bucket,
		Key:         key,
		Size:        resp.ContentLength,
		ETag:        resp.Header.Get("ETag"),
		ContentType: resp.Header.Get("Content-Type"),
	}
	if lm, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		info.LastModified = lm
	}
	return info, nil
}

// Get downloads the object.
func (c *LegacyStoreClient) Get(ctx context.Context, bucket, key string) (*Object, error) {
	target := c.ObjectURL(bucket, key)
	resp, err := c.do(ctx, "get", http.MethodGet, target, nil, "")
	if err != nil {
		return nil, storageError(err, "get", bucket, key)
	}
	defer drainAndClose(resp)

	if err := checkResponse(resp, "get", target); err != nil {
		if IsNotFound(err) {
			return nil, notFound(bucket, key)
		}
		return nil, storageError(err, "get", bucket, key)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, storageError(err, "read", bucket, key)
	}

	return &Object{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
	}, nil
}

// Put uploads with upsert semantics.
func (c *LegacyStoreClient) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (ObjectInfo, error) {
	contentType = ContentTypeFor(key, contentType)
	target := c.ObjectURL(bucket, key)

	req, err := c.newRequest(ctx, http.MethodPost, target, bytes.NewReader(data))
	if err != nil {
		return ObjectInfo{}, storageError(err, "put", bucket, key)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return ObjectInfo{}, storageError(err, "put", bucket, key)
	}
	defer drainAndClose(resp)

	if err := checkResponse(resp, "put", target); err != nil {
		return ObjectInfo{}, storageError(err, "put", bucket, key)
	}

	return ObjectInfo{
		Bucket:      bucket,
		Key:         key,
		Size:        int64(len(data)),
		ContentType: contentType,
	}, nil
}

type legacyCopyRequest struct {
	BucketID       string `json:"bucketId"`
	SourceKey      string `json:"sourceKey"`
	DestinationKey string `json:"destinationKey"`
}

// Copy uses the server-side copy endpoint within a bucket and falls back to
// download and upload across buckets.
func (c *LegacyStoreClient) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	if srcBucket != dstBucket {
		obj, err := c.Get(ctx, srcBucket, srcKey)
		if err != nil {
			return err
		}
		_, err = c.Put(ctx, dstBucket, dstKey, obj.Data, obj.ContentType)
		return err
	}

	payload, err := json.Marshal(legacyCopyRequest{BucketID: srcBucket, SourceKey: srcKey, DestinationKey: dstKey})
	if err != nil {
		return err
	}

	target := c.baseURL + legacyObjectPath + "/copy"
	resp, err := c.do(ctx, "copy", http.MethodPost, target, bytes.NewReader(payload), "application/json")
	if err != nil {
		return storageError(err, "copy", dstBucket, dstKey)
	}
	defer drainAndClose(resp)

	if err := checkResponse(resp, "copy", target); err != nil {
		if IsNotFound(err) {
			return notFound(srcBucket, srcKey)
		}
		return storageError(err, "copy", dstBucket, dstKey)
	}
	return nil
}

// Delete removes the object; a missing object is not an error.
func (c *LegacyStoreClient) Delete(ctx context.Context, bucket, key string) error {
	target := c.ObjectURL(bucket, key)
	resp, err := c.do(ctx, "delete", http.MethodDelete, target, nil, "")
	if err != nil {
		return storageError(err, "delete", bucket, key)
	}
	defer drainAndClose(resp)

	if err := checkResponse(resp, "delete", target); err != nil && !IsNotFound(err) {
		return storageError(err, "delete", bucket, key)
	}
	return nil
}

type legacyListRequest struct {
	Prefix string            `json:"prefix"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
	SortBy map[string]string `json:"sortBy"`
}

type legacyListEntry struct {
	Name      string  `json:"name"`
	ID        *string `json:"id"`
	UpdatedAt string  `json:"updated_at"`
	Metadata  *struct {
		Size     int64  `json:"size"`
		Mimetype string `json:"mimetype"`
		ETag     string `json:"eTag"`
	} `json:"metadata"`
}

// List walks the folder listing API recursively. The API lists one folder
// level at a time, so prefix is split into a folder and a name prefix.
func (c *LegacyStoreClient) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	folder, namePrefix := "", prefix
	if idx := strings.LastIndex(prefix, "/"); idx >= 0 {
		folder, namePrefix = prefix[:idx], prefix[idx+1:]
	}

	var objects []ObjectInfo
	if err := c.listFolder(ctx, bucket, folder, namePrefix, &objects); err != nil {
		return nil, err
	}

	slices.SortFunc(objects, func(a, b ObjectInfo) int { return strings.Compare(a.Key, b.Key) })
	return objects, nil
}

func (c *LegacyStoreClient) listFolder(ctx context.Context, bucket, folder, namePrefix string, out *[]ObjectInfo) error {
	target := c.baseURL + legacyObjectPath + "/list/" + url.PathEscape(bucket)

	for offset := 0; ; offset += legacyListLimit {
		payload, err := json.Marshal(legacyListRequest{
			Prefix: folder,
			Limit:  legacyListLimit,
			Offset: offset,
			SortBy: map[string]string{"column": "name", "order": "asc"},
		})
		if err != nil {
			return err
		}

		entries, err := c.listPage(ctx, target, payload)
		if err != nil {
			return storageError(err, "list", bucket, folder)
		}

		for _, e := range entries {
			if !strings.HasPrefix(e.Name, namePrefix) {
				continue
			}
			key := e.Name
			if folder != "" {
				key = folder + "/" + e.Name
			}
			if e.ID == nil {
				if err := c.listFolder(ctx, bucket, key, "", out); err != nil {
					return err
				}
				continue
			}
			info := ObjectInfo{Bucket: bucket, Key: key}
			if e.Metadata != nil {
				info.Size = e.Metadata.Size
				info.ContentType = e.Metadata.Mimetype
				info.ETag = e.Metadata.ETag
			}
			if ts, err := time.Parse(time.RFC3339, e.UpdatedAt); err == nil {
				info.LastModified = ts
			}
			*out = append(*out, info)
		}

		if len(entries) < legacyListLimit {
			return nil
		}
	}
}

func (c *LegacyStoreClient) listPage(ctx context.Context, target string, payload []byte) ([]legacyListEntry, error) {
	resp, err := c.do(ctx, "list", http.MethodPost, target, bytes.NewReader(payload), "application/json")
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp)

	if err := checkResponse(resp, "list", target); err != nil {
		return nil, err
	}

	var entries []legacyListEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	return entries, nil
}

// checkResponse converts non-2xx responses to errors. The legacy store
// sometimes reports a missing object as 400 with a not_found body.
func checkResponse(resp *http.Response, op, target string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	msg := strings.TrimSpace(string(body))

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone ||
		(resp.StatusCode == http.StatusBadRequest && isNotFoundBody(msg)) {
		return fmt.Errorf("%w: %s", ErrNotFound, target)
	}

	return &StatusError{Op: op, URL: target, StatusCode: resp.StatusCode, Body: msg}
}

func isNotFoundBody(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "not_found") ||
		strings.Contains(lower, "not found") ||
		strings.Contains(lower, `"statuscode":"`+strconv.Itoa(http.StatusNotFound)+`"`)
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
	_ = resp.Body.Close()
}

// escapeKey escapes each path segment of key
func escapeKey(key string) string {
	segments := strings.Split(strings.TrimLeft(path.Clean("/"+key), "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
