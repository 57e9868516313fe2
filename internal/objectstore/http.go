package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"golang.org/x/time/rate"

	"github.com/snd-ksa/docmigrate/internal/errors"
	"github.com/snd-ksa/docmigrate/internal/httpclient"
	"github.com/snd-ksa/docmigrate/internal/logger"
)

// HTTPFetcher downloads documents referenced by absolute http(s) URLs.
type HTTPFetcher struct {
	http    *httpclient.Client
	limiter *rate.Limiter
	log     logger.Logger
}

var _ Fetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher creates a fetcher. limiter may be nil for no limit.
func NewHTTPFetcher(client *httpclient.Client, limiter *rate.Limiter) *HTTPFetcher {
	if client == nil {
		client = httpclient.New(nil)
	}
	return &HTTPFetcher{
		http:    client,
		limiter: limiter,
		log:     GetLogger().Module("http"),
	}
}

// Fetch downloads rawURL. 404 and 410 map to ErrNotFound.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Object, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Newf("invalid document URL %q", rawURL).
			Component("objectstore").
			Category(errors.CategoryValidation).
			Build()
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	resp, err := f.http.Get(ctx, rawURL)
	if err != nil {
		return nil, errors.New(fmt.Errorf("fetch %s: %w", u.Redacted(), err)).
			Component("objectstore").
			Category(errors.CategoryNetwork).
			Context("host", u.Host).
			Build()
	}
	defer drainAndClose(resp)

	if err := checkResponse(resp, "fetch", u.Redacted()); err != nil {
		if IsNotFound(err) {
			return nil, errors.New(err).
				Component("objectstore").
				Category(errors.CategoryNotFound).
				Context("host", u.Host).
				Build()
		}
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", u.Redacted(), err)
	}

	f.log.Debug("document fetched",
		logger.String("host", u.Host),
		logger.Int("bytes", len(data)),
		logger.Int("status", resp.StatusCode))

	return &Object{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		ETag:        resp.Header.Get("ETag"),
	}, nil
}
