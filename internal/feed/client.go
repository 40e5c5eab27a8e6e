// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package feed implements the conditional-GET feed client (§4.A): one
// shared keep-alive connection per antenna, ETag/Last-Modified caching,
// and single-flight collapsing of concurrent callers.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/skyarchive/skyarchive/internal/model"
)

const requestTimeout = 3 * time.Second

// cacheEntry holds the last successful response for one antenna.
type cacheEntry struct {
	etag         string
	lastModified string
	parsed       model.FeedResponse
}

// Client fetches the ingest JSON feed for any number of antennas over a
// single shared HTTP connection pool, per §4.A.
type Client struct {
	http *http.Client
	sf   singleflight.Group

	mu    sync.Mutex
	cache map[string]*cacheEntry

	cacheHits atomic.Int64
}

// New creates a feed client. The transport is configured for a single
// keep-alive connection per antenna host (LIFO idle-conn reuse is
// net/http's default behavior), matching the "single shared connection
// pool" requirement.
func New() *Client {
	transport := &http.Transport{
		MaxIdleConnsPerHost: 1,
		MaxConnsPerHost:     1,
		DisableKeepAlives:   false,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http:  &http.Client{Transport: transport},
		cache: make(map[string]*cacheEntry),
	}
}

// CacheHits returns the number of 304 responses served from cache.
func (c *Client) CacheHits() int64 { return c.cacheHits.Load() }

// Fetch retrieves the current feed snapshot for antennaID at url.
// Concurrent callers for the same antennaID collapse onto one in-flight
// request and all receive its result. On a network/timeout/parse error the
// antenna's conditional-GET cache is dropped and the error is surfaced -
// the orchestrator simply tries again next tick, per §4.A.
func (c *Client) Fetch(ctx context.Context, antennaID, url string) (*model.FeedResponse, error) {
	v, err, _ := c.sf.Do(antennaID, func() (any, error) {
		return c.doFetch(ctx, antennaID, url)
	})
	if err != nil {
		return nil, err
	}
	resp := v.(model.FeedResponse)
	return &resp, nil
}

func (c *Client) doFetch(ctx context.Context, antennaID, url string) (model.FeedResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		c.dropCache(antennaID)
		return model.FeedResponse{}, fmt.Errorf("build feed request: %w", err)
	}

	if prior := c.getCache(antennaID); prior != nil {
		if prior.etag != "" {
			req.Header.Set("If-None-Match", prior.etag)
		}
		if prior.lastModified != "" {
			req.Header.Set("If-Modified-Since", prior.lastModified)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.dropCache(antennaID)
		return model.FeedResponse{}, fmt.Errorf("fetch feed %s: %w", antennaID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		prior := c.getCache(antennaID)
		if prior == nil {
			c.dropCache(antennaID)
			return model.FeedResponse{}, fmt.Errorf("fetch feed %s: got 304 with no cached body", antennaID)
		}
		c.cacheHits.Add(1)
		return prior.parsed, nil
	}

	if resp.StatusCode != http.StatusOK {
		c.dropCache(antennaID)
		return model.FeedResponse{}, fmt.Errorf("fetch feed %s: unexpected status %d", antennaID, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.dropCache(antennaID)
		return model.FeedResponse{}, fmt.Errorf("read feed %s: %w", antennaID, err)
	}

	var parsed model.FeedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		c.dropCache(antennaID)
		return model.FeedResponse{}, fmt.Errorf("parse feed %s: %w", antennaID, err)
	}

	c.setCache(antennaID, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), parsed)
	return parsed, nil
}

func (c *Client) getCache(antennaID string) *cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache[antennaID]
}

func (c *Client) setCache(antennaID, etag, lastModified string, parsed model.FeedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[antennaID] = &cacheEntry{etag: etag, lastModified: lastModified, parsed: parsed}
}

func (c *Client) dropCache(antennaID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, antennaID)
}

// Close idles out the shared keep-alive connection pool, per §5's
// cancellation contract (stopTracking closes the keep-alive pool).
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
