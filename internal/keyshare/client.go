// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package keyshare ships per-minute encryption keys to the external
// key-share service (§4.H). Failures are logged and never propagated -
// the upload pipeline treats this as a non-critical peripheral (§7).
package keyshare

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/skyarchive/skyarchive/internal/cache"
	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/metrics"
)

// dedupCapacity keeps at least the last 5 key UUIDs, per §4.H; the wider
// default gives comfortable headroom for bursts within a minute.
const dedupCapacity = 256

// dedupTTL bounds how long a keyUuid is remembered as "already sent".
const dedupTTL = 10 * time.Minute

const requestTimeout = 5 * time.Second

// Client posts new per-minute keys to the share-holding service.
type Client struct {
	baseURL string
	http    *http.Client
	sent    *cache.LRUCache

	// savedOptimistic counts every successful POST as a saved key, per the
	// spec's open question #2: bumped optimistically, not on confirmed
	// downstream secret-sharing success. Both counters are touched
	// concurrently by every pipeline worker goroutine, hence atomics.
	savedOptimistic atomic.Int64
	shareErrors     atomic.Int64
}

// New creates a key-share client targeting baseURL (the service's origin,
// e.g. "http://keyshare:8090").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: requestTimeout},
		sent:    cache.NewLRUCache(dedupCapacity, dedupTTL),
	}
}

type storeKeyRequest struct {
	PackageUUID   string `json:"packageUuid"`
	EncryptionKey string `json:"encryptionKey"`
}

// SendOptimistic posts keyUuid/rawKey to /store-key, skipping the request
// entirely if keyUuid was already sent recently. It never returns an error
// to the caller; all failures are logged.
func (c *Client) SendOptimistic(ctx context.Context, keyUUID string, rawKey [32]byte) {
	if c.sent.IsDuplicate(keyUUID) {
		return
	}

	body, err := json.Marshal(storeKeyRequest{
		PackageUUID:   keyUUID,
		EncryptionKey: hex.EncodeToString(rawKey[:]),
	})
	if err != nil {
		logging.Warn().Err(err).Msg("key-share: failed to marshal store-key request")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/store-key", bytes.NewReader(body))
	if err != nil {
		logging.Warn().Err(err).Msg("key-share: failed to build request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.shareErrors.Add(1)
		metrics.KeyShareErrorsTotal.Inc()
		logging.Warn().Err(err).Str("key_uuid", keyUUID).Msg("key-share: store-key request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.shareErrors.Add(1)
		metrics.KeyShareErrorsTotal.Inc()
		logging.Warn().Int("status", resp.StatusCode).Str("key_uuid", keyUUID).Msg("key-share: store-key rejected")
		return
	}

	c.savedOptimistic.Add(1)
	metrics.KeyShareSavedTotal.Inc()
	c.sent.Add(keyUUID, time.Now())
}

// SavedOptimistic returns the optimistic saved-key counter.
func (c *Client) SavedOptimistic() int64 { return c.savedOptimistic.Load() }

// ShareErrors returns the count of failed store-key attempts, exposed as a
// separate observable from the optimistic success counter per §9.
func (c *Client) ShareErrors() int64 { return c.shareErrors.Load() }

// Health checks the key-share service's readiness.
func (c *Client) Health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return "", fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode health response: %w", err)
	}
	return payload.Status, nil
}
