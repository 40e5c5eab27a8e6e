// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package archive is the client for the content-addressed archive-network
// gateway: it uploads tagged payloads and resolves transaction ids (§4.J),
// and runs the GraphQL restore query (§4.N).
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"

	"github.com/skyarchive/skyarchive/internal/metrics"
)

const uploadTimeout = 30 * time.Second

// ValidationError marks a gateway rejection that is fatal for the batch
// (bad tag, oversized tag set) rather than retryable.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Tag is a single archive-network tag.
type Tag struct {
	Name  string
	Value string
}

// Client wraps the archive gateway's HTTP upload and GraphQL endpoints
// behind a circuit breaker, so a gateway outage fails fast instead of
// saturating every upload pipeline slot in per-batch retries.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// New builds an archive client targeting baseURL.
func New(baseURL string) *Client {
	settings := gobreaker.Settings{
		Name:        "archive-gateway",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.ArchiveBreakerState.WithLabelValues(name).Set(float64(to))
		},
	}

	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: uploadTimeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
	}
}

// Upload submits payload with the given tags and returns the gateway's
// transaction id verbatim. Network errors and 5xx responses are retryable
// (the pipeline's backoff engine handles that); a 4xx other than 429 is
// wrapped in ValidationError and is fatal for the batch.
func (c *Client) Upload(ctx context.Context, payload []byte, tags []Tag) (string, error) {
	sanitized := sanitizeTags(tags)

	result, err := c.breaker.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build upload request: %w", err)
		}
		for _, t := range sanitized {
			req.Header.Add("X-Tag-"+t.Name, t.Value)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("upload request: %w", err)
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)

		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, &ValidationError{msg: fmt.Sprintf("gateway rejected upload: %d %s", resp.StatusCode, string(body))}
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("gateway upload failed: %d %s", resp.StatusCode, string(body))
		}

		var decoded struct {
			TxID string `json:"txId"`
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			return nil, fmt.Errorf("decode upload response: %w", err)
		}
		return []byte(decoded.TxID), nil
	})
	if err != nil {
		return "", err
	}
	return string(result), nil
}

// sanitizeTags strips C0/C1 control characters from tag values and
// replaces an empty result with "unknown", per §6.
func sanitizeTags(tags []Tag) []Tag {
	out := make([]Tag, len(tags))
	for i, t := range tags {
		var b strings.Builder
		for _, r := range t.Value {
			if r < 0x20 || (r >= 0x7f && r <= 0x9f) {
				continue
			}
			b.WriteRune(r)
		}
		v := b.String()
		if v == "" {
			v = "unknown"
		}
		out[i] = Tag{Name: t.Name, Value: v}
	}
	return out
}

// restoreQueryTemplate is the GraphQL query body for the most recent
// snapshot owned by a wallet, per §6; %s is replaced by the wallet address.
const restoreQueryTemplate = `{"query":"query { transactions(owners:[\"%s\"], tags:[{name:\"App-Name\",values:[\"DeradNetworkBackup\"]},{name:\"Type\",values:[\"stats-backup\"]}], first:1, sort:HEIGHT_DESC) { edges { node { id } } } }"}`

// RestoreResult is the gateway's answer to the restore query.
type RestoreResult struct {
	TxID  string
	Found bool
}

// QueryLatestSnapshot runs the GraphQL restore query against the gateway
// and downloads the matching transaction's payload if one exists.
func (c *Client) QueryLatestSnapshot(ctx context.Context, wallet string) (RestoreResult, []byte, error) {
	query := fmt.Sprintf(restoreQueryTemplate, wallet)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/graphql", strings.NewReader(query))
	if err != nil {
		return RestoreResult{}, nil, fmt.Errorf("build graphql request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return RestoreResult{}, nil, fmt.Errorf("graphql request: %w", err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Data struct {
			Transactions struct {
				Edges []struct {
					Node struct {
						ID string `json:"id"`
					} `json:"node"`
				} `json:"edges"`
			} `json:"transactions"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return RestoreResult{}, nil, fmt.Errorf("decode graphql response: %w", err)
	}

	if len(decoded.Data.Transactions.Edges) == 0 {
		return RestoreResult{Found: false}, nil, nil
	}
	txID := decoded.Data.Transactions.Edges[0].Node.ID

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tx/"+txID+"/data", nil)
	if err != nil {
		return RestoreResult{}, nil, fmt.Errorf("build download request: %w", err)
	}
	dlResp, err := c.http.Do(dlReq)
	if err != nil {
		return RestoreResult{}, nil, fmt.Errorf("download snapshot: %w", err)
	}
	defer dlResp.Body.Close()

	payload, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return RestoreResult{}, nil, fmt.Errorf("read snapshot payload: %w", err)
	}

	return RestoreResult{TxID: txID, Found: true}, payload, nil
}
