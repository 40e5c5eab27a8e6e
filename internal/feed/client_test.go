// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestFetch_ParsesFeedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(`{"now":1000,"messages":5,"aircraft":[{"hex":"48436b"}]}`))
	}))
	defer srv.Close()

	c := New()
	defer c.Close()

	resp, err := c.Fetch(context.Background(), "ant1", srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.Now != 1000 || len(resp.Aircraft) != 1 || resp.Aircraft[0].Hex != "48436b" {
		t.Fatalf("unexpected parsed response: %+v", resp)
	}
}

// A 304 reply with a prior cached body is served from cache and counted.
func TestFetch_ConditionalGetServesCacheOn304(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		if n == 1 {
			w.Header().Set("ETag", `"v1"`)
			w.Write([]byte(`{"now":1000,"messages":1,"aircraft":[]}`))
			return
		}
		if r.Header.Get("If-None-Match") != `"v1"` {
			t.Errorf("expected second request to carry If-None-Match, got %q", r.Header.Get("If-None-Match"))
		}
		w.WriteHeader(http.StatusNotModified)
	}))
	defer srv.Close()

	c := New()
	defer c.Close()

	first, err := c.Fetch(context.Background(), "ant1", srv.URL)
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	second, err := c.Fetch(context.Background(), "ant1", srv.URL)
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	if second.Now != first.Now {
		t.Fatalf("expected cached body to be returned on 304, got %+v", second)
	}
	if c.CacheHits() != 1 {
		t.Fatalf("expected CacheHits()=1, got %d", c.CacheHits())
	}
}

func TestFetch_NonOKStatusDropsCacheAndErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New()
	defer c.Close()

	if _, err := c.Fetch(context.Background(), "ant1", srv.URL); err == nil {
		t.Fatalf("expected an error for a 500 response")
	}
}

func TestFetch_MalformedJSONErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := New()
	defer c.Close()

	if _, err := c.Fetch(context.Background(), "ant1", srv.URL); err == nil {
		t.Fatalf("expected a parse error for malformed JSON")
	}
}
