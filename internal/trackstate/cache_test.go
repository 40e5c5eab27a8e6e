// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package trackstate

import (
	"testing"

	"github.com/skyarchive/skyarchive/internal/model"
)

func TestCache_PutGetDelete(t *testing.T) {
	c := New()

	if _, ok := c.Get("abc123"); ok {
		t.Fatalf("expected empty cache to have no entry")
	}

	c.Put(&model.StateEntry{Hex: "abc123", LastSeenMs: 1})
	entry, ok := c.Get("abc123")
	if !ok || entry.LastSeenMs != 1 {
		t.Fatalf("expected stored entry, got %+v ok=%v", entry, ok)
	}

	c.Delete("abc123")
	if _, ok := c.Get("abc123"); ok {
		t.Fatalf("expected entry removed after Delete")
	}
}

func TestCache_Len(t *testing.T) {
	c := New()
	c.Put(&model.StateEntry{Hex: "a"})
	c.Put(&model.StateEntry{Hex: "b"})

	if c.Len() != 2 {
		t.Fatalf("expected Len()=2, got %d", c.Len())
	}
}

func TestCache_SeenThisTick(t *testing.T) {
	c := New()
	c.Put(&model.StateEntry{Hex: "a"})
	c.Put(&model.StateEntry{Hex: "b"})
	c.Put(&model.StateEntry{Hex: "c"})

	missing := c.SeenThisTick(map[string]bool{"a": true})
	if len(missing) != 2 {
		t.Fatalf("expected 2 hexes missing from this tick's seen set, got %v", missing)
	}
	for _, hex := range missing {
		if hex == "a" {
			t.Fatalf("hex 'a' was seen this tick and should not be reported missing")
		}
	}
}
