// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package trackstate holds the in-memory, orchestrator-owned map of
// last-observed state per aircraft (§4.C).
package trackstate

import "github.com/skyarchive/skyarchive/internal/model"

// ReappearThresholdMs is the dwell time after which a returning hex is
// classified REAPPEARED rather than UPDATED.
const ReappearThresholdMs = 5 * 60 * 1000

// Cache is a plain map of hex to StateEntry.
//
// Precondition: Cache is touched only from the orchestrator's single poll
// goroutine. No mutex guards it - if that invariant is ever broken (e.g.
// a second goroutine reads Entries for a debug endpoint), callers must add
// their own synchronization; this type intentionally does not.
type Cache struct {
	entries map[string]*model.StateEntry
}

// New creates an empty state cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*model.StateEntry)}
}

// Get returns the entry for hex, if any.
func (c *Cache) Get(hex string) (*model.StateEntry, bool) {
	e, ok := c.entries[hex]
	return e, ok
}

// Put inserts or replaces the entry for hex.
func (c *Cache) Put(entry *model.StateEntry) {
	c.entries[entry.Hex] = entry
}

// Delete removes the entry for hex.
func (c *Cache) Delete(hex string) {
	delete(c.entries, hex)
}

// Len returns the number of tracked hexes.
func (c *Cache) Len() int {
	return len(c.entries)
}

// SeenThisTick returns the hexes present in the cache that are NOT in the
// supplied set, used by the classifier to find candidates for eviction.
func (c *Cache) SeenThisTick(seen map[string]bool) []string {
	var missing []string
	for hex := range c.entries {
		if !seen[hex] {
			missing = append(missing, hex)
		}
	}
	return missing
}
