// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package classify implements the per-poll Change Classifier (§4.D): it
// diffs the feed's observations against the State Cache and emits
// NEW/UPDATED/REAPPEARED events plus a list of hexes that fell out of
// range this tick.
package classify

import (
	"github.com/skyarchive/skyarchive/internal/fingerprint"
	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/model"
	"github.com/skyarchive/skyarchive/internal/trackstate"
)

// Counters accumulates the per-kind totals for one classification pass.
type Counters struct {
	TotalNew        int64
	TotalUpdates    int64
	TotalReappeared int64
}

// Result is the outcome of one classification pass.
type Result struct {
	Events        []model.ChangeEvent
	OutOfRangeHex []string
	Counters      Counters
}

// Run classifies observations against cache as of nowMs, mutating cache
// in place per §4.D's lifecycle rules. snapshotTotalMessages is the
// snapshot-level message count (the sum of each polled feed's top-level
// FeedResponse.Messages for this tick), carried onto every emitted event
// so the Keys group in §4.F gets the snapshot total rather than a
// per-aircraft one.
func Run(observations []model.Observation, cache *trackstate.Cache, nowMs int64, snapshotSeconds int64, snapshotTotalMessages int64) Result {
	var result Result
	seen := make(map[string]bool, len(observations))

	for _, obs := range observations {
		if obs.Hex == "" {
			logging.Warn().Msg("dropping observation with empty hex")
			continue
		}
		if seen[obs.Hex] {
			logging.Warn().Str("hex", obs.Hex).Msg("duplicate hex in feed response, skipping")
			continue
		}
		seen[obs.Hex] = true

		entry, exists := cache.Get(obs.Hex)
		hash := fingerprint.Compute(obs)

		switch {
		case !exists:
			cache.Put(&model.StateEntry{
				Hex:             obs.Hex,
				LastHash:        hash,
				LastSeenMs:      nowMs,
				LastObservation: obs,
			})
			result.Events = append(result.Events, model.ChangeEvent{
				Kind:                  model.ChangeNew,
				Observation:           obs,
				SnapshotSeconds:       snapshotSeconds,
				SnapshotTotalMessages: snapshotTotalMessages,
			})
			result.Counters.TotalNew++

		case nowMs-entry.LastSeenMs > trackstate.ReappearThresholdMs:
			entry.LastHash = hash
			entry.LastSeenMs = nowMs
			entry.LastObservation = obs
			result.Events = append(result.Events, model.ChangeEvent{
				Kind:                  model.ChangeReappeared,
				Observation:           obs,
				SnapshotSeconds:       snapshotSeconds,
				SnapshotTotalMessages: snapshotTotalMessages,
			})
			result.Counters.TotalReappeared++

		case hash != entry.LastHash:
			entry.LastHash = hash
			entry.LastSeenMs = nowMs
			entry.LastObservation = obs
			result.Events = append(result.Events, model.ChangeEvent{
				Kind:                  model.ChangeUpdated,
				Observation:           obs,
				SnapshotSeconds:       snapshotSeconds,
				SnapshotTotalMessages: snapshotTotalMessages,
			})
			result.Counters.TotalUpdates++

		default:
			entry.LastSeenMs = nowMs
		}
	}

	for _, hex := range cache.SeenThisTick(seen) {
		entry, _ := cache.Get(hex)
		if nowMs-entry.LastSeenMs > trackstate.ReappearThresholdMs {
			cache.Delete(hex)
			result.OutOfRangeHex = append(result.OutOfRangeHex, hex)
		}
	}

	return result
}
