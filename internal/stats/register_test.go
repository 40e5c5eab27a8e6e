// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package stats

import (
	"testing"
	"time"

	"github.com/skyarchive/skyarchive/internal/model"
)

func TestRecordAttemptSuccessFailure_RoutesByPipeline(t *testing.T) {
	r := New(nil, 1)

	r.RecordAttempt("clear")
	r.RecordAttempt("enc")
	r.RecordSuccess("clear")
	r.RecordFailure("enc")
	r.RecordRetry("clear")

	snap := r.GetStats()
	if snap.ClearAttempted != 1 || snap.EncAttempted != 1 {
		t.Fatalf("expected one attempt recorded per pipeline, got %+v", snap)
	}
	if snap.ClearSucceeded != 1 || snap.EncFailed != 1 {
		t.Fatalf("expected success routed to clear and failure routed to enc, got %+v", snap)
	}
	if snap.ClearRetries != 1 {
		t.Fatalf("expected one clear retry, got %+v", snap)
	}
}

func TestRecordNewUpdatedReappeared_IgnoresZero(t *testing.T) {
	r := New(nil, 1)

	r.RecordNew(0)
	r.RecordNew(3)
	r.RecordUpdated(2)
	r.RecordReappeared(1)

	snap := r.GetStats()
	if snap.TotalNew != 3 || snap.TotalUpdates != 2 || snap.TotalReappeared != 1 {
		t.Fatalf("unexpected classifier counters: %+v", snap)
	}
}

func TestGetStats_CachesWithinWindow(t *testing.T) {
	r := New(nil, 1)
	r.RecordNew(1)

	first := r.GetStats()
	r.totalNew.Add(100) // bypass the public API to mutate state the cache should mask
	second := r.GetStats()

	if second.TotalNew != first.TotalNew {
		t.Fatalf("expected the 500ms snapshot cache to mask the concurrent mutation, got %+v vs %+v", first, second)
	}
}

func TestUpdateTPM_TracksPeak(t *testing.T) {
	r := New(nil, 1)

	for i := 0; i < 5; i++ {
		r.RecordSuccess("clear")
	}

	snap := r.GetStats()
	if snap.PeakTPM < 1 {
		t.Fatalf("expected a positive peak TPM after 5 successes, got %d", snap.PeakTPM)
	}
}

func TestApplyRestoredCounters_SkipsWhenLocalIsNewer(t *testing.T) {
	r := New(nil, 1)
	r.RecordNew(5)

	localUpdatedAt := time.Now()
	restored := model.SystemStats{TotalNew: 999, UpdatedAt: localUpdatedAt.Add(-time.Hour)}

	r.ApplyRestoredCounters(restored, localUpdatedAt)

	if snap := r.GetStats(); snap.TotalNew != 5 {
		t.Fatalf("expected local counters preserved when restored snapshot is older, got %+v", snap)
	}
}

func TestApplyRestoredCounters_OverwritesWhenRestoredIsNewer(t *testing.T) {
	r := New(nil, 1)
	r.RecordNew(5)

	localUpdatedAt := time.Now().Add(-time.Hour)
	restored := model.SystemStats{
		TotalNew:       42,
		ClearSucceeded: 10,
		PeakTPM:        7,
		UpdatedAt:      time.Now(),
	}

	r.ApplyRestoredCounters(restored, localUpdatedAt)

	snap := r.GetStats()
	if snap.TotalNew != 42 || snap.ClearSucceeded != 10 || snap.PeakTPM != 7 {
		t.Fatalf("expected restored counters applied, got %+v", snap)
	}
}

func TestHistory_RecordsSamplesOverTime(t *testing.T) {
	r := New(nil, 1)
	r.RecordSuccess("clear")

	if h := r.History(); len(h) == 0 {
		t.Fatalf("expected at least one history sample after a recorded success")
	}
}
