// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package stats implements the Stats Register (§4.L): live upload/aircraft
// counters, a 12-bucket sliding-window throughput meter, a rolling history,
// and debounced persistence to the system_stats singleton row.
package stats

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skyarchive/skyarchive/internal/cache"
	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/metrics"
	"github.com/skyarchive/skyarchive/internal/model"
)

const (
	tpmWindow       = 60 * time.Second
	tpmBuckets      = 12
	historyLen      = 30
	historyInterval = 3 * time.Second
	debounceDelay   = 5 * time.Second
	getStatsCacheFor = 500 * time.Millisecond
)

// HistoryPoint is one sample of the rolling TPM history.
type HistoryPoint struct {
	At  time.Time
	TPM int64
}

// Register is the singleton counter set backing §3's SystemStats row. All
// counters are atomics so RecordAttempt/Success/Failure/Retry can be called
// from concurrent pipeline goroutines without an external lock.
type Register struct {
	rowID int64
	conn  *sql.DB

	clearAttempted, clearSucceeded, clearFailed, clearRetries atomic.Int64
	encAttempted, encSucceeded, encFailed, encRetries         atomic.Int64
	totalNew, totalUpdates, totalReappeared                   atomic.Int64
	peakTPM                                                   atomic.Int64

	systemStartTime time.Time

	tpm *cache.SlidingWindowCounter

	mu            sync.Mutex
	history       []HistoryPoint
	lastHistoryAt time.Time

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	snapMu       sync.Mutex
	lastSnapshot model.SystemStats
	lastSnapAt   time.Time
}

// New creates a Register backed by the system_stats row identified by rowID,
// with systemStartTime fixed to now (per §4.L, always reset at boot).
func New(conn *sql.DB, rowID int64) *Register {
	return &Register{
		rowID:           rowID,
		conn:            conn,
		systemStartTime: time.Now(),
		tpm:             cache.NewSlidingWindowCounter(tpmWindow, tpmBuckets),
	}
}

// singletonRowID is the fixed id of the one system_stats row this node owns.
const singletonRowID = 1

// EnsureRow returns the singleton system_stats row's id and its last
// updated_at, inserting a fresh zeroed row on first boot. The returned
// updated_at is the zero time for a freshly-inserted row, which always
// compares older than any restored snapshot's timestamp (§4.N).
func EnsureRow(ctx context.Context, conn *sql.DB) (int64, time.Time, error) {
	var updatedAt sql.NullTime
	err := conn.QueryRowContext(ctx, `SELECT updated_at FROM system_stats WHERE id = ?`, singletonRowID).Scan(&updatedAt)
	if err == nil {
		return singletonRowID, updatedAt.Time, nil
	}
	if err != sql.ErrNoRows {
		return 0, time.Time{}, err
	}

	now := time.Now()
	_, err = conn.ExecContext(ctx, `
		INSERT INTO system_stats (id, system_start_time, updated_at) VALUES (?, ?, ?)`,
		singletonRowID, now, time.Time{})
	if err != nil {
		return 0, time.Time{}, err
	}
	return singletonRowID, time.Time{}, nil
}

// RecordAttempt registers the first attempt of an upload on pipeline
// ("clear" or "enc"). Only call this once per batch, on the first try.
// Pipeline emits the corresponding metrics.UploadsTotal increment itself;
// Register only tracks the counters that feed TPM/persistence/GetStats.
func (r *Register) RecordAttempt(pipeline string) {
	r.counter(pipeline, &r.clearAttempted, &r.encAttempted).Add(1)
}

// RecordSuccess registers a terminal successful upload and bumps the TPM
// bucket, per §4.I's executeWithRetry contract.
func (r *Register) RecordSuccess(pipeline string) {
	r.counter(pipeline, &r.clearSucceeded, &r.encSucceeded).Add(1)
	r.updateTPM()
	r.scheduleDebouncedPersist()
}

// RecordFailure registers a terminal failed upload (retries exhausted or a
// permanent error).
func (r *Register) RecordFailure(pipeline string) {
	r.counter(pipeline, &r.clearFailed, &r.encFailed).Add(1)
	r.scheduleDebouncedPersist()
}

// RecordRetry registers one retry attempt.
func (r *Register) RecordRetry(pipeline string) {
	r.counter(pipeline, &r.clearRetries, &r.encRetries).Add(1)
}

func (r *Register) counter(pipeline string, clear, enc *atomic.Int64) *atomic.Int64 {
	if pipeline == "enc" {
		return enc
	}
	return clear
}

// RecordNew, RecordUpdated, and RecordReappeared mirror the classifier's
// per-tick event counters (§4.D).
func (r *Register) RecordNew(n int64) {
	if n == 0 {
		return
	}
	r.totalNew.Add(n)
	metrics.AircraftEventsTotal.WithLabelValues("new").Add(float64(n))
	r.scheduleDebouncedPersist()
}

func (r *Register) RecordUpdated(n int64) {
	if n == 0 {
		return
	}
	r.totalUpdates.Add(n)
	metrics.AircraftEventsTotal.WithLabelValues("updated").Add(float64(n))
	r.scheduleDebouncedPersist()
}

func (r *Register) RecordReappeared(n int64) {
	if n == 0 {
		return
	}
	r.totalReappeared.Add(n)
	metrics.AircraftEventsTotal.WithLabelValues("reappeared").Add(float64(n))
	r.scheduleDebouncedPersist()
}

// updateTPM rotates the sliding window, bumps the current bucket, refreshes
// the peak, and appends a history sample if ≥3s have elapsed since the last.
func (r *Register) updateTPM() {
	r.tpm.IncrementOne()
	current := r.tpm.Count()
	metrics.TPMCurrent.Set(float64(current))

	for {
		peak := r.peakTPM.Load()
		if current <= peak {
			break
		}
		if r.peakTPM.CompareAndSwap(peak, current) {
			metrics.TPMPeak.Set(float64(current))
			break
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if now.Sub(r.lastHistoryAt) >= historyInterval {
		r.history = append(r.history, HistoryPoint{At: now, TPM: current})
		if len(r.history) > historyLen {
			r.history = r.history[len(r.history)-historyLen:]
		}
		r.lastHistoryAt = now
	}
}

// History returns a copy of the rolling TPM history, oldest first.
func (r *Register) History() []HistoryPoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HistoryPoint, len(r.history))
	copy(out, r.history)
	return out
}

// GetStats returns the current counter snapshot, cached for 500ms so
// frequent callers (the broadcast hub, the snapshot backup ticker) don't
// recompute the TPM sum on every call.
func (r *Register) GetStats() model.SystemStats {
	r.snapMu.Lock()
	defer r.snapMu.Unlock()

	if time.Since(r.lastSnapAt) < getStatsCacheFor && r.lastSnapAt.Unix() > 0 {
		return r.lastSnapshot
	}

	snap := model.SystemStats{
		ID:              r.rowID,
		ClearAttempted:  r.clearAttempted.Load(),
		ClearSucceeded:  r.clearSucceeded.Load(),
		ClearFailed:     r.clearFailed.Load(),
		ClearRetries:    r.clearRetries.Load(),
		EncAttempted:    r.encAttempted.Load(),
		EncSucceeded:    r.encSucceeded.Load(),
		EncFailed:       r.encFailed.Load(),
		EncRetries:      r.encRetries.Load(),
		TotalNew:        r.totalNew.Load(),
		TotalUpdates:    r.totalUpdates.Load(),
		TotalReappeared: r.totalReappeared.Load(),
		PeakTPM:         r.peakTPM.Load(),
		SystemStartTime: r.systemStartTime,
		UpdatedAt:       time.Now(),
	}
	r.lastSnapshot = snap
	r.lastSnapAt = time.Now()
	return snap
}

// scheduleDebouncedPersist (re)arms a 5s timer that writes the full counter
// set in one UPDATE, per §4.L's persistence rule.
func (r *Register) scheduleDebouncedPersist() {
	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()

	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
	}
	r.debounceTimer = time.AfterFunc(debounceDelay, func() {
		if err := r.persist(context.Background()); err != nil {
			logging.Warn().Err(err).Msg("stats: debounced persist failed")
		}
	})
}

func (r *Register) persist(ctx context.Context) error {
	snap := r.GetStats()
	_, err := r.conn.ExecContext(ctx, `
		UPDATE system_stats SET
			clear_attempted = ?, clear_succeeded = ?, clear_failed = ?, clear_retries = ?,
			enc_attempted = ?, enc_succeeded = ?, enc_failed = ?, enc_retries = ?,
			total_new = ?, total_updates = ?, total_reappeared = ?,
			peak_tpm = ?, updated_at = ?
		WHERE id = ?`,
		snap.ClearAttempted, snap.ClearSucceeded, snap.ClearFailed, snap.ClearRetries,
		snap.EncAttempted, snap.EncSucceeded, snap.EncFailed, snap.EncRetries,
		snap.TotalNew, snap.TotalUpdates, snap.TotalReappeared,
		snap.PeakTPM, time.Now(), snap.ID,
	)
	return err
}

// ApplyRestoredCounters reconciles a snapshot read back from the archive
// network at boot (§4.N). If the restored snapshot is newer than the local
// row's updated_at, every counter except systemStartTime is overwritten;
// otherwise the local counters are left untouched. systemStartTime is never
// taken from the snapshot — it is always "now" at boot.
func (r *Register) ApplyRestoredCounters(restored model.SystemStats, localUpdatedAt time.Time) {
	if !restored.UpdatedAt.After(localUpdatedAt) {
		logging.Info().Msg("stats: local counters are current, skipping restore reconciliation")
		return
	}

	r.clearAttempted.Store(restored.ClearAttempted)
	r.clearSucceeded.Store(restored.ClearSucceeded)
	r.clearFailed.Store(restored.ClearFailed)
	r.clearRetries.Store(restored.ClearRetries)
	r.encAttempted.Store(restored.EncAttempted)
	r.encSucceeded.Store(restored.EncSucceeded)
	r.encFailed.Store(restored.EncFailed)
	r.encRetries.Store(restored.EncRetries)
	r.totalNew.Store(restored.TotalNew)
	r.totalUpdates.Store(restored.TotalUpdates)
	r.totalReappeared.Store(restored.TotalReappeared)
	r.peakTPM.Store(restored.PeakTPM)
	metrics.TPMPeak.Set(float64(restored.PeakTPM))

	logging.Info().
		Int64("clear_succeeded", restored.ClearSucceeded).
		Int64("enc_succeeded", restored.EncSucceeded).
		Msg("stats: restored counters from snapshot")

	r.scheduleDebouncedPersist()
}
