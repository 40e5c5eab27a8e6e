// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package trackstore implements the per-aircraft Track Store (§4.K): a
// bulk upsert of aircraft_tracks rows after each successful upload, and
// the bulk out-of-range status flip the change classifier triggers.
package trackstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/skyarchive/skyarchive/internal/metrics"
	"github.com/skyarchive/skyarchive/internal/model"
)

// CountRefreshInterval bounds how often the cached total-tracks count is
// recomputed with a COUNT(*) (§4.K).
const CountRefreshInterval = 5 * time.Second

// Item is one hex's upsert input.
type Item struct {
	Hex      string
	Aircraft model.Observation
	TxID     string
}

// Store performs the bulk upsert against aircraft_tracks.
type Store struct {
	conn *sql.DB

	cachedCount   int64
	lastCountedAt atomic.Int64
}

// New wraps conn for track-store operations.
func New(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// Upsert performs the bulk upsert described in §4.K. DuckDB's native
// ON CONFLICT lets this run as one statement per row instead of the
// select/partition dance a database without upsert support would need.
// The DO UPDATE branch runs only when the row already exists, so it
// increments upload_count/total_updates from the stored row and takes the
// latest callsign, position and tx id from `excluded.*`.
func (s *Store) Upsert(ctx context.Context, items []Item, now time.Time) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO aircraft_tracks
			(hex, callsign, registration, aircraft_type, first_seen_ms, last_seen_ms,
			 last_uploaded_ms, last_tx_id, upload_count, total_updates, status,
			 last_lat, last_lon, last_alt_baro_ft)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 0, 'active', ?, ?, ?)
		ON CONFLICT (hex) DO UPDATE SET
			callsign = excluded.callsign,
			last_seen_ms = excluded.last_seen_ms,
			last_uploaded_ms = excluded.last_uploaded_ms,
			last_tx_id = excluded.last_tx_id,
			upload_count = aircraft_tracks.upload_count + 1,
			total_updates = aircraft_tracks.total_updates + 1,
			status = 'active',
			last_lat = excluded.last_lat,
			last_lon = excluded.last_lon,
			last_alt_baro_ft = excluded.last_alt_baro_ft
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	nowMs := now.UnixMilli()
	for _, item := range items {
		callsign := ""
		if item.Aircraft.Flight != nil {
			callsign = strings.TrimSpace(*item.Aircraft.Flight)
		}
		var lat, lon, altBaro sql.NullFloat64
		if item.Aircraft.Lat != nil {
			lat = sql.NullFloat64{Float64: *item.Aircraft.Lat, Valid: true}
		}
		if item.Aircraft.Lon != nil {
			lon = sql.NullFloat64{Float64: *item.Aircraft.Lon, Valid: true}
		}
		if item.Aircraft.AltBaro != nil && !item.Aircraft.AltBaro.Ground {
			altBaro = sql.NullFloat64{Float64: item.Aircraft.AltBaro.Value, Valid: true}
		}

		registration := ""
		if item.Aircraft.R != nil {
			registration = *item.Aircraft.R
		}
		aircraftType := ""
		if item.Aircraft.T != nil {
			aircraftType = *item.Aircraft.T
		}

		if _, err := stmt.ExecContext(ctx,
			item.Hex, callsign, registration, aircraftType,
			nowMs, nowMs, nowMs, item.TxID,
			lat, lon, altBaro,
		); err != nil {
			return fmt.Errorf("upsert track %s: %w", item.Hex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert tx: %w", err)
	}
	return nil
}

// MarkOutOfRange bulk-updates the given hexes to status='out_of_range',
// per §4.D step 4.
func (s *Store) MarkOutOfRange(ctx context.Context, hexes []string, now time.Time) error {
	if len(hexes) == 0 {
		return nil
	}

	placeholders := make([]string, len(hexes))
	args := make([]any, 0, len(hexes)+1)
	args = append(args, now.UnixMilli())
	for i, hex := range hexes {
		placeholders[i] = "?"
		args = append(args, hex)
	}

	query := fmt.Sprintf(
		`UPDATE aircraft_tracks SET status = 'out_of_range', last_seen_ms = ? WHERE hex IN (%s)`,
		strings.Join(placeholders, ","),
	)
	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark out of range: %w", err)
	}
	return nil
}

// TotalTracks returns the cached row count, refreshing it with a COUNT(*)
// at most every CountRefreshInterval.
func (s *Store) TotalTracks(ctx context.Context) (int64, error) {
	now := time.Now().UnixMilli()
	last := s.lastCountedAt.Load()
	if now-last < CountRefreshInterval.Milliseconds() {
		return atomic.LoadInt64(&s.cachedCount), nil
	}

	var count int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM aircraft_tracks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count tracks: %w", err)
	}

	atomic.StoreInt64(&s.cachedCount, count)
	s.lastCountedAt.Store(now)
	metrics.TrackStoreRows.Set(float64(count))
	return count, nil
}
