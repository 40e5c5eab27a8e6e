// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package archiverecord persists the per-upload audit rows (§3): one row in
// archive_record for every clear upload, one in encrypted_archive_records
// for every encrypted upload. These are the rows a future read-only
// pagination endpoint would serve; writing them is in scope, reading them
// back is the out-of-scope operator surface (§1).
package archiverecord

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store writes archive_record and encrypted_archive_records rows.
type Store struct {
	conn *sql.DB
}

// New wraps conn for archive-record writes.
func New(conn *sql.DB) *Store {
	return &Store{conn: conn}
}

// Clear is the input for one archive_record row.
type Clear struct {
	TxID          string
	Source        string
	AircraftCount int
	FileSizeKB    float64
	PackageUUID   string
	ICAOAddresses []string
}

// InsertClear records a successful clear-pipeline upload.
func (s *Store) InsertClear(ctx context.Context, rec Clear) error {
	now := time.Now()
	query := fmt.Sprintf(`
		INSERT INTO archive_record
			(tx_id, source, "timestamp", aircraft_count, file_size_kb, format,
			 icao_addresses, package_uuid, created_at)
		VALUES (?, ?, ?, ?, ?, 'parquet', %s, ?, ?)`, icaoArray(rec.ICAOAddresses))
	_, err := s.conn.ExecContext(ctx, query,
		rec.TxID, rec.Source, now, rec.AircraftCount, rec.FileSizeKB,
		rec.PackageUUID, now,
	)
	if err != nil {
		return fmt.Errorf("insert archive_record: %w", err)
	}
	return nil
}

// Encrypted is the input for one encrypted_archive_records row.
type Encrypted struct {
	Clear
	DataHash            string
	EncryptionAlgorithm string
}

// InsertEncrypted records a successful encrypted-pipeline upload.
func (s *Store) InsertEncrypted(ctx context.Context, rec Encrypted) error {
	now := time.Now()
	query := fmt.Sprintf(`
		INSERT INTO encrypted_archive_records
			(tx_id, source, "timestamp", aircraft_count, file_size_kb, format,
			 icao_addresses, package_uuid, created_at, data_hash, encryption_algorithm)
		VALUES (?, ?, ?, ?, ?, 'parquet', %s, ?, ?, ?, ?)`, icaoArray(rec.ICAOAddresses))
	_, err := s.conn.ExecContext(ctx, query,
		rec.TxID, rec.Source, now, rec.AircraftCount, rec.FileSizeKB,
		rec.PackageUUID, now,
		rec.DataHash, rec.EncryptionAlgorithm,
	)
	if err != nil {
		return fmt.Errorf("insert encrypted_archive_records: %w", err)
	}
	return nil
}

// icaoArray renders hexes as a DuckDB list literal, spliced directly into
// the query text rather than bound as a parameter placeholder (the DuckDB
// driver binds VARCHAR[] columns from Go string params as scalar text, not
// as an array literal). Hexes are validated 24-bit ICAO addresses upstream
// (lowercase hex from the feed client's JSON parse), so quoting here is a
// defensive escape rather than a trust boundary.
func icaoArray(hexes []string) string {
	quoted := make([]string, len(hexes))
	for i, h := range hexes {
		quoted[i] = "'" + strings.ReplaceAll(h, "'", "''") + "'"
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
