// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package db owns the local DuckDB database: archive_record,
// encrypted_archive_records, aircraft_tracks, and the singleton
// system_stats row (§3, §6).
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/skyarchive/skyarchive/internal/logging"
)

// DB wraps the DuckDB connection and exposes the tables each component
// writes to directly.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the DuckDB file at path and applies
// the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb at %s: %w", path, err)
	}
	d := &DB{conn: conn}
	if err := d.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return d, nil
}

// Conn exposes the raw *sql.DB for components that need direct access
// (track store, stats register, snapshot).
func (d *DB) Conn() *sql.DB { return d.conn }

// Close releases the database handle.
func (d *DB) Close() error { return d.conn.Close() }

func (d *DB) migrate() error {
	stmts := []string{
		`CREATE SEQUENCE IF NOT EXISTS archive_record_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS archive_record (
			id BIGINT PRIMARY KEY DEFAULT nextval('archive_record_id_seq'),
			tx_id VARCHAR,
			source VARCHAR,
			"timestamp" TIMESTAMP,
			aircraft_count INTEGER,
			file_size_kb DOUBLE,
			format VARCHAR,
			icao_addresses VARCHAR[],
			package_uuid VARCHAR,
			created_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_record_created_at ON archive_record(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_record_pagination ON archive_record(id DESC, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_archive_record_package_uuid ON archive_record(package_uuid)`,

		`CREATE SEQUENCE IF NOT EXISTS encrypted_archive_records_id_seq START 1`,
		`CREATE TABLE IF NOT EXISTS encrypted_archive_records (
			id BIGINT PRIMARY KEY DEFAULT nextval('encrypted_archive_records_id_seq'),
			tx_id VARCHAR,
			source VARCHAR,
			"timestamp" TIMESTAMP,
			aircraft_count INTEGER,
			file_size_kb DOUBLE,
			format VARCHAR,
			icao_addresses VARCHAR[],
			package_uuid VARCHAR,
			created_at TIMESTAMP,
			data_hash VARCHAR,
			encryption_algorithm VARCHAR
		)`,
		`CREATE INDEX IF NOT EXISTS idx_encrypted_archive_records_created_at ON encrypted_archive_records(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_encrypted_archive_records_pagination ON encrypted_archive_records(id DESC, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_encrypted_archive_records_package_uuid ON encrypted_archive_records(package_uuid)`,

		`CREATE TABLE IF NOT EXISTS aircraft_tracks (
			hex VARCHAR PRIMARY KEY,
			callsign VARCHAR,
			registration VARCHAR,
			aircraft_type VARCHAR,
			first_seen_ms BIGINT,
			last_seen_ms BIGINT,
			last_uploaded_ms BIGINT,
			last_tx_id VARCHAR,
			upload_count BIGINT DEFAULT 0,
			total_updates BIGINT DEFAULT 0,
			status VARCHAR DEFAULT 'active',
			last_lat DOUBLE,
			last_lon DOUBLE,
			last_alt_baro_ft DOUBLE
		)`,

		`CREATE TABLE IF NOT EXISTS system_stats (
			id BIGINT PRIMARY KEY,
			clear_attempted BIGINT DEFAULT 0,
			clear_succeeded BIGINT DEFAULT 0,
			clear_failed BIGINT DEFAULT 0,
			clear_retries BIGINT DEFAULT 0,
			enc_attempted BIGINT DEFAULT 0,
			enc_succeeded BIGINT DEFAULT 0,
			enc_failed BIGINT DEFAULT 0,
			enc_retries BIGINT DEFAULT 0,
			total_new BIGINT DEFAULT 0,
			total_updates BIGINT DEFAULT 0,
			total_reappeared BIGINT DEFAULT 0,
			peak_tpm BIGINT DEFAULT 0,
			system_start_time TIMESTAMP,
			updated_at TIMESTAMP
		)`,
	}

	for _, stmt := range stmts {
		if _, err := d.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	logging.Info().Msg("database schema ready")
	return nil
}
