// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package archiverecord

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
)

func newTestConn(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	stmts := []string{
		`CREATE SEQUENCE archive_record_id_seq START 1`,
		`CREATE TABLE archive_record (
			id BIGINT PRIMARY KEY DEFAULT nextval('archive_record_id_seq'),
			tx_id VARCHAR, source VARCHAR, "timestamp" TIMESTAMP,
			aircraft_count INTEGER, file_size_kb DOUBLE, format VARCHAR,
			icao_addresses VARCHAR[], package_uuid VARCHAR, created_at TIMESTAMP
		)`,
		`CREATE SEQUENCE encrypted_archive_records_id_seq START 1`,
		`CREATE TABLE encrypted_archive_records (
			id BIGINT PRIMARY KEY DEFAULT nextval('encrypted_archive_records_id_seq'),
			tx_id VARCHAR, source VARCHAR, "timestamp" TIMESTAMP,
			aircraft_count INTEGER, file_size_kb DOUBLE, format VARCHAR,
			icao_addresses VARCHAR[], package_uuid VARCHAR, created_at TIMESTAMP,
			data_hash VARCHAR, encryption_algorithm VARCHAR
		)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	return conn
}

func TestInsertClear_WritesRowWithICAOArray(t *testing.T) {
	conn := newTestConn(t)
	s := New(conn)

	rec := Clear{
		TxID: "tx-1", Source: "antenna-1", AircraftCount: 2, FileSizeKB: 12.5,
		PackageUUID: "pkg-1", ICAOAddresses: []string{"48436b", "a1b2c3"},
	}
	if err := s.InsertClear(context.Background(), rec); err != nil {
		t.Fatalf("InsertClear: %v", err)
	}

	var txID string
	var count int
	err := conn.QueryRow(`SELECT tx_id, aircraft_count FROM archive_record WHERE tx_id = 'tx-1'`).
		Scan(&txID, &count)
	if err != nil {
		t.Fatalf("query inserted row: %v", err)
	}

	var arrayLen int
	if err := conn.QueryRow(`SELECT len(icao_addresses) FROM archive_record WHERE tx_id = 'tx-1'`).Scan(&arrayLen); err != nil {
		t.Fatalf("query icao_addresses length: %v", err)
	}
	if arrayLen != 2 {
		t.Fatalf("expected 2 icao addresses stored, got %d", arrayLen)
	}
	if txID != "tx-1" || count != 2 {
		t.Fatalf("unexpected row: tx_id=%q aircraft_count=%d", txID, count)
	}
}

// A single-quote embedded in an ICAO address (pathological, never produced
// by the real feed client) must be escaped rather than break the query.
func TestIcaoArray_EscapesEmbeddedQuote(t *testing.T) {
	literal := icaoArray([]string{"a'b", "cdef"})
	want := "['a''b','cdef']"
	if literal != want {
		t.Fatalf("expected %q, got %q", want, literal)
	}
}

func TestIcaoArray_EmptySliceRendersEmptyArray(t *testing.T) {
	if got := icaoArray(nil); got != "[]" {
		t.Fatalf("expected '[]', got %q", got)
	}
}

func TestInsertEncrypted_WritesDataHashAndAlgorithm(t *testing.T) {
	conn := newTestConn(t)
	s := New(conn)

	rec := Encrypted{
		Clear:               Clear{TxID: "tx-2", Source: "antenna-1", AircraftCount: 1, PackageUUID: "pkg-2"},
		DataHash:            "deadbeef",
		EncryptionAlgorithm: "AES-256-GCM",
	}
	if err := s.InsertEncrypted(context.Background(), rec); err != nil {
		t.Fatalf("InsertEncrypted: %v", err)
	}

	var dataHash, algo string
	err := conn.QueryRow(`SELECT data_hash, encryption_algorithm FROM encrypted_archive_records WHERE tx_id = 'tx-2'`).
		Scan(&dataHash, &algo)
	if err != nil {
		t.Fatalf("query inserted row: %v", err)
	}
	if dataHash != "deadbeef" || algo != "AES-256-GCM" {
		t.Fatalf("unexpected row: data_hash=%q algorithm=%q", dataHash, algo)
	}
}
