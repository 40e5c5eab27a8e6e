// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package db

import "testing"

func TestOpen_CreatesSchemaAndIsReopenable(t *testing.T) {
	d, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer d.Close()

	tables := []string{"archive_record", "encrypted_archive_records", "aircraft_tracks", "system_stats"}
	for _, table := range tables {
		var name string
		err := d.Conn().QueryRow(
			`SELECT table_name FROM information_schema.tables WHERE table_name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Fatalf("expected table %s to exist after migration: %v", table, err)
		}
	}

	// migrate() uses CREATE TABLE IF NOT EXISTS / CREATE SEQUENCE IF NOT
	// EXISTS throughout, so re-running Open against the same conn logic
	// must not error even though the schema already exists.
	if err := d.migrate(); err != nil {
		t.Fatalf("expected re-running migrate to be idempotent, got: %v", err)
	}
}
