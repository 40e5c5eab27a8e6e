// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package snapshot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/skyarchive/skyarchive/internal/archive"
	"github.com/skyarchive/skyarchive/internal/crypto"
	"github.com/skyarchive/skyarchive/internal/model"
	"github.com/skyarchive/skyarchive/internal/stats"
)

const testMasterKeyHex = "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestEncryptor(t *testing.T) *crypto.Encryptor {
	t.Helper()
	enc, err := crypto.New(testMasterKeyHex)
	if err != nil {
		t.Fatalf("crypto.New: %v", err)
	}
	return enc
}

// graphqlFoundServer serves a gateway that answers the restore GraphQL
// query with a single transaction and then serves its download payload.
func graphqlFoundServer(t *testing.T, payload []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"transactions":{"edges":[{"node":{"id":"tx-restore-1"}}]}}}`))
	})
	mux.HandleFunc("/tx/tx-restore-1/data", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})
	return httptest.NewServer(mux)
}

func TestRestore_AppliesNewerBackupIntoRegister(t *testing.T) {
	enc := newTestEncryptor(t)
	backupTime := time.Now().Add(-time.Hour)
	doc := document{
		Timestamp: backupTime.UnixMilli(),
		Stats:     model.SystemStats{TotalNew: 42},
		BackupID:  "backup-1",
	}
	plaintext, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal doc: %v", err)
	}
	pkg, err := enc.EncryptWithFixedKey(plaintext, FixedPackageUUID)
	if err != nil {
		t.Fatalf("EncryptWithFixedKey: %v", err)
	}

	srv := graphqlFoundServer(t, pkg.EncryptedBuffer)
	defer srv.Close()

	register := stats.New(nil, 1)
	archiveClient := archive.New(srv.URL)

	Restore(context.Background(), archiveClient, enc, "wallet-1", register, time.Now().Add(-2*time.Hour))

	got := register.GetStats()
	if got.TotalNew != 42 {
		t.Fatalf("expected restored TotalNew=42, got %d", got.TotalNew)
	}
}

func TestRestore_SkipsWhenLocalCountersAreNewer(t *testing.T) {
	enc := newTestEncryptor(t)
	backupTime := time.Now().Add(-2 * time.Hour)
	doc := document{Timestamp: backupTime.UnixMilli(), Stats: model.SystemStats{TotalNew: 99}}
	plaintext, _ := json.Marshal(doc)
	pkg, err := enc.EncryptWithFixedKey(plaintext, FixedPackageUUID)
	if err != nil {
		t.Fatalf("EncryptWithFixedKey: %v", err)
	}

	srv := graphqlFoundServer(t, pkg.EncryptedBuffer)
	defer srv.Close()

	register := stats.New(nil, 1)
	archiveClient := archive.New(srv.URL)

	Restore(context.Background(), archiveClient, enc, "wallet-1", register, time.Now())

	if got := register.GetStats().TotalNew; got != 0 {
		t.Fatalf("expected local (newer, zero) counters preserved, got TotalNew=%d", got)
	}
}

func TestRestore_NoBackupFoundIsNonFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"transactions":{"edges":[]}}}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	register := stats.New(nil, 1)
	enc := newTestEncryptor(t)
	archiveClient := archive.New(srv.URL)

	Restore(context.Background(), archiveClient, enc, "wallet-1", register, time.Now())

	if got := register.GetStats().TotalNew; got != 0 {
		t.Fatalf("expected untouched counters, got TotalNew=%d", got)
	}
}

func TestRestore_UndecryptablePayloadIsNonFatal(t *testing.T) {
	srv := graphqlFoundServer(t, []byte("not a valid encrypted buffer"))
	defer srv.Close()

	register := stats.New(nil, 1)
	enc := newTestEncryptor(t)
	archiveClient := archive.New(srv.URL)

	Restore(context.Background(), archiveClient, enc, "wallet-1", register, time.Now())

	if got := register.GetStats().TotalNew; got != 0 {
		t.Fatalf("expected untouched counters after a decrypt failure, got TotalNew=%d", got)
	}
}

func TestRestore_QueryFailureIsNonFatal(t *testing.T) {
	register := stats.New(nil, 1)
	enc := newTestEncryptor(t)
	archiveClient := archive.New("http://127.0.0.1:0")

	Restore(context.Background(), archiveClient, enc, "wallet-1", register, time.Now())

	if got := register.GetStats().TotalNew; got != 0 {
		t.Fatalf("expected untouched counters after a query failure, got TotalNew=%d", got)
	}
}
