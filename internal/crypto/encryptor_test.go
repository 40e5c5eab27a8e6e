// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package crypto

import (
	"bytes"
	"crypto/sha256"
	"strings"
	"testing"
	"time"
)

const testMasterKeyHex = "0102030405060708090a0b0c0d0e0f100102030405060708090a0b0c0d0e0f10"

func newTestEncryptor(t *testing.T) *Encryptor {
	t.Helper()
	e, err := New(testMasterKeyHex)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNew_RejectsMalformedMasterKey(t *testing.T) {
	if _, err := New("not-hex"); err == nil {
		t.Fatalf("expected error for non-hex master key")
	}
	if _, err := New("aabb"); err == nil {
		t.Fatalf("expected error for a too-short master key")
	}
}

// Round-trip: encrypt then decrypt with the same minute key recovers the
// original bytes exactly (§8).
func TestEncryptBuffer_RoundTrip(t *testing.T) {
	e := newTestEncryptor(t)
	plaintext := []byte("hello columnar batch bytes")

	pkg, err := e.EncryptBuffer(plaintext, "pkg-1")
	if err != nil {
		t.Fatalf("EncryptBuffer: %v", err)
	}

	recovered, err := Decrypt(pkg.RawKey, pkg.EncryptedBuffer)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Fatalf("round-trip mismatch: got %q want %q", recovered, plaintext)
	}
}

// Invariant 4: plaintext SHA-256 equals the package's DataHash.
func TestEncryptBuffer_DataHashMatchesPlaintext(t *testing.T) {
	e := newTestEncryptor(t)
	plaintext := []byte("aircraft batch payload")

	pkg, err := e.EncryptBuffer(plaintext, "pkg-2")
	if err != nil {
		t.Fatalf("EncryptBuffer: %v", err)
	}

	want := sha256.Sum256(plaintext)
	if pkg.DataHash != want {
		t.Fatalf("data hash mismatch: got %x want %x", pkg.DataHash, want)
	}
}

// Invariant 3 / S7: two encryptions within the same minute epoch share a
// key UUID; crossing a minute boundary rotates it.
func TestEncryptBufferAt_MinuteRotation(t *testing.T) {
	e := newTestEncryptor(t)

	base := time.Unix(1751069520, 0) // start of a minute epoch
	tEnd := base.Add(59*time.Second + 900*time.Millisecond)
	tAfter := base.Add(60*time.Second + 100*time.Millisecond)
	tAfter2 := base.Add(60*time.Second + 200*time.Millisecond)

	pkgBefore, err := e.encryptBufferAt([]byte("a"), "pkg-a", tEnd)
	if err != nil {
		t.Fatalf("encryptBufferAt: %v", err)
	}
	pkgAfter, err := e.encryptBufferAt([]byte("b"), "pkg-b", tAfter)
	if err != nil {
		t.Fatalf("encryptBufferAt: %v", err)
	}
	pkgAfter2, err := e.encryptBufferAt([]byte("c"), "pkg-c", tAfter2)
	if err != nil {
		t.Fatalf("encryptBufferAt: %v", err)
	}

	if pkgBefore.KeyUUID == pkgAfter.KeyUUID {
		t.Fatalf("expected different key UUIDs across the minute boundary")
	}
	if pkgAfter.KeyUUID != pkgAfter2.KeyUUID {
		t.Fatalf("expected the same key UUID for two encryptions within the same minute, got %q and %q", pkgAfter.KeyUUID, pkgAfter2.KeyUUID)
	}
}

func TestEncryptBuffer_EachCallGetsFreshIV(t *testing.T) {
	e := newTestEncryptor(t)
	plaintext := []byte("same bytes both times")

	a, err := e.EncryptBuffer(plaintext, "pkg")
	if err != nil {
		t.Fatalf("EncryptBuffer: %v", err)
	}
	b, err := e.EncryptBuffer(plaintext, "pkg")
	if err != nil {
		t.Fatalf("EncryptBuffer: %v", err)
	}

	ivA := a.EncryptedBuffer[:12]
	ivB := b.EncryptedBuffer[:12]
	if bytes.Equal(ivA, ivB) {
		t.Fatalf("expected distinct random IVs across separate encryptions")
	}
}

func TestDeriveKey_IsDeterministic(t *testing.T) {
	e := newTestEncryptor(t)

	k1, err := e.DeriveKey("enckey-123-abc")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	k2, err := e.DeriveKey("enckey-123-abc")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("expected deterministic derivation for the same keyUuid")
	}

	k3, err := e.DeriveKey("enckey-456-def")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	if k1 == k3 {
		t.Fatalf("expected different keyUuids to derive different keys")
	}
}

// EncryptWithFixedKey lets the snapshot backup and restore recover the same
// key from the master key and a constant UUID alone, independent of the
// wall-clock minute.
func TestEncryptWithFixedKey_RestoreRoundTrip(t *testing.T) {
	e := newTestEncryptor(t)
	plaintext := []byte(`{"timestamp":123,"stats":{}}`)

	pkg, err := e.EncryptWithFixedKey(plaintext, "system-stats-backup")
	if err != nil {
		t.Fatalf("EncryptWithFixedKey: %v", err)
	}

	rawKey, err := e.DeriveKey("system-stats-backup")
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}

	recovered, err := Decrypt(rawKey, pkg.EncryptedBuffer)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(recovered, plaintext) {
		t.Fatalf("restore round-trip mismatch")
	}
}

func TestDecrypt_RejectsTooShortBuffer(t *testing.T) {
	if _, err := Decrypt([32]byte{}, []byte("short")); err == nil {
		t.Fatalf("expected error for a too-short encrypted buffer")
	}
}

func TestEncryptBuffer_WireLayoutLength(t *testing.T) {
	e := newTestEncryptor(t)
	plaintext := []byte(strings.Repeat("x", 100))

	pkg, err := e.EncryptBuffer(plaintext, "pkg")
	if err != nil {
		t.Fatalf("EncryptBuffer: %v", err)
	}

	wantLen := 12 + 16 + len(plaintext)
	if len(pkg.EncryptedBuffer) != wantLen {
		t.Fatalf("expected IV(12)+Tag(16)+ciphertext(%d) = %d bytes, got %d", len(plaintext), wantLen, len(pkg.EncryptedBuffer))
	}
}
