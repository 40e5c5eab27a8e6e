// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package crypto implements the per-minute key derivation and
// authenticated encryption used by the encrypted upload pipeline and the
// snapshot backup (§4.G).
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"github.com/skyarchive/skyarchive/internal/model"
)

// ErrMissingMasterKey is returned when the configured master key is absent
// or malformed; this is a fatal boot-time condition per §7.
var ErrMissingMasterKey = errors.New("crypto: missing or malformed master key")

const hkdfInfo = "arweave-package-encryption"

// Encryptor holds the master key and the current minute-scoped derived key.
type Encryptor struct {
	masterKey [32]byte

	mu          sync.Mutex
	cachedEpoch int64
	cachedKey   model.EncryptionKey
}

// New parses masterKeyHex (64 hex chars = 32 bytes) into an Encryptor.
func New(masterKeyHex string) (*Encryptor, error) {
	raw, err := hex.DecodeString(masterKeyHex)
	if err != nil || len(raw) != 32 {
		return nil, ErrMissingMasterKey
	}
	e := &Encryptor{cachedEpoch: -1}
	copy(e.masterKey[:], raw)
	return e, nil
}

func minuteEpoch(now time.Time) int64 {
	return now.UnixMilli() / 60000
}

// getOrGenerateMinuteKey returns the cached key if it still belongs to the
// current minute epoch, else derives and caches a fresh one.
func (e *Encryptor) getOrGenerateMinuteKey(now time.Time) (model.EncryptionKey, error) {
	epoch := minuteEpoch(now)

	e.mu.Lock()
	defer e.mu.Unlock()

	if epoch == e.cachedEpoch {
		return e.cachedKey, nil
	}

	keyUUID := fmt.Sprintf("enckey-%d-%s", epoch, uuid.NewString())
	raw, err := e.derive(keyUUID)
	if err != nil {
		return model.EncryptionKey{}, err
	}

	e.cachedEpoch = epoch
	e.cachedKey = model.EncryptionKey{
		KeyUUID:     keyUUID,
		RawKey:      raw,
		MinuteEpoch: epoch,
	}
	return e.cachedKey, nil
}

func (e *Encryptor) derive(keyUUID string) ([32]byte, error) {
	var out [32]byte
	reader := hkdf.New(sha256.New, e.masterKey[:], []byte(keyUUID), []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, out[:]); err != nil {
		return out, fmt.Errorf("hkdf derive: %w", err)
	}
	return out, nil
}

// CurrentMinuteKeyUUID returns the key UUID for the current minute epoch,
// deriving and caching it if necessary, without encrypting anything. The
// clear pipeline tags every upload with this UUID so a clear batch can be
// correlated against the key rotation in effect at upload time, even
// though the clear payload itself is never encrypted.
func (e *Encryptor) CurrentMinuteKeyUUID() (string, error) {
	key, err := e.getOrGenerateMinuteKey(time.Now())
	if err != nil {
		return "", err
	}
	return key.KeyUUID, nil
}

// EncryptBuffer implements §4.G's encryptBuffer: it hashes the plaintext,
// fetches or derives the current minute key, generates a fresh random IV,
// and AES-256-GCM encrypts, producing IV ‖ AuthTag ‖ Ciphertext.
func (e *Encryptor) EncryptBuffer(plaintext []byte, packageUUID string) (model.EncryptedPackage, error) {
	return e.encryptBufferAt(plaintext, packageUUID, time.Now())
}

func (e *Encryptor) encryptBufferAt(plaintext []byte, packageUUID string, now time.Time) (model.EncryptedPackage, error) {
	key, err := e.getOrGenerateMinuteKey(now)
	if err != nil {
		return model.EncryptedPackage{}, err
	}
	return seal(plaintext, key.RawKey, packageUUID, key.KeyUUID)
}

// EncryptWithFixedKey encrypts plaintext under the key derived directly from
// keyUUID, bypassing the minute-epoch cache entirely. The snapshot backup
// (§4.M) uses this with a constant keyUUID so that restore-on-start (§4.N)
// can recover the same key deterministically via DeriveKey, without needing
// to know which minute the backup was taken in.
func (e *Encryptor) EncryptWithFixedKey(plaintext []byte, keyUUID string) (model.EncryptedPackage, error) {
	raw, err := e.derive(keyUUID)
	if err != nil {
		return model.EncryptedPackage{}, err
	}
	return seal(plaintext, raw, keyUUID, keyUUID)
}

func seal(plaintext []byte, rawKey [32]byte, packageUUID, keyUUID string) (model.EncryptedPackage, error) {
	dataHash := sha256.Sum256(plaintext)

	block, err := aes.NewCipher(rawKey[:])
	if err != nil {
		return model.EncryptedPackage{}, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, 16)
	if err != nil {
		return model.EncryptedPackage{}, fmt.Errorf("gcm: %w", err)
	}

	iv := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return model.EncryptedPackage{}, fmt.Errorf("generate iv: %w", err)
	}

	// Seal appends ciphertext||tag; the wire layout wants IV‖tag‖ciphertext,
	// so the tag is split off and placed ahead of the ciphertext.
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]

	buf := make([]byte, 0, len(iv)+len(tag)+len(ciphertext))
	buf = append(buf, iv...)
	buf = append(buf, tag...)
	buf = append(buf, ciphertext...)

	return model.EncryptedPackage{
		EncryptedBuffer: buf,
		DataHash:        dataHash,
		Size:            len(buf),
		RawKey:          rawKey,
		PackageUUID:     packageUUID,
		KeyUUID:         keyUUID,
	}, nil
}

// DeriveKey re-derives the raw key for a previously-issued keyUuid. Key
// derivation only depends on the master key and the keyUuid string, not on
// wall-clock time, so this lets restore-on-start recover the key for a
// snapshot uploaded in an arbitrary past minute using only the
// Encryption-Key-UUID tag read back from the archive network.
func (e *Encryptor) DeriveKey(keyUUID string) ([32]byte, error) {
	return e.derive(keyUUID)
}

// Decrypt reverses EncryptBuffer given the raw key used to produce buf.
func Decrypt(rawKey [32]byte, buf []byte) ([]byte, error) {
	if len(buf) < 12+16 {
		return nil, errors.New("crypto: encrypted buffer too short")
	}
	iv := buf[:12]
	tag := buf[12:28]
	ciphertext := buf[28:]

	block, err := aes.NewCipher(rawKey[:])
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithTagSize(block, 16)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("gcm open: %w", err)
	}
	return plaintext, nil
}
