// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package snapshot implements the periodic stats backup (§4.M) and the
// boot-time restore reconciliation (§4.N), both keyed by a fixed package
// UUID so the encryption key can be re-derived without knowing which
// minute epoch the backup was taken in.
package snapshot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/skyarchive/skyarchive/internal/archive"
	"github.com/skyarchive/skyarchive/internal/crypto"
	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/metrics"
	"github.com/skyarchive/skyarchive/internal/model"
	"github.com/skyarchive/skyarchive/internal/stats"
)

// FixedPackageUUID is the constant packageUuid/keyUuid used for every
// snapshot backup, so restore-on-start can re-derive the key from the
// master key alone without reading back a per-batch tag (§4.M).
const FixedPackageUUID = "system-stats-backup"

const (
	backupInterval = 5 * time.Minute
	firstBackupIn  = 60 * time.Second
)

// document is the JSON payload encrypted and uploaded as a backup.
type document struct {
	Timestamp int64             `json:"timestamp"`
	Stats     model.SystemStats `json:"stats"`
	BackupID  string            `json:"backupId"`
}

// Backup runs the 5-minute snapshot ticker as a suture.Service.
type Backup struct {
	register  *stats.Register
	encryptor *crypto.Encryptor
	archive   *archive.Client
}

// NewBackup wires a Backup around the live Stats Register, the shared
// Encryptor, and the archive gateway client.
func NewBackup(register *stats.Register, encryptor *crypto.Encryptor, archiveClient *archive.Client) *Backup {
	return &Backup{register: register, encryptor: encryptor, archive: archiveClient}
}

// Serve implements suture.Service: it waits firstBackupIn, runs one backup,
// then repeats every backupInterval until ctx is done.
func (b *Backup) Serve(ctx context.Context) error {
	first := time.NewTimer(firstBackupIn)
	defer first.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-first.C:
		b.runOnce(ctx)
	}

	ticker := time.NewTicker(backupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			b.runOnce(ctx)
		}
	}
}

func (b *Backup) runOnce(ctx context.Context) {
	if err := b.backup(ctx); err != nil {
		logging.Warn().Err(err).Msg("snapshot: backup failed, will retry next tick")
		metrics.SnapshotBackupsTotal.WithLabelValues("failure").Inc()
		return
	}
	metrics.SnapshotBackupsTotal.WithLabelValues("success").Inc()
}

func (b *Backup) backup(ctx context.Context) error {
	idBuf := make([]byte, 8)
	if _, err := rand.Read(idBuf); err != nil {
		return fmt.Errorf("generate backup id: %w", err)
	}
	backupID := hex.EncodeToString(idBuf)

	now := time.Now()
	doc := document{
		Timestamp: now.UnixMilli(),
		Stats:     b.register.GetStats(),
		BackupID:  backupID,
	}

	plaintext, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal snapshot document: %w", err)
	}

	pkg, err := b.encryptor.EncryptWithFixedKey(plaintext, FixedPackageUUID)
	if err != nil {
		return fmt.Errorf("encrypt snapshot: %w", err)
	}

	tags := []archive.Tag{
		{Name: "Type", Value: "stats-backup"},
		{Name: "Backup-Type", Value: "system-stats"},
		{Name: "Timestamp", Value: fmt.Sprintf("%d", doc.Timestamp)},
		{Name: "Backup-ID", Value: backupID},
		{Name: "Encrypted", Value: "true"},
		{Name: "Encryption-Algorithm", Value: "AES-256-GCM"},
		{Name: "App-Name", Value: "DeradNetworkBackup"},
	}

	txID, err := b.archive.Upload(ctx, pkg.EncryptedBuffer, tags)
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}

	logging.Info().Str("tx_id", txID).Str("backup_id", backupID).Msg("snapshot: backup uploaded")
	return nil
}
