// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package snapshot

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/skyarchive/skyarchive/internal/archive"
	"github.com/skyarchive/skyarchive/internal/crypto"
	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/stats"
)

// Restore runs the boot-time reconciliation described in §4.N: find this
// node's most recent stats-backup transaction, decrypt it with the key
// re-derived from FixedPackageUUID, and reconcile it into register if it is
// newer than the local row. A missing backup, a download/decrypt/parse
// failure, or a local row that is already current are all non-fatal - the
// node simply boots with whatever local counters it has.
func Restore(ctx context.Context, archiveClient *archive.Client, encryptor *crypto.Encryptor, walletAddress string, register *stats.Register, localUpdatedAt time.Time) {
	result, payload, err := archiveClient.QueryLatestSnapshot(ctx, walletAddress)
	if err != nil {
		logging.Warn().Err(err).Msg("snapshot: restore query failed, continuing with local counters")
		return
	}
	if !result.Found {
		logging.Info().Msg("snapshot: no prior backup found for this wallet")
		return
	}

	rawKey, err := encryptor.DeriveKey(FixedPackageUUID)
	if err != nil {
		logging.Warn().Err(err).Msg("snapshot: failed to derive restore key")
		return
	}

	plaintext, err := crypto.Decrypt(rawKey, payload)
	if err != nil {
		logging.Warn().Err(err).Str("tx_id", result.TxID).Msg("snapshot: failed to decrypt backup")
		return
	}

	var doc document
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		logging.Warn().Err(err).Str("tx_id", result.TxID).Msg("snapshot: failed to parse backup document")
		return
	}

	backupTime := time.UnixMilli(doc.Timestamp)
	doc.Stats.UpdatedAt = backupTime

	logging.Info().Str("tx_id", result.TxID).Time("backup_time", backupTime).Msg("snapshot: restore candidate found")
	register.ApplyRestoredCounters(doc.Stats, localUpdatedAt)
}
