// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package batch implements the Batcher (§4.E): it splits a tick's change
// events into size-capped chunks, assigns each a packageUuid and a
// deterministic batchId, and records the batchId -> packageUuid coupling
// so the encrypted pipeline can recover the clear pipeline's UUID for the
// same logical batch.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/model"
)

// MaxAircraftPerBatch bounds the number of items in a single batch.
const MaxAircraftPerBatch = 30

// CouplingTTL is how long a batchId -> packageUuid mapping survives before
// the badger entry is evicted.
const CouplingTTL = 5 * time.Minute

// Batcher buffers change events for one tick and splits them into batches.
type Batcher struct {
	coupling *badger.DB
}

// New opens an in-memory badger instance to back the batchId -> packageUuid
// coupling map. Badger's native per-key TTL gives exactly the "bounded map,
// entries expiring after e.g. 5 minutes" behaviour §9 calls for.
func New() (*Batcher, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory coupling store: %w", err)
	}
	return &Batcher{coupling: db}, nil
}

// Close releases the coupling store.
func (b *Batcher) Close() error {
	return b.coupling.Close()
}

// Split chunks events into ordered batches of at most MaxAircraftPerBatch,
// assigning each a fresh packageUuid and recording the batchId coupling.
func (b *Batcher) Split(events []model.ChangeEvent) []model.Batch {
	if len(events) == 0 {
		return nil
	}

	var batches []model.Batch
	for ordinal, start := 0, 0; start < len(events); ordinal, start = ordinal+1, start+MaxAircraftPerBatch {
		end := start + MaxAircraftPerBatch
		if end > len(events) {
			end = len(events)
		}
		chunk := events[start:end]

		items := make([]model.BatchItem, 0, len(chunk))
		for _, e := range chunk {
			items = append(items, model.BatchItem{
				Observation:           e.Observation,
				SnapshotSeconds:       e.SnapshotSeconds,
				Hex:                   e.Observation.Hex,
				SnapshotTotalMessages: e.SnapshotTotalMessages,
			})
		}

		packageUUID := uuid.NewString()
		batchID := fmt.Sprintf("%d-%s-%d", chunk[0].SnapshotSeconds, chunk[0].Observation.Hex, ordinal)

		if err := b.record(batchID, packageUUID); err != nil {
			logging.Warn().Err(err).Str("batch_id", batchID).Msg("failed to record batch coupling")
		}

		batches = append(batches, model.Batch{
			Items:       items,
			PackageUUID: packageUUID,
			BatchID:     batchID,
		})
	}
	return batches
}

func (b *Batcher) record(batchID, packageUUID string) error {
	return b.coupling.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(batchID), []byte(packageUUID)).WithTTL(CouplingTTL)
		return txn.SetEntry(entry)
	})
}

// Lookup resolves batchId to the packageUuid the clear pipeline assigned.
// If the mapping has expired or was never recorded, it falls back to a
// fresh UUID: liveness is preserved at the cost of the coupling guarantee
// in pathological lag scenarios, per §9.
func (b *Batcher) Lookup(ctx context.Context, batchID string) string {
	var packageUUID string
	err := b.coupling.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(batchID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			packageUUID = string(val)
			return nil
		})
	})
	if err != nil {
		logging.Warn().Err(err).Str("batch_id", batchID).Msg("batch coupling miss, generating fresh package uuid")
		return uuid.NewString()
	}
	return packageUUID
}
