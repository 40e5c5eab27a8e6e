// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package orchestrator

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/skyarchive/skyarchive/internal/archive"
	"github.com/skyarchive/skyarchive/internal/archiverecord"
	"github.com/skyarchive/skyarchive/internal/columnar"
	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/model"
	"github.com/skyarchive/skyarchive/internal/pipeline"
	"github.com/skyarchive/skyarchive/internal/trackstore"
)

// uploadClear is the clear pipeline's UploadFn: encode, tag, upload, then
// fire-and-forget the track store and archive record writes (§4.P, §9).
func (o *Orchestrator) uploadClear(ctx context.Context, b model.Batch) error {
	data, err := columnar.Encode(b.Items)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", b.BatchID, err)
	}

	keyUUID, err := o.encryptor.CurrentMinuteKeyUUID()
	if err != nil {
		logging.Warn().Err(err).Str("batch_id", b.BatchID).Msg("clear upload: could not read current key uuid for tagging")
	}

	hexes, callsigns := batchTagValues(b.Items)
	tags := clearTags(b, len(data), keyUUID, hexes, callsigns)

	txID, err := o.archiveClient.Upload(ctx, data, tags)
	if err != nil {
		return classifyUploadErr(err)
	}

	o.finalizeUpload(ctx, b, txID, "clear", hexes, float64(len(data))/1024, nil)
	return nil
}

// uploadEncrypted is the encrypted pipeline's UploadFn. The encrypted
// buffer is computed once per batch and cached across retries, so the
// bytes resubmitted on a retry are bit-for-bit identical to the first
// attempt (§9).
func (o *Orchestrator) uploadEncrypted(ctx context.Context, b model.Batch) error {
	pkg, err := o.encCache.getOrCreate(b.BatchID, func() (model.EncryptedPackage, error) {
		plaintext, err := columnar.Encode(b.Items)
		if err != nil {
			return model.EncryptedPackage{}, err
		}
		packageUUID := o.batcher.Lookup(ctx, b.BatchID)
		return o.encryptor.EncryptBuffer(plaintext, packageUUID)
	})
	if err != nil {
		o.encCache.evict(b.BatchID)
		return fmt.Errorf("prepare encrypted buffer for batch %s: %w", b.BatchID, err)
	}

	hexes, callsigns := batchTagValues(b.Items)
	tags := encryptedTags(b, pkg, hexes, callsigns)

	txID, err := o.archiveClient.Upload(ctx, pkg.EncryptedBuffer, tags)
	if err != nil {
		uploadErr := classifyUploadErr(err)
		var perm *pipeline.PermanentError
		if errors.As(uploadErr, &perm) {
			o.encCache.evict(b.BatchID)
		}
		return uploadErr
	}
	o.encCache.evict(b.BatchID)

	o.keyshare.SendOptimistic(ctx, pkg.KeyUUID, pkg.RawKey)

	meta := &encryptedMeta{dataHash: hex.EncodeToString(pkg.DataHash[:])}
	o.finalizeUpload(ctx, b, txID, "encrypted", hexes, float64(len(pkg.EncryptedBuffer))/1024, meta)
	return nil
}

// classifyUploadErr turns a gateway ValidationError into a pipeline
// PermanentError; every other error (network, 5xx) is left retryable.
func classifyUploadErr(err error) error {
	var verr *archive.ValidationError
	if errors.As(err, &verr) {
		return &pipeline.PermanentError{Err: err}
	}
	return err
}

// encryptedMeta carries the fields only the encrypted record row needs.
type encryptedMeta struct {
	dataHash string
}

// finalizeUpload performs the two database writes a successful upload
// triggers. Both are fire-and-forget: a failure here is logged but never
// turns a completed upload into a retried one (§9 open question 1).
func (o *Orchestrator) finalizeUpload(ctx context.Context, b model.Batch, txID, source string, hexes []string, fileSizeKB float64, enc *encryptedMeta) {
	now := time.Now()
	items := make([]trackstore.Item, 0, len(b.Items))
	for _, it := range b.Items {
		items = append(items, trackstore.Item{Hex: it.Hex, Aircraft: it.Observation, TxID: txID})
	}
	if err := o.trackStore.Upsert(ctx, items, now); err != nil {
		logging.Warn().Err(err).Str("batch_id", b.BatchID).Msg("track store upsert failed after successful upload")
	}

	rec := archiverecord.Clear{
		TxID:          txID,
		Source:        source,
		AircraftCount: len(b.Items),
		FileSizeKB:    fileSizeKB,
		PackageUUID:   b.PackageUUID,
		ICAOAddresses: hexes,
	}

	var err error
	if enc != nil {
		err = o.archiveRecords.InsertEncrypted(ctx, archiverecord.Encrypted{
			Clear:               rec,
			DataHash:            enc.dataHash,
			EncryptionAlgorithm: "AES-256-GCM",
		})
	} else {
		err = o.archiveRecords.InsertClear(ctx, rec)
	}
	if err != nil {
		logging.Warn().Err(err).Str("batch_id", b.BatchID).Str("tx_id", txID).Msg("archive record insert failed after successful upload")
	}
}

// batchTagValues collects the per-aircraft ICAO hexes and non-empty
// callsigns a batch's tags repeat, in item order.
func batchTagValues(items []model.BatchItem) (hexes, callsigns []string) {
	hexes = make([]string, 0, len(items))
	for _, it := range items {
		hexes = append(hexes, it.Hex)
		if it.Observation.Flight == nil {
			continue
		}
		if cs := strings.TrimSpace(*it.Observation.Flight); cs != "" {
			callsigns = append(callsigns, cs)
		}
	}
	return hexes, callsigns
}

// baseTags builds the tag set common to both pipelines (§6).
func baseTags(b model.Batch, fileSizeBytes int, keyUUID string, hexes, callsigns []string) []archive.Tag {
	tags := []archive.Tag{
		{Name: "App-Name", Value: "DeradNetworkBackup"},
		{Name: "Timestamp", Value: time.Now().UTC().Format("200601021504")},
		{Name: "Format", Value: "Parquet"},
		{Name: "Schema-Version", Value: "2.0"},
		{Name: "Schema-Type", Value: "batch-aircraft"},
		{Name: "Aircraft-Count", Value: strconv.Itoa(len(b.Items))},
		{Name: "File-Size-KB", Value: strconv.FormatFloat(float64(fileSizeBytes)/1024, 'f', 2, 64)},
		{Name: "Data-Format", Value: "aviation-realtime-batch"},
		{Name: "Batch-Timestamp", Value: strconv.FormatInt(batchSnapshotSeconds(b), 10)},
		{Name: "Package-UUID", Value: b.PackageUUID},
		{Name: "Encryption-Key-UUID", Value: keyUUID},
	}
	for _, h := range hexes {
		tags = append(tags, archive.Tag{Name: "ICAO", Value: h})
	}
	for _, cs := range callsigns {
		tags = append(tags, archive.Tag{Name: "Callsign", Value: cs})
	}
	return tags
}

func clearTags(b model.Batch, fileSizeBytes int, keyUUID string, hexes, callsigns []string) []archive.Tag {
	tags := append([]archive.Tag{{Name: "Content-Type", Value: "application/parquet"}},
		baseTags(b, fileSizeBytes, keyUUID, hexes, callsigns)...)
	return append(tags, archive.Tag{Name: "Encrypted", Value: "false"})
}

func encryptedTags(b model.Batch, pkg model.EncryptedPackage, hexes, callsigns []string) []archive.Tag {
	tags := append([]archive.Tag{{Name: "Content-Type", Value: "application/octet-stream"}},
		baseTags(b, len(pkg.EncryptedBuffer), pkg.KeyUUID, hexes, callsigns)...)
	return append(tags,
		archive.Tag{Name: "Encrypted", Value: "true"},
		archive.Tag{Name: "Encryption-Algorithm", Value: "AES-256-GCM"},
		archive.Tag{Name: "Data-Hash", Value: hex.EncodeToString(pkg.DataHash[:])},
	)
}

func batchSnapshotSeconds(b model.Batch) int64 {
	if len(b.Items) == 0 {
		return 0
	}
	return b.Items[0].SnapshotSeconds
}

// encryptedCache holds the one in-flight encrypted buffer per batchId, so
// retries of the same batch never re-encrypt (§9).
type encryptedCache struct {
	mu      sync.Mutex
	entries map[string]model.EncryptedPackage
}

func newEncryptedCache() *encryptedCache {
	return &encryptedCache{entries: make(map[string]model.EncryptedPackage)}
}

func (c *encryptedCache) getOrCreate(batchID string, create func() (model.EncryptedPackage, error)) (model.EncryptedPackage, error) {
	c.mu.Lock()
	if pkg, ok := c.entries[batchID]; ok {
		c.mu.Unlock()
		return pkg, nil
	}
	c.mu.Unlock()

	pkg, err := create()
	if err != nil {
		return model.EncryptedPackage{}, err
	}

	c.mu.Lock()
	c.entries[batchID] = pkg
	c.mu.Unlock()
	return pkg, nil
}

func (c *encryptedCache) evict(batchID string) {
	c.mu.Lock()
	delete(c.entries, batchID)
	c.mu.Unlock()
}
