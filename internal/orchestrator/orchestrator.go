// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package orchestrator runs the 500ms poll loop (§4.P) that ties every
// other component together: it fetches each antenna's feed, classifies
// the changes, batches them, and feeds both upload pipelines.
package orchestrator

import (
	"context"
	"time"

	"github.com/skyarchive/skyarchive/internal/batch"
	"github.com/skyarchive/skyarchive/internal/classify"
	"github.com/skyarchive/skyarchive/internal/config"
	"github.com/skyarchive/skyarchive/internal/crypto"
	"github.com/skyarchive/skyarchive/internal/archive"
	"github.com/skyarchive/skyarchive/internal/archiverecord"
	"github.com/skyarchive/skyarchive/internal/feed"
	"github.com/skyarchive/skyarchive/internal/keyshare"
	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/metrics"
	"github.com/skyarchive/skyarchive/internal/model"
	"github.com/skyarchive/skyarchive/internal/pipeline"
	"github.com/skyarchive/skyarchive/internal/stats"
	"github.com/skyarchive/skyarchive/internal/trackstate"
	"github.com/skyarchive/skyarchive/internal/trackstore"
)

// pollInterval is the fixed tick period (§4.P).
const pollInterval = 500 * time.Millisecond

// StatsBroadcaster is the subset of the broadcast hub the orchestrator
// needs, kept as an interface so this package doesn't import websockets.
type StatsBroadcaster interface {
	BroadcastStats(model.SystemStats)
}

// Orchestrator drives one poll-classify-batch-upload cycle per tick.
type Orchestrator struct {
	feed     *feed.Client
	antennas []config.AntennaConfig
	state    *trackstate.Cache
	batcher  *batch.Batcher

	clearPipeline *pipeline.Pipeline
	encPipeline   *pipeline.Pipeline

	register    *stats.Register
	broadcaster StatsBroadcaster

	trackStore     *trackstore.Store
	archiveRecords *archiverecord.Store
	archiveClient  *archive.Client
	encryptor      *crypto.Encryptor
	keyshare       *keyshare.Client

	encCache *encryptedCache
}

// New wires an Orchestrator from every component it drives each tick.
func New(
	feedClient *feed.Client,
	antennas []config.AntennaConfig,
	state *trackstate.Cache,
	batcher *batch.Batcher,
	clearPipeline, encPipeline *pipeline.Pipeline,
	register *stats.Register,
	broadcaster StatsBroadcaster,
	trackStore *trackstore.Store,
	archiveRecords *archiverecord.Store,
	archiveClient *archive.Client,
	encryptor *crypto.Encryptor,
	keyshareClient *keyshare.Client,
) *Orchestrator {
	return &Orchestrator{
		feed:           feedClient,
		antennas:       antennas,
		state:          state,
		batcher:        batcher,
		clearPipeline:  clearPipeline,
		encPipeline:    encPipeline,
		register:       register,
		broadcaster:    broadcaster,
		trackStore:     trackStore,
		archiveRecords: archiveRecords,
		archiveClient:  archiveClient,
		encryptor:      encryptor,
		keyshare:       keyshareClient,
		encCache:       newEncryptedCache(),
	}
}

// UploadFns returns the clear and encrypted UploadFn closures this
// orchestrator drives, for wiring into the two pipeline.New calls.
func (o *Orchestrator) UploadFns() (clear, enc pipeline.UploadFn) {
	return o.uploadClear, o.uploadEncrypted
}

// Serve runs the poll loop until ctx is canceled.
func (o *Orchestrator) Serve(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

func (o *Orchestrator) tick(ctx context.Context) {
	start := time.Now()
	metrics.PollsTotal.Inc()
	defer func() {
		elapsed := time.Since(start)
		metrics.PollCycleDuration.Observe(elapsed.Seconds())
		if elapsed > pollInterval {
			logging.Warn().Dur("elapsed", elapsed).Msg("poll cycle exceeded its 500ms budget")
		}
	}()

	var observations []model.Observation
	var totalMessages int64
	for _, ant := range o.antennas {
		resp, err := o.feed.Fetch(ctx, ant.ID, ant.URL)
		if err != nil {
			logging.Warn().Err(err).Str("antenna", ant.ID).Msg("feed fetch failed, skipping antenna for this tick")
			continue
		}
		observations = append(observations, resp.Aircraft...)
		totalMessages += resp.Messages
	}

	now := time.Now()
	result := classify.Run(observations, o.state, now.UnixMilli(), now.Unix(), totalMessages)

	o.register.RecordNew(result.Counters.TotalNew)
	o.register.RecordUpdated(result.Counters.TotalUpdates)
	o.register.RecordReappeared(result.Counters.TotalReappeared)

	if len(result.OutOfRangeHex) > 0 {
		if err := o.trackStore.MarkOutOfRange(ctx, result.OutOfRangeHex, now); err != nil {
			logging.Warn().Err(err).Int("count", len(result.OutOfRangeHex)).Msg("failed to mark tracks out of range")
		}
	}

	if len(result.Events) == 0 {
		o.broadcaster.BroadcastStats(o.register.GetStats())
		return
	}

	for _, b := range o.batcher.Split(result.Events) {
		o.clearPipeline.Enqueue(b)
		o.encPipeline.Enqueue(b)
	}

	o.broadcaster.BroadcastStats(o.register.GetStats())
}
