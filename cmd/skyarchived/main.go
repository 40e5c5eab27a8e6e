// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package main is the entry point for the Skyarchive ingest-and-archive
// daemon.
//
// Skyarchive polls one or more ADS-B antenna feeds every 500ms, classifies
// each aircraft observation against an in-memory state cache, batches the
// resulting changes, and uploads every batch twice: once as a plain
// Parquet file and once AES-256-GCM encrypted, to a content-addressed
// archive-network gateway. A local DuckDB file mirrors the upload history
// and a per-aircraft rollup; a WebSocket endpoint broadcasts live counters.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: layered Koanf v2 load (defaults, optional YAML file, env vars)
//  2. Logging: zerolog, configured from Logging.{Level,Format,Caller}
//  3. Wallet: JWK signing key, used for node self-registration
//  4. Crypto: the per-minute AES-256-GCM key derivation engine
//  5. Database: DuckDB file, schema migrated on open
//  6. Stats Register: the singleton counters row, restored from the
//     archive network if a newer snapshot exists
//  7. Upload pipelines, batcher, track store, archive/key-share clients
//  8. Orchestrator: the 500ms poll loop tying everything together
//  9. Supervisor tree: ingest/pipelines/broadcast layers, started last
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins): environment variables, an optional config.yaml, then
// built-in defaults. See internal/config for the full set of keys.
//
// # Signal Handling
//
// The daemon handles graceful shutdown on SIGINT and SIGTERM: the
// supervisor tree is canceled, in-flight uploads are allowed to finish,
// and the WebSocket hub closes every connected client before exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skyarchive/skyarchive/internal/archive"
	"github.com/skyarchive/skyarchive/internal/archiverecord"
	"github.com/skyarchive/skyarchive/internal/batch"
	"github.com/skyarchive/skyarchive/internal/broadcast"
	"github.com/skyarchive/skyarchive/internal/config"
	"github.com/skyarchive/skyarchive/internal/crypto"
	"github.com/skyarchive/skyarchive/internal/db"
	"github.com/skyarchive/skyarchive/internal/feed"
	"github.com/skyarchive/skyarchive/internal/keyshare"
	"github.com/skyarchive/skyarchive/internal/logging"
	"github.com/skyarchive/skyarchive/internal/orchestrator"
	"github.com/skyarchive/skyarchive/internal/pipeline"
	"github.com/skyarchive/skyarchive/internal/selfreg"
	"github.com/skyarchive/skyarchive/internal/snapshot"
	"github.com/skyarchive/skyarchive/internal/stats"
	"github.com/skyarchive/skyarchive/internal/supervisor"
	"github.com/skyarchive/skyarchive/internal/supervisor/services"
	"github.com/skyarchive/skyarchive/internal/trackstate"
	"github.com/skyarchive/skyarchive/internal/trackstore"
	"github.com/skyarchive/skyarchive/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	cfg.RewriteAntennaURLsForContainer()

	logging.Info().
		Int("antennas", len(cfg.EnabledAntennas())).
		Str("db_path", cfg.Database.Path).
		Str("archive_gateway", cfg.Archive.GatewayURL).
		Msg("starting skyarchive")

	w, err := wallet.Load(cfg.Wallet.KeysDir, cfg.Wallet.PrivateKeyName)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load wallet")
	}

	encryptor, err := crypto.New(cfg.Data.EncryptionKey)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize encryption engine")
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() {
		if err := database.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing database")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rowID, localUpdatedAt, err := stats.EnsureRow(ctx, database.Conn())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to ensure system_stats row")
	}
	register := stats.New(database.Conn(), rowID)

	archiveClient := archive.New(cfg.Archive.GatewayURL)
	keyshareClient := keyshare.New(cfg.KeyShare.BaseURL)

	snapshot.Restore(ctx, archiveClient, encryptor, cfg.Wallet.PublicKey, register, localUpdatedAt)

	if err := selfreg.Register(ctx, cfg.Node, w, cfg.Wallet.PublicKey, archiveClient); err != nil {
		logging.Warn().Err(err).Msg("node self-registration failed, continuing without it")
	}

	feedClient := feed.New()
	defer feedClient.Close()

	trackStateCache := trackstate.New()

	batcher, err := batch.New()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to initialize batch coupling store")
	}
	defer func() {
		if err := batcher.Close(); err != nil {
			logging.Error().Err(err).Msg("error closing batch coupling store")
		}
	}()

	trackStore := trackstore.New(database.Conn())
	archiveRecords := archiverecord.New(database.Conn())

	clearPipeline := pipeline.New("clear", nil, register)
	encPipeline := pipeline.New("enc", nil, register)

	hub := broadcast.NewHub()

	orch := orchestrator.New(
		feedClient, cfg.EnabledAntennas(), trackStateCache, batcher,
		clearPipeline, encPipeline, register, hub,
		trackStore, archiveRecords, archiveClient, encryptor, keyshareClient,
	)
	clearUpload, encUpload := orch.UploadFns()
	clearPipeline = pipeline.New("clear", clearUpload, register)
	encPipeline = pipeline.New("enc", encUpload, register)
	orch = orchestrator.New(
		feedClient, cfg.EnabledAntennas(), trackStateCache, batcher,
		clearPipeline, encPipeline, register, hub,
		trackStore, archiveRecords, archiveClient, encryptor, keyshareClient,
	)

	backup := snapshot.NewBackup(register, encryptor, archiveClient)

	slogLogger := logging.NewSlogLogger()
	tree, err := supervisor.NewSupervisorTree(slogLogger, supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to create supervisor tree")
	}

	tree.AddIngestService(orch)
	tree.AddPipelineService(clearPipeline)
	tree.AddPipelineService(encPipeline)
	tree.AddPipelineService(backup)
	tree.AddBroadcastService(hub)

	router := chi.NewRouter()
	handler := broadcast.NewHandler(hub, register)
	handler.Mount(router)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Node.APIPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	tree.AddBroadcastService(services.NewHTTPServerService(server, 10*time.Second))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
	}

	logging.Info().Msg("skyarchive stopped gracefully")
}
