// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package metrics exposes the Prometheus collectors read by the Stats
// Register and the pipelines/archive client, mirroring the counters in §3
// and §4.I/§4.J.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollsTotal counts orchestrator poll ticks.
	PollsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyarchive",
		Name:      "polls_total",
		Help:      "Total number of orchestrator poll ticks executed.",
	})

	// PollCycleDuration tracks wall-clock time per poll tick.
	PollCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "skyarchive",
		Name:      "poll_cycle_duration_seconds",
		Help:      "Duration of a single orchestrator poll cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// UploadsTotal counts upload attempts/outcomes by pipeline and outcome.
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyarchive",
		Name:      "uploads_total",
		Help:      "Total upload attempts by pipeline and outcome.",
	}, []string{"pipeline", "outcome"})

	// UploadRetriesTotal counts retry attempts by pipeline.
	UploadRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyarchive",
		Name:      "upload_retries_total",
		Help:      "Total upload retry attempts by pipeline.",
	}, []string{"pipeline"})

	// AircraftEventsTotal counts classifier events by kind.
	AircraftEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyarchive",
		Name:      "aircraft_events_total",
		Help:      "Total classifier events by kind (new, updated, reappeared).",
	}, []string{"kind"})

	// TPMCurrent tracks the current transactions-per-minute reading.
	TPMCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyarchive",
		Name:      "tpm_current",
		Help:      "Current transactions-per-minute, summed over the 60-second sliding window.",
	})

	// TPMPeak tracks the highest TPM reading observed since boot.
	TPMPeak = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyarchive",
		Name:      "tpm_peak",
		Help:      "Peak transactions-per-minute observed since boot.",
	})

	// TrackStoreRows tracks the cached aircraft_tracks row count.
	TrackStoreRows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skyarchive",
		Name:      "track_store_rows",
		Help:      "Cached count of rows in aircraft_tracks.",
	})

	// KeyShareSavedTotal counts optimistic key-share successes.
	KeyShareSavedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyarchive",
		Name:      "keyshare_saved_total",
		Help:      "Optimistic count of keys reported saved by the key-share service.",
	})

	// KeyShareErrorsTotal counts key-share POST failures.
	KeyShareErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skyarchive",
		Name:      "keyshare_errors_total",
		Help:      "Count of failed key-share store-key requests.",
	})

	// ArchiveBreakerState reports the gobreaker circuit state (0=closed,
	// 1=half-open, 2=open) for the archive gateway client.
	ArchiveBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "skyarchive",
		Name:      "archive_breaker_state",
		Help:      "Circuit breaker state for the archive gateway client (0=closed,1=half-open,2=open).",
	}, []string{"breaker"})

	// SnapshotBackupsTotal counts snapshot backup attempts by outcome.
	SnapshotBackupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skyarchive",
		Name:      "snapshot_backups_total",
		Help:      "Total snapshot backup attempts by outcome (success, failure).",
	}, []string{"outcome"})
)
