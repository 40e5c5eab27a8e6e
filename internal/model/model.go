// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package model holds the data types shared across the ingest and archive
// pipeline: the wire observation, the per-aircraft cache entry, batches,
// encryption material, and the persisted record shapes.
package model

import (
	"strconv"
	"time"
)

// Observation is a single aircraft record from the feed. It is an opaque
// bag of optional fields: unknown extra keys are tolerated and simply
// ignored by everything downstream of the feed client.
type Observation struct {
	Hex            string   `json:"hex"`
	Flight         *string  `json:"flight,omitempty"`
	Lat            *float64 `json:"lat,omitempty"`
	Lon            *float64 `json:"lon,omitempty"`
	AltBaro        *Number  `json:"alt_baro,omitempty"`
	AltGeom        *float64 `json:"alt_geom,omitempty"`
	GS             *float64 `json:"gs,omitempty"`
	IAS            *float64 `json:"ias,omitempty"`
	TAS            *float64 `json:"tas,omitempty"`
	Mach           *float64 `json:"mach,omitempty"`
	Track          *float64 `json:"track,omitempty"`
	TrackRate      *float64 `json:"track_rate,omitempty"`
	MagHeading     *float64 `json:"mag_heading,omitempty"`
	TrueHeading    *float64 `json:"true_heading,omitempty"`
	Roll           *float64 `json:"roll,omitempty"`
	BaroRate       *float64 `json:"baro_rate,omitempty"`
	Squawk         *string  `json:"squawk,omitempty"`
	Emergency      *string  `json:"emergency,omitempty"`
	R              *string  `json:"r,omitempty"`
	T              *string  `json:"t,omitempty"`
	PosType        *string  `json:"type,omitempty"`
	Category       *string  `json:"category,omitempty"`
	Messages       *float64 `json:"messages,omitempty"`
	Seen           *float64 `json:"seen,omitempty"`
	SeenPos        *float64 `json:"seen_pos,omitempty"`
	RSSI           *float64 `json:"rssi,omitempty"`
	NIC            *float64 `json:"nic,omitempty"`
	NACp           *float64 `json:"nac_p,omitempty"`
	NACv           *float64 `json:"nac_v,omitempty"`
	SIL            *float64 `json:"sil,omitempty"`
	SILType        *string  `json:"sil_type,omitempty"`
	GVA            *float64 `json:"gva,omitempty"`
	SDA            *float64 `json:"sda,omitempty"`
	NICBaro        *float64 `json:"nic_baro,omitempty"`
	RC             *float64 `json:"rc,omitempty"`
	Version        *float64 `json:"version,omitempty"`
	SPI            *bool    `json:"spi,omitempty"`
	Alert          *bool    `json:"alert,omitempty"`
	NavQNH         *float64 `json:"nav_qnh,omitempty"`
	NavHeading     *float64 `json:"nav_heading,omitempty"`
	NavAltitudeMCP *float64 `json:"nav_altitude_mcp,omitempty"`
	NavAltitudeFMS *float64 `json:"nav_altitude_fms,omitempty"`
	WindDir        *float64 `json:"wd,omitempty"`
	WindSpeed      *float64 `json:"ws,omitempty"`
	OAT            *float64 `json:"oat,omitempty"`
	TAT            *float64 `json:"tat,omitempty"`
	Dst            *float64 `json:"dst,omitempty"`
	Dir            *float64 `json:"dir,omitempty"`
	DBFlags        *float64 `json:"dbFlags,omitempty"`
}

// Number represents a value that can either be a float or the literal
// string "ground" (the feed's sentinel for aircraft on the ground with no
// barometric altitude reading). safeAltBaro in the columnar encoder treats
// "ground" as null, matching §4.F.
type Number struct {
	Value  float64
	Ground bool
}

// UnmarshalJSON accepts either a bare number or the literal string
// "ground", matching the feed's encoding for aircraft with no barometric
// altitude reading.
func (n *Number) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == `"ground"` {
		n.Ground = true
		n.Value = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	n.Value = v
	n.Ground = false
	return nil
}

// MarshalJSON emits "ground" for a grounded reading, else the bare number.
func (n Number) MarshalJSON() ([]byte, error) {
	if n.Ground {
		return []byte(`"ground"`), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'g', -1, 64)), nil
}

// FeedResponse is the top-level ingest JSON document (§6).
type FeedResponse struct {
	Now       int64         `json:"now"`
	Messages  int64         `json:"messages"`
	Aircraft  []Observation `json:"aircraft"`
}

// StateEntry is the State Cache's per-aircraft row (§3).
type StateEntry struct {
	Hex             string
	LastHash        uint64
	LastSeenMs      int64
	LastUploadedMs  int64
	LastObservation Observation
}

// ChangeKind classifies a single observation against the State Cache.
type ChangeKind string

const (
	ChangeNew         ChangeKind = "new"
	ChangeUpdated     ChangeKind = "updated"
	ChangeReappeared  ChangeKind = "reappeared"
	ChangeUnchanged   ChangeKind = "unchanged"
)

// ChangeEvent is what the Change Classifier hands to the Batcher.
type ChangeEvent struct {
	Kind                  ChangeKind
	Observation           Observation
	SnapshotSeconds       int64
	SnapshotTotalMessages int64
}

// BatchItem is a single row inside a batch payload.
type BatchItem struct {
	Observation           Observation
	SnapshotSeconds       int64
	Hex                   string
	SnapshotTotalMessages int64
}

// Batch is a size-capped, ordered group of change events sharing a
// packageUuid and batchId (§3).
type Batch struct {
	Items       []BatchItem
	PackageUUID string
	BatchID     string
}

// EncryptionKey is a derived per-minute AES-256-GCM key (§3).
type EncryptionKey struct {
	KeyUUID    string
	RawKey     [32]byte
	MinuteEpoch int64
}

// EncryptedPackage is the result of encrypting a plaintext buffer (§4.G).
type EncryptedPackage struct {
	EncryptedBuffer []byte
	DataHash        [32]byte
	Size            int
	RawKey          [32]byte
	PackageUUID     string
	KeyUUID         string
}

// Position is the last known lat/lon/altitude for a track.
type Position struct {
	Lat     float64
	Lon     float64
	AltBaro float64
}

// TrackStatus is an AircraftTrack's lifecycle state.
type TrackStatus string

const (
	TrackStatusActive     TrackStatus = "active"
	TrackStatusOutOfRange TrackStatus = "out_of_range"
)

// AircraftTrack is the per-hex rollup row (§3).
type AircraftTrack struct {
	Hex            string
	Callsign       string
	Registration   string
	AircraftType   string
	FirstSeenMs    int64
	LastSeenMs     int64
	LastUploadedMs int64
	LastTxID       string
	UploadCount    int64
	TotalUpdates   int64
	Status         TrackStatus
	LastPosition   Position
}

// ArchiveRecord is a row in the clear archive_record table (§3).
type ArchiveRecord struct {
	ID             int64
	TxID           string
	Source         string
	Timestamp      time.Time
	AircraftCount  int
	FileSizeKB     float64
	Format         string
	ICAOAddresses  []string
	PackageUUID    string
	CreatedAt      time.Time
}

// EncryptedArchiveRecord is a row in encrypted_archive_records: the same
// shape as ArchiveRecord plus the authentication fields.
type EncryptedArchiveRecord struct {
	ArchiveRecord
	DataHash            string
	EncryptionAlgorithm string
}

// SystemStats is the singleton counters row (§3).
type SystemStats struct {
	ID int64

	ClearAttempted  int64
	ClearSucceeded  int64
	ClearFailed     int64
	ClearRetries    int64
	EncAttempted    int64
	EncSucceeded    int64
	EncFailed       int64
	EncRetries      int64

	TotalNew        int64
	TotalUpdates    int64
	TotalReappeared int64

	PeakTPM         int64
	SystemStartTime time.Time
	UpdatedAt       time.Time
}
