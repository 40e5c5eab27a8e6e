// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package columnar encodes a batch of aircraft observations into a
// compressed Parquet file using the fixed aviation schema in §4.F.
package columnar

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/skyarchive/skyarchive/internal/model"
)

// schema lists the physical columns in the order documented in §4.F.
// Every column is nullable except snapshot_timestamp, icao_address, and
// snapshot_total_messages.
var schema = arrow.NewSchema([]arrow.Field{
	{Name: "snapshot_timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "icao_address", Type: arrow.BinaryTypes.String},
	{Name: "snapshot_total_messages", Type: arrow.PrimitiveTypes.Int32},

	{Name: "callsign", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "registration", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "aircraft_type", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "type_description", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "emitter_category", Type: arrow.BinaryTypes.String, Nullable: true},

	{Name: "latitude", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "longitude", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "position_source", Type: arrow.BinaryTypes.String, Nullable: true},

	{Name: "altitude_baro_ft", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "altitude_geom_ft", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "vertical_rate_baro_fpm", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "vertical_rate_geom_fpm", Type: arrow.PrimitiveTypes.Int32, Nullable: true},

	{Name: "ground_speed_kts", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "indicated_airspeed_kts", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "true_airspeed_kts", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "mach_number", Type: arrow.PrimitiveTypes.Float64, Nullable: true},

	{Name: "track_degrees", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "track_rate_deg_sec", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "magnetic_heading_degrees", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "true_heading_degrees", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "roll_degrees", Type: arrow.PrimitiveTypes.Float64, Nullable: true},

	{Name: "wind_direction_degrees", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "wind_speed_kts", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "outside_air_temp_c", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "total_air_temp_c", Type: arrow.PrimitiveTypes.Int32, Nullable: true},

	{Name: "nav_qnh_mb", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "nav_heading_degrees", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "nav_altitude_mcp_ft", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "nav_altitude_fms_ft", Type: arrow.PrimitiveTypes.Int32, Nullable: true},

	{Name: "squawk_code", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "emergency_status", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "spi_flag", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},
	{Name: "alert_flag", Type: arrow.FixedWidthTypes.Boolean, Nullable: true},

	{Name: "adsb_version", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "navigation_integrity_category", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "navigation_accuracy_position", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "navigation_accuracy_velocity", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "source_integrity_level", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "geometric_vertical_accuracy", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "system_design_assurance", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "nic_baro", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "radius_of_containment", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "source_integrity_level_type", Type: arrow.BinaryTypes.String, Nullable: true},

	{Name: "messages_received", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "last_seen_seconds", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "last_position_seen_seconds", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "rssi_dbm", Type: arrow.PrimitiveTypes.Float64, Nullable: true},

	{Name: "distance_from_receiver_nm", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "bearing_from_receiver_degrees", Type: arrow.PrimitiveTypes.Float64, Nullable: true},

	{Name: "database_flags", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
}, nil)

// safeNumber nulls out missing/NaN values, per §4.F. The "ground"
// altitude sentinel is handled by safeAltBaro.
func safeNumber(v *float64) (float64, bool) {
	if v == nil || math.IsNaN(*v) {
		return 0, false
	}
	return *v, true
}

func safeAltBaro(v *model.Number) (float64, bool) {
	if v == nil || v.Ground || math.IsNaN(v.Value) {
		return 0, false
	}
	return v.Value, true
}

// safeString nulls out missing/empty-after-trim values, per §4.F.
func safeString(v *string) (string, bool) {
	if v == nil {
		return "", false
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return "", false
	}
	return trimmed, true
}

// Encode writes items as a single Parquet file using LZ4 compression and
// returns the file's bytes. It writes to tmpfs (/dev/shm) when available,
// else the OS temp directory, and deletes the file as soon as the bytes
// are read back into memory.
func Encode(items []model.BatchItem) ([]byte, error) {
	pool := memory.NewGoAllocator()
	builder := array.NewRecordBuilder(pool, schema)
	defer builder.Release()

	for _, item := range items {
		appendRow(builder, item)
	}

	record := builder.NewRecord()
	defer record.Release()

	tmpDir := tmpfsDir()
	file, err := os.CreateTemp(tmpDir, "skyarchive-batch-*.parquet")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := file.Name()
	defer os.Remove(path)

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Lz4Raw))
	writer, err := pqarrow.NewFileWriter(schema, file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		writer.Close()
		file.Close()
		return nil, fmt.Errorf("write parquet record: %w", err)
	}
	if err := writer.Close(); err != nil {
		file.Close()
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read back encoded batch: %w", err)
	}
	return data, nil
}

func tmpfsDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return filepath.Clean(os.TempDir())
}

func appendRow(b *array.RecordBuilder, item model.BatchItem) {
	obs := item.Observation

	b.Field(0).(*array.Int64Builder).Append(item.SnapshotSeconds * 1000)
	b.Field(1).(*array.StringBuilder).Append(item.Hex)
	b.Field(2).(*array.Int32Builder).Append(int32(item.SnapshotTotalMessages))

	appendOptString(b.Field(3), obs.Flight)
	appendOptString(b.Field(4), obs.R)
	appendOptString(b.Field(5), obs.T)
	// type_description needs an ICAO aircraft-type database lookup; the
	// live feed carries only the type designator (obs.T), never a
	// human-readable description, so this column has no input to map.
	appendOptString(b.Field(6), nil)
	appendOptString(b.Field(7), obs.Category)

	appendOptFloat(b.Field(8), obs.Lat)
	appendOptFloat(b.Field(9), obs.Lon)
	appendOptString(b.Field(10), obs.PosType)

	appendOptInt32FromAlt(b.Field(11), obs.AltBaro)
	appendOptInt32(b.Field(12), obs.AltGeom)
	appendOptInt32(b.Field(13), obs.BaroRate)
	// vertical_rate_geom_fpm: the feed's geom_rate field is not carried on
	// Observation; no column consumer needs it yet.
	appendOptInt32(b.Field(14), nil)

	appendOptFloat(b.Field(15), obs.GS)
	appendOptInt32(b.Field(16), obs.IAS)
	appendOptInt32(b.Field(17), obs.TAS)
	appendOptFloat(b.Field(18), obs.Mach)

	appendOptFloat(b.Field(19), obs.Track)
	appendOptFloat(b.Field(20), obs.TrackRate)
	appendOptFloat(b.Field(21), obs.MagHeading)
	appendOptFloat(b.Field(22), obs.TrueHeading)
	appendOptFloat(b.Field(23), obs.Roll)

	appendOptInt32(b.Field(24), obs.WindDir)
	appendOptInt32(b.Field(25), obs.WindSpeed)
	appendOptInt32(b.Field(26), obs.OAT)
	appendOptInt32(b.Field(27), obs.TAT)

	appendOptFloat(b.Field(28), obs.NavQNH)
	appendOptFloat(b.Field(29), obs.NavHeading)
	appendOptInt32(b.Field(30), obs.NavAltitudeMCP)
	appendOptInt32(b.Field(31), obs.NavAltitudeFMS)

	appendOptString(b.Field(32), obs.Squawk)
	appendOptString(b.Field(33), obs.Emergency)
	appendOptBool(b.Field(34), obs.SPI)
	appendOptBool(b.Field(35), obs.Alert)

	appendOptInt32(b.Field(36), obs.Version)
	appendOptInt32(b.Field(37), obs.NIC)
	appendOptInt32(b.Field(38), obs.NACp)
	appendOptInt32(b.Field(39), obs.NACv)
	appendOptInt32(b.Field(40), obs.SIL)
	appendOptInt32(b.Field(41), obs.GVA)
	appendOptInt32(b.Field(42), obs.SDA)
	appendOptInt32(b.Field(43), obs.NICBaro)
	appendOptInt32(b.Field(44), obs.RC)
	appendOptString(b.Field(45), obs.SILType)

	appendOptInt64(b.Field(46), obs.Messages)
	appendOptFloat(b.Field(47), obs.Seen)
	appendOptFloat(b.Field(48), obs.SeenPos)
	appendOptFloat(b.Field(49), obs.RSSI)

	appendOptFloat(b.Field(50), obs.Dst)
	appendOptFloat(b.Field(51), obs.Dir)

	appendOptInt32(b.Field(52), obs.DBFlags)
}

func appendOptString(fb array.Builder, v *string) {
	sb := fb.(*array.StringBuilder)
	s, ok := safeString(v)
	if !ok {
		sb.AppendNull()
		return
	}
	sb.Append(s)
}

func appendOptFloat(fb array.Builder, v *float64) {
	f := fb.(*array.Float64Builder)
	n, ok := safeNumber(v)
	if !ok {
		f.AppendNull()
		return
	}
	f.Append(n)
}

func appendOptInt32(fb array.Builder, v *float64) {
	ib := fb.(*array.Int32Builder)
	n, ok := safeNumber(v)
	if !ok {
		ib.AppendNull()
		return
	}
	ib.Append(int32(n))
}

func appendOptInt32FromAlt(fb array.Builder, v *model.Number) {
	ib := fb.(*array.Int32Builder)
	n, ok := safeAltBaro(v)
	if !ok {
		ib.AppendNull()
		return
	}
	ib.Append(int32(n))
}

func appendOptInt64(fb array.Builder, v *float64) {
	ib := fb.(*array.Int64Builder)
	n, ok := safeNumber(v)
	if !ok {
		ib.AppendNull()
		return
	}
	ib.Append(int64(n))
}

func appendOptBool(fb array.Builder, v *bool) {
	bb := fb.(*array.BooleanBuilder)
	if v == nil {
		bb.AppendNull()
		return
	}
	bb.Append(*v)
}

