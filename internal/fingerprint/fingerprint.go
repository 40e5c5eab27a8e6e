// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

// Package fingerprint maps an aircraft observation to a fixed-fields
// 64-bit hash, used by the change classifier to detect meaningful field
// changes without keeping the full previous observation around.
package fingerprint

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/skyarchive/skyarchive/internal/model"
)

// Compute hashes the canonical projection lat|lon|alt_baro|alt_geom|gs|
// track|baro_rate|squawk|emergency|flight. Missing fields render as an
// empty substring. Equal input always yields equal output.
func Compute(obs model.Observation) uint64 {
	var b strings.Builder
	b.Grow(128)

	writeFloat(&b, obs.Lat)
	b.WriteByte('|')
	writeFloat(&b, obs.Lon)
	b.WriteByte('|')
	writeAltBaro(&b, obs.AltBaro)
	b.WriteByte('|')
	writeFloat(&b, obs.AltGeom)
	b.WriteByte('|')
	writeFloat(&b, obs.GS)
	b.WriteByte('|')
	writeFloat(&b, obs.Track)
	b.WriteByte('|')
	writeFloat(&b, obs.BaroRate)
	b.WriteByte('|')
	writeString(&b, obs.Squawk)
	b.WriteByte('|')
	writeString(&b, obs.Emergency)
	b.WriteByte('|')
	writeString(&b, obs.Flight)

	return xxhash.Sum64String(b.String())
}

func writeFloat(b *strings.Builder, v *float64) {
	if v == nil {
		return
	}
	b.WriteString(strconv.FormatFloat(*v, 'g', -1, 64))
}

func writeString(b *strings.Builder, v *string) {
	if v == nil {
		return
	}
	b.WriteString(*v)
}

func writeAltBaro(b *strings.Builder, v *model.Number) {
	if v == nil || v.Ground {
		return
	}
	b.WriteString(strconv.FormatFloat(v.Value, 'g', -1, 64))
}
