// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package fingerprint

import (
	"testing"

	"github.com/skyarchive/skyarchive/internal/model"
)

func ptrFloat(v float64) *float64 { return &v }
func ptrStr(v string) *string     { return &v }

func sampleObservation() model.Observation {
	return model.Observation{
		Hex:       "48436b",
		Flight:    ptrStr("KLM855"),
		Lat:       ptrFloat(40.9258),
		Lon:       ptrFloat(47.0615),
		AltBaro:   &model.Number{Value: 37000},
		GS:        ptrFloat(575.3),
		Track:     ptrFloat(77.65),
		Squawk:    ptrStr("6025"),
		Emergency: ptrStr("none"),
	}
}

func TestCompute_Deterministic(t *testing.T) {
	a := sampleObservation()
	b := sampleObservation()

	if Compute(a) != Compute(b) {
		t.Fatalf("equal observations produced different fingerprints")
	}
}

func TestCompute_FieldChangeAltersHash(t *testing.T) {
	base := sampleObservation()
	changed := sampleObservation()
	changed.AltBaro = &model.Number{Value: 37200}

	if Compute(base) == Compute(changed) {
		t.Fatalf("differing alt_baro produced identical fingerprints")
	}
}

func TestCompute_IgnoresFieldsOutsideProjection(t *testing.T) {
	base := sampleObservation()
	changed := sampleObservation()
	rssi := -12.5
	changed.RSSI = &rssi

	if Compute(base) != Compute(changed) {
		t.Fatalf("rssi is not part of the canonical projection and should not affect the hash")
	}
}

func TestCompute_GroundSentinelIgnoresValue(t *testing.T) {
	base := sampleObservation()
	base.AltBaro = &model.Number{Ground: true}
	other := sampleObservation()
	other.AltBaro = &model.Number{Ground: true, Value: 99999}

	if Compute(base) != Compute(other) {
		t.Fatalf("two grounded readings with different underlying values should fingerprint identically")
	}
}

func TestCompute_MissingFieldsRenderEmpty(t *testing.T) {
	withNil := model.Observation{Hex: "abc123"}
	withEmpty := model.Observation{Hex: "abc123", Flight: ptrStr("")}

	if Compute(withNil) != Compute(withEmpty) {
		t.Fatalf("a nil field and an empty-string field should render identically in the canonical projection")
	}
}
