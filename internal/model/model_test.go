// Skyarchive - Aircraft Telemetry Ingest and Dual Archive Engine
// Copyright 2026 Skyarchive Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/skyarchive/skyarchive

package model

import (
	"encoding/json"
	"testing"
)

func TestNumber_UnmarshalsGroundSentinel(t *testing.T) {
	var n Number
	if err := json.Unmarshal([]byte(`"ground"`), &n); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !n.Ground {
		t.Fatalf("expected Ground=true for the \"ground\" sentinel")
	}
}

func TestNumber_UnmarshalsBareFloat(t *testing.T) {
	var n Number
	if err := json.Unmarshal([]byte(`37000.5`), &n); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if n.Ground || n.Value != 37000.5 {
		t.Fatalf("expected Value=37000.5 Ground=false, got %+v", n)
	}
}

func TestNumber_MarshalRoundTrips(t *testing.T) {
	for _, n := range []Number{{Value: 12345.6}, {Ground: true}} {
		data, err := json.Marshal(n)
		if err != nil {
			t.Fatalf("Marshal(%+v): %v", n, err)
		}
		var back Number
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if back != n {
			t.Fatalf("round-trip mismatch: got %+v want %+v", back, n)
		}
	}
}

func TestObservation_UnmarshalsAltBaroBothForms(t *testing.T) {
	var a Observation
	if err := json.Unmarshal([]byte(`{"hex":"48436b","alt_baro":37000}`), &a); err != nil {
		t.Fatalf("Unmarshal numeric alt_baro: %v", err)
	}
	if a.AltBaro == nil || a.AltBaro.Ground || a.AltBaro.Value != 37000 {
		t.Fatalf("unexpected AltBaro: %+v", a.AltBaro)
	}

	var b Observation
	if err := json.Unmarshal([]byte(`{"hex":"48436b","alt_baro":"ground"}`), &b); err != nil {
		t.Fatalf("Unmarshal ground alt_baro: %v", err)
	}
	if b.AltBaro == nil || !b.AltBaro.Ground {
		t.Fatalf("unexpected AltBaro: %+v", b.AltBaro)
	}
}
