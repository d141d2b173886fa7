// Copyright 2026 The Cellbuild Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

type sampleRecord struct {
	ID      string            `cbor:"id"`
	Name    string            `cbor:"name"`
	Size    int64             `cbor:"size"`
	Created time.Time         `cbor:"created"`
	Labels  map[string]string `cbor:"labels,omitempty"`
}

func TestMarshalUnmarshalRoundtrip(t *testing.T) {
	original := sampleRecord{
		ID:      "6f1c2b8e-3f0a-4d55-9d1e-2a9c4b7e8f10",
		Name:    "k#memory-abc.o",
		Size:    4096,
		Created: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Labels:  map[string]string{"kind": "kernel"},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != original.ID || decoded.Name != original.Name || decoded.Size != original.Size ||
		!decoded.Created.Equal(original.Created) || decoded.Labels["kind"] != "kernel" {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestMarshalDeterministicMapOrder(t *testing.T) {
	first, err := Marshal(map[string]int{"zeta": 1, "alpha": 2, "mid": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(map[string]int{"mid": 3, "alpha": 2, "zeta": 1})
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("deterministic encoding violated: %x != %x", first, again)
		}
	}
}

func TestDiagnoseShowsTimeAsText(t *testing.T) {
	data, err := Marshal(sampleRecord{Name: "shell", Created: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	diagnostic, err := Diagnose(data)
	if err != nil {
		t.Fatalf("Diagnose: %v", err)
	}
	if !strings.Contains(diagnostic, `"2026-03-01T12:00:00Z"`) {
		t.Errorf("Diagnose() = %s, want an RFC 3339 time string", diagnostic)
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	data, err := Marshal(map[string]any{"name": "shell", "future_field": true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded sampleRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Name != "shell" {
		t.Errorf("Name = %q, want %q", decoded.Name, "shell")
	}
}
