// Copyright 2026 The EvidenceFS Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type testRecord struct {
	ID       uint64         `cbor:"1,keyasint"`
	Name     string         `cbor:"2,keyasint,omitempty"`
	Children []uint64       `cbor:"3,keyasint,omitempty"`
	Extra    map[string]any `cbor:"4,keyasint,omitempty"`
}

func TestMarshalRoundtrip(t *testing.T) {
	original := testRecord{
		ID:       42,
		Name:     "evidence.dd",
		Children: []uint64{7, 9, 11},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded testRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.ID != original.ID || decoded.Name != original.Name {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", decoded, original)
	}
	if len(decoded.Children) != len(original.Children) {
		t.Errorf("Children length = %d, want %d", len(decoded.Children), len(original.Children))
	}
}

func TestMarshalDeterministic(t *testing.T) {
	record := testRecord{
		ID:   1,
		Name: "a",
		Extra: map[string]any{
			"examiner": "jdoe",
			"case":     "2026-0114",
			"tool":     "acquire",
		},
	}

	first, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("deterministic encoding produced different bytes for the same value")
	}
}

func TestUnmarshalAnyMapType(t *testing.T) {
	data, err := Marshal(map[string]any{"key": "value"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	typed, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded type = %T, want map[string]any", decoded)
	}
	if typed["key"] != "value" {
		t.Errorf("decoded[key] = %v, want value", typed["key"])
	}
}

func TestUnmarshalIgnoresUnknownFields(t *testing.T) {
	// A future format revision may add fields; older readers must
	// still decode the fields they know.
	type extended struct {
		ID     uint64 `cbor:"1,keyasint"`
		Name   string `cbor:"2,keyasint,omitempty"`
		Future string `cbor:"99,keyasint,omitempty"`
	}

	data, err := Marshal(extended{ID: 5, Name: "x", Future: "ignore me"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded testRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.ID != 5 || decoded.Name != "x" {
		t.Errorf("decoded = %+v, want ID=5 Name=x", decoded)
	}
}
