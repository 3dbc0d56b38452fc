// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

// sampleFrame is a representative internal message using cbor struct
// tags (the convention for wire types).
type sampleFrame struct {
	Kind    string         `cbor:"kind"`
	Core    int            `cbor:"core,omitempty"`
	Payload map[string]any `cbor:"payload,omitempty"`
}

func TestRoundTrip(t *testing.T) {
	original := sampleFrame{
		Kind: "stats",
		Core: 3,
		Payload: map[string]any{
			"executions": uint64(48213),
			"corpus":     uint64(97),
		},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleFrame
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Kind != original.Kind {
		t.Errorf("Kind = %q, want %q", decoded.Kind, original.Kind)
	}
	if decoded.Core != original.Core {
		t.Errorf("Core = %d, want %d", decoded.Core, original.Core)
	}
	if got := decoded.Payload["corpus"]; got != uint64(97) {
		t.Errorf("Payload[corpus] = %v, want 97", got)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	// Maps with the same entries must encode to identical bytes
	// regardless of insertion order.
	first, err := Marshal(map[string]int{"a": 1, "b": 2, "c": 3})
	if err != nil {
		t.Fatalf("Marshal first: %v", err)
	}
	second, err := Marshal(map[string]int{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Marshal second: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("same logical map produced different encodings:\n%x\n%x", first, second)
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{
		"kind":        "stats",
		"unknown_key": "future extension",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded sampleFrame
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal with unknown field: %v", err)
	}
	if decoded.Kind != "stats" {
		t.Errorf("Kind = %q, want %q", decoded.Kind, "stats")
	}
}

func TestStreamEncodeDecode(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)

	frames := []sampleFrame{
		{Kind: "hello", Core: 0},
		{Kind: "stats", Core: 0},
		{Kind: "bye", Core: 0},
	}
	for _, frame := range frames {
		if err := encoder.Encode(frame); err != nil {
			t.Fatalf("Encode %q: %v", frame.Kind, err)
		}
	}

	decoder := NewDecoder(&buffer)
	for index, want := range frames {
		var got sampleFrame
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode frame %d: %v", index, err)
		}
		if got.Kind != want.Kind {
			t.Errorf("frame %d Kind = %q, want %q", index, got.Kind, want.Kind)
		}
	}
}
