// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"testing"

	"github.com/fuzzfleet/fuzzfleet/lib/codec"
	"github.com/fuzzfleet/fuzzfleet/monitor"
)

func TestFrameRoundTrip(t *testing.T) {
	payload, err := codec.Marshal(map[string]any{"input": "abc"})
	if err != nil {
		t.Fatalf("Marshal payload: %v", err)
	}
	original := &frame{
		Kind:    frameEvent,
		Tag:     NewTag("round-trip"),
		Client:  7,
		Core:    3,
		Payload: payload,
	}

	var buffer bytes.Buffer
	if err := writeFrame(&buffer, original); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	decoded, err := readFrame(&buffer)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}

	if decoded.Kind != original.Kind {
		t.Errorf("Kind = %d, want %d", decoded.Kind, original.Kind)
	}
	if decoded.Tag != original.Tag {
		t.Errorf("Tag = %s, want %s", decoded.Tag, original.Tag)
	}
	if decoded.Client != 7 || decoded.Core != 3 {
		t.Errorf("identity = (%d, %d), want (7, 3)", decoded.Client, decoded.Core)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Error("payload did not round-trip")
	}
}

func TestFrameLargePayloadCompresses(t *testing.T) {
	// Highly repetitive payload well above the compression threshold.
	big := bytes.Repeat([]byte("fuzzing finding corpus entry "), 4096)
	payload, err := codec.Marshal(big)
	if err != nil {
		t.Fatalf("Marshal payload: %v", err)
	}
	original := &frame{Kind: frameEvent, Tag: NewTag("compress"), Payload: payload}

	var buffer bytes.Buffer
	if err := writeFrame(&buffer, original); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	if buffer.Len() >= len(payload) {
		t.Errorf("framed size %d not smaller than payload %d; compression did not engage", buffer.Len(), len(payload))
	}
	if buffer.Bytes()[0] != flagLZ4 {
		t.Errorf("flag byte = %d, want lz4", buffer.Bytes()[0])
	}

	decoded, err := readFrame(&buffer)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Error("compressed payload did not round-trip")
	}
}

func TestFrameStatsRoundTrip(t *testing.T) {
	original := &frame{
		Kind: frameStats,
		Tag:  NewTag("stats"),
		Stats: &monitor.ClientStats{
			Core:       2,
			Executions: 123456,
			CorpusSize: 78,
			Objectives: 1,
		},
	}
	var buffer bytes.Buffer
	if err := writeFrame(&buffer, original); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	decoded, err := readFrame(&buffer)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if decoded.Stats == nil {
		t.Fatal("Stats = nil after round trip")
	}
	if decoded.Stats.Executions != 123456 {
		t.Errorf("Executions = %d, want 123456", decoded.Stats.Executions)
	}
}

func TestWriteFrameRejectsOversizedBody(t *testing.T) {
	payload, err := codec.Marshal(make([]byte, maxFrameSize+1))
	if err != nil {
		t.Fatalf("Marshal payload: %v", err)
	}

	var buffer bytes.Buffer
	if err := writeFrame(&buffer, &frame{Kind: frameEvent, Tag: 1, Payload: payload}); err == nil {
		t.Error("writeFrame accepted a frame above the size limit")
	}
	if buffer.Len() != 0 {
		t.Errorf("writeFrame wrote %d bytes before rejecting the frame", buffer.Len())
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	header := make([]byte, headerSize)
	header[0] = flagRaw
	header[1], header[2], header[3], header[4] = 0xff, 0xff, 0xff, 0xff
	if _, err := readFrame(bytes.NewReader(header)); err == nil {
		t.Error("readFrame accepted an oversized length prefix")
	}
}

func TestReadFrameRejectsUnknownFlag(t *testing.T) {
	var buffer bytes.Buffer
	if err := writeFrame(&buffer, &frame{Kind: frameBye, Tag: 1}); err != nil {
		t.Fatalf("writeFrame: %v", err)
	}
	raw := buffer.Bytes()
	raw[0] = 0x7f
	if _, err := readFrame(bytes.NewReader(raw)); err == nil {
		t.Error("readFrame accepted an unknown flag byte")
	}
}

func TestNewTagStableAndDistinct(t *testing.T) {
	first := NewTag("campaign-a")
	second := NewTag("campaign-a")
	other := NewTag("campaign-b")

	if first != second {
		t.Errorf("same name produced different tags: %s vs %s", first, second)
	}
	if first == other {
		t.Errorf("different names produced the same tag %s", first)
	}
	if first == TagAlways {
		t.Error("derived tag collided with the reserved always-match value")
	}
}
