// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package shmem

import (
	"reflect"
	"testing"
)

func TestDescribeParseRoundTrip(t *testing.T) {
	segments := []*Segment{
		{Name: "fuzzfleet-run-1-0", Data: make([]byte, 4096)},
		{Name: "fuzzfleet-run-1-1", Data: make([]byte, 65536)},
	}

	description := describe(segments)
	table, err := parseDescription(description)
	if err != nil {
		t.Fatalf("parseDescription(%q): %v", description, err)
	}

	want := map[string]int{
		"fuzzfleet-run-1-0": 4096,
		"fuzzfleet-run-1-1": 65536,
	}
	if !reflect.DeepEqual(table, want) {
		t.Errorf("parsed table = %v, want %v", table, want)
	}
}

func TestParseDescriptionEmpty(t *testing.T) {
	table, err := parseDescription("")
	if err != nil {
		t.Fatalf("parseDescription(\"\"): %v", err)
	}
	if len(table) != 0 {
		t.Errorf("empty description produced %v", table)
	}
}

func TestParseDescriptionMalformed(t *testing.T) {
	for _, text := range []string{"noequals", "=4096", "seg=", "seg=abc", "seg=0", "seg=-1", "a=1,,b=2"} {
		if _, err := parseDescription(text); err == nil {
			t.Errorf("parseDescription(%q) succeeded, want error", text)
		}
	}
}

func TestHeapProviderHookProtocol(t *testing.T) {
	provider := NewHeapProvider()
	if _, err := provider.New(128); err != nil {
		t.Fatalf("New: %v", err)
	}

	if env := provider.ChildEnv(); env != nil {
		t.Errorf("ChildEnv before PreSpawn = %v, want nil", env)
	}

	if err := provider.PreSpawn(); err != nil {
		t.Fatalf("PreSpawn: %v", err)
	}
	env := provider.ChildEnv()
	if len(env) != 1 {
		t.Fatalf("ChildEnv after PreSpawn = %v, want one entry", env)
	}

	if err := provider.PostSpawn(false); err != nil {
		t.Fatalf("PostSpawn: %v", err)
	}
	if env := provider.ChildEnv(); env != nil {
		t.Errorf("ChildEnv after PostSpawn(false) = %v, want nil", env)
	}

	if provider.PreSpawns != 1 || provider.PostSpawns != 1 {
		t.Errorf("hook counts = (%d, %d), want (1, 1)", provider.PreSpawns, provider.PostSpawns)
	}
}
