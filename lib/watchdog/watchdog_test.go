// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBumpFirstLaunch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marker.cbor")
	start := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	marker, err := Bump(path, "nightly-png", 3, start)
	if err != nil {
		t.Fatalf("Bump: %v", err)
	}
	if marker.Launches != 1 {
		t.Errorf("Launches = %d, want 1 on first launch", marker.Launches)
	}
	if marker.Tag != "nightly-png" || marker.Core != 3 {
		t.Errorf("marker identity = (%q, %d), want (nightly-png, 3)", marker.Tag, marker.Core)
	}
}

func TestBumpCountsRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marker.cbor")
	start := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	for launch := 1; launch <= 3; launch++ {
		marker, err := Bump(path, "tag", 0, start.Add(time.Duration(launch)*time.Minute))
		if err != nil {
			t.Fatalf("Bump %d: %v", launch, err)
		}
		if marker.Launches != launch {
			t.Errorf("Launches after bump %d = %d", launch, marker.Launches)
		}
	}

	marker, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !marker.LastStart.Equal(start.Add(3 * time.Minute)) {
		t.Errorf("LastStart = %v, want the third bump's time", marker.LastStart)
	}
}

func TestClearIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marker.cbor")
	if _, err := Bump(path, "tag", 0, time.Now()); err != nil {
		t.Fatalf("Bump: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := Clear(path); err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if _, err := Read(path); !os.IsNotExist(err) {
		t.Errorf("Read after Clear: err = %v, want not-exist", err)
	}
}

func TestMarkerFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marker.cbor")
	if _, err := Bump(path, "tag", 0, time.Now()); err != nil {
		t.Fatalf("Bump: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if permissions := info.Mode().Perm(); permissions != 0600 {
		t.Errorf("permissions = %04o, want 0600", permissions)
	}
}
