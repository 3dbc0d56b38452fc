// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package watchdog

import (
	"fmt"
	"os"
	"time"

	"github.com/fuzzfleet/fuzzfleet/lib/codec"
)

// Marker records one worker's launch history. Written before the
// worker enters its loop, read by a successor after a crash restart.
type Marker struct {
	// Tag is the campaign run-configuration tag.
	Tag string `cbor:"tag"`

	// Core is the worker's bound core index.
	Core int `cbor:"core"`

	// Launches counts how many times a worker for this (tag, core)
	// has started. 1 means first launch; >1 means restart.
	Launches int `cbor:"launches"`

	// LastStart is when the most recent launch bumped the marker.
	LastStart time.Time `cbor:"last_start"`
}

// Bump increments the marker at path, creating it on first launch,
// and returns the updated marker. The write is atomic: a reader never
// sees a partial marker.
func Bump(path, tag string, core int, now time.Time) (Marker, error) {
	marker := Marker{Tag: tag, Core: core}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := codec.Unmarshal(data, &marker); err != nil {
			return Marker{}, fmt.Errorf("parsing run marker %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// First launch.
	default:
		return Marker{}, fmt.Errorf("reading run marker %s: %w", path, err)
	}

	marker.Launches++
	marker.LastStart = now

	if err := write(path, marker); err != nil {
		return Marker{}, err
	}
	return marker, nil
}

// Read returns the marker at path. A missing file is reported via
// os.IsNotExist on the wrapped error.
func Read(path string) (Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	var marker Marker
	if err := codec.Unmarshal(data, &marker); err != nil {
		return Marker{}, fmt.Errorf("parsing run marker %s: %w", path, err)
	}
	return marker, nil
}

// Clear removes the marker. Idempotent: a missing file is not an
// error.
func Clear(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing run marker %s: %w", path, err)
	}
	return nil
}

// write persists the marker atomically: temporary file in the same
// directory, fsync, rename into place.
func write(path string, marker Marker) error {
	data, err := codec.Marshal(marker)
	if err != nil {
		return fmt.Errorf("marshaling run marker: %w", err)
	}

	temporaryPath := path + ".tmp"
	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary run marker: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary run marker: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary run marker: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary run marker: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming run marker into place: %w", err)
	}
	return nil
}
