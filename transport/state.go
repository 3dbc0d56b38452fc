// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/fuzzfleet/fuzzfleet/lib/codec"
)

// RestoredState is a worker state snapshot recovered from a previous
// run. It stays opaque to the topology layer; the worker callback
// decodes it into its own state type.
type RestoredState struct {
	raw []byte
}

// DecodeInto decodes the snapshot into v.
func (s *RestoredState) DecodeInto(v any) error {
	return codec.Unmarshal(s.raw, v)
}

// Size returns the decoded snapshot size in bytes.
func (s *RestoredState) Size() int { return len(s.raw) }

// stateStore persists one worker's state snapshot, keyed by campaign
// tag and core. Snapshots are CBOR compressed with zstd: they are
// written rarely (cold path) and corpus metadata compresses well.
type stateStore struct {
	dir  string
	tag  Tag
	core int
}

func (s *stateStore) snapshotPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("fuzzfleet-state-%s-%d.cbor.zst", s.tag, s.core))
}

func (s *stateStore) markerPath() string {
	return filepath.Join(s.dir, fmt.Sprintf("fuzzfleet-run-%s-%d.cbor", s.tag, s.core))
}

// load reads the snapshot, returning nil when none exists.
func (s *stateStore) load() (*RestoredState, error) {
	file, err := os.Open(s.snapshotPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening state snapshot: %w", err)
	}
	defer file.Close()

	reader, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("reading state snapshot: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decompressing state snapshot: %w", err)
	}
	return &RestoredState{raw: raw}, nil
}

// save writes v as the current snapshot, atomically.
func (s *stateStore) save(v any) error {
	raw, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding state snapshot: %w", err)
	}

	var compressed bytes.Buffer
	writer, err := zstd.NewWriter(&compressed)
	if err != nil {
		return fmt.Errorf("compressing state snapshot: %w", err)
	}
	if _, err := writer.Write(raw); err != nil {
		writer.Close()
		return fmt.Errorf("compressing state snapshot: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("compressing state snapshot: %w", err)
	}

	path := s.snapshotPath()
	temporaryPath := path + ".tmp"
	if err := os.WriteFile(temporaryPath, compressed.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing state snapshot: %w", err)
	}
	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming state snapshot into place: %w", err)
	}
	return nil
}

// clear removes the snapshot. Missing is fine.
func (s *stateStore) clear() error {
	err := os.Remove(s.snapshotPath())
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
