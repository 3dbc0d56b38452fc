// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package watchdog provides atomic run-marker files for detecting
// worker restarts. A worker bumps its marker when its endpoint comes
// up; a marker that already exists means this process is a restart of
// a crashed worker rather than a first launch, which is what the
// "on-restart" state-persistence policy keys off.
//
// Marker files are written atomically (temporary file, fsync, rename)
// so a worker crashing mid-write never leaves a corrupt marker for its
// successor.
package watchdog
