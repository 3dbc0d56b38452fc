// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package cores

import "runtime"

// Available returns a dense range over the runtime's CPU count. Only
// Linux exposes per-core online state this layer can read.
func Available() ([]CoreID, error) {
	return denseRange(runtime.NumCPU()), nil
}
