// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !unix

package launcher

import (
	"errors"

	"github.com/fuzzfleet/fuzzfleet/lib/shmem"
)

// defaultTopology resolves StrategyAuto: re-exec off unix.
func defaultTopology() (topology, error) {
	return &reexecTopology{}, nil
}

func nativeTopology() (topology, error) {
	return nil, errors.New("launcher: the native spawn strategy requires a unix system")
}

// attachProvider builds the worker-side provider. Without shared
// mappings the segments are process-local; cross-process payloads fall
// back to the wire.
func attachProvider() shmem.Provider {
	return shmem.NewHeapProvider()
}

func newOwnedProvider(prefix string) shmem.Provider {
	return shmem.NewHeapProvider()
}
