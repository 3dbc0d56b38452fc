// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"fmt"
	"os"
)

// Strategy selects how worker processes are created.
type Strategy int

const (
	// StrategyAuto picks the native strategy where the platform
	// supports it and falls back to re-exec elsewhere.
	StrategyAuto Strategy = iota

	// StrategyNative duplicates the launcher with the platform process
	// primitives: the worker is started from the running binary's own
	// image path, file descriptors are installed directly, and shutdown
	// is an interrupt signal. Unix only.
	StrategyNative

	// StrategyReExec re-executes the launcher binary through the
	// portable process API. Works everywhere; shutdown is a hard kill.
	StrategyReExec
)

// ParseStrategy maps the config-file spelling to the strategy.
func ParseStrategy(text string) (Strategy, error) {
	switch text {
	case "", "auto":
		return StrategyAuto, nil
	case "native":
		return StrategyNative, nil
	case "re-exec":
		return StrategyReExec, nil
	default:
		return 0, fmt.Errorf("unknown spawn strategy %q", text)
	}
}

// String renders the strategy in its config-file spelling.
func (s Strategy) String() string {
	switch s {
	case StrategyAuto:
		return "auto"
	case StrategyNative:
		return "native"
	case StrategyReExec:
		return "re-exec"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// childSpec describes one worker process to create. A nil stdout or
// stderr inherits the launcher's own stream.
type childSpec struct {
	env    []string
	stdout *os.File
	stderr *os.File
}

// handle is one live worker process.
type handle interface {
	// Pid returns the worker's process id.
	Pid() int

	// Wait blocks until the worker exits and returns its exit code.
	// Signal-terminated workers report 128 plus the signal number where
	// the platform exposes it.
	Wait() (int, error)

	// Shutdown asks the worker to stop. Safe to call on a worker that
	// has already exited.
	Shutdown() error
}

// topology creates worker processes. Both strategies implement it; the
// launcher is otherwise indifferent to how a worker came to exist.
type topology interface {
	Spawn(spec childSpec) (handle, error)
}

// newTopology builds the topology for the chosen strategy.
func newTopology(strategy Strategy) (topology, error) {
	switch strategy {
	case StrategyAuto:
		return defaultTopology()
	case StrategyNative:
		return nativeTopology()
	case StrategyReExec:
		return &reexecTopology{}, nil
	default:
		return nil, fmt.Errorf("unknown spawn strategy %d", int(strategy))
	}
}
