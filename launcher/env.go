// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fuzzfleet/fuzzfleet/lib/cores"
	"github.com/fuzzfleet/fuzzfleet/lib/shmem"
)

// Environment markers. The launcher re-executes its own binary for
// every worker; these variables are how a new process discovers it is a
// worker rather than a fresh launcher invocation.
const (
	// EnvClientCore carries the worker's bound core index.
	EnvClientCore = "FUZZFLEET_LAUNCHER_CLIENT"

	// EnvClientIndex carries the worker's launch position, starting at
	// 1. The worker sleeps index*launch_delay_ms before dialing, and
	// under a centralized campaign index 1 is the main worker.
	EnvClientIndex = "FUZZFLEET_LAUNCHER_INDEX"

	// EnvCentralizedBroker marks the aggregation-tier broker process of
	// a centralized campaign.
	EnvCentralizedBroker = "FUZZFLEET_CENTRALIZED_BROKER"

	// EnvDebugOutput disables worker output redirection, letting every
	// worker write to the launcher's own stdout and stderr.
	EnvDebugOutput = "FUZZFLEET_DEBUG_OUTPUT"
)

type roleKind int

const (
	roleClient roleKind = iota + 1
	roleCentralizedBroker
)

// childRole is the identity a spawned process reads back from its
// environment markers.
type childRole struct {
	Kind  roleKind
	Core  cores.CoreID
	Index int
}

// envMarkers renders the role as environment entries for a child.
func (r childRole) envMarkers() []string {
	if r.Kind == roleCentralizedBroker {
		return []string{EnvCentralizedBroker + "=1"}
	}
	return []string{
		fmt.Sprintf("%s=%d", EnvClientCore, r.Core),
		fmt.Sprintf("%s=%d", EnvClientIndex, r.Index),
	}
}

// detectChildRole inspects the environment through getenv. It returns
// nil when no marker is present (this process is the launcher itself).
// A marker that is present but malformed is an error: it means a
// corrupted spawn, and guessing a role would start a worker with the
// wrong identity.
func detectChildRole(getenv func(string) (string, bool)) (*childRole, error) {
	if value, ok := getenv(EnvCentralizedBroker); ok {
		if value != "1" {
			return nil, fmt.Errorf("launcher: malformed %s value %q", EnvCentralizedBroker, value)
		}
		return &childRole{Kind: roleCentralizedBroker}, nil
	}

	coreText, ok := getenv(EnvClientCore)
	if !ok {
		return nil, nil
	}
	core, err := strconv.Atoi(coreText)
	if err != nil || core < 0 {
		return nil, fmt.Errorf("launcher: malformed %s value %q", EnvClientCore, coreText)
	}

	indexText, ok := getenv(EnvClientIndex)
	if !ok {
		return nil, fmt.Errorf("launcher: %s is set but %s is missing", EnvClientCore, EnvClientIndex)
	}
	index, err := strconv.Atoi(indexText)
	if err != nil || index < 1 {
		return nil, fmt.Errorf("launcher: malformed %s value %q", EnvClientIndex, indexText)
	}

	return &childRole{Kind: roleClient, Core: cores.CoreID(core), Index: index}, nil
}

// debugRequested reports whether the debug-output override is set.
func debugRequested(getenv func(string) (string, bool)) bool {
	_, ok := getenv(EnvDebugOutput)
	return ok
}

// scrubMarkers drops role and segment markers from an environment so a
// child never inherits a stale identity from its parent.
func scrubMarkers(env []string) []string {
	scrubbed := make([]string, 0, len(env))
	for _, entry := range env {
		if strings.HasPrefix(entry, EnvClientCore+"=") ||
			strings.HasPrefix(entry, EnvClientIndex+"=") ||
			strings.HasPrefix(entry, EnvCentralizedBroker+"=") ||
			strings.HasPrefix(entry, shmem.DescriptionEnv+"=") {
			continue
		}
		scrubbed = append(scrubbed, entry)
	}
	return scrubbed
}
