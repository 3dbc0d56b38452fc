// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"fmt"

	"github.com/fuzzfleet/fuzzfleet/lib/cores"
)

// ErrShuttingDown is the clean terminal result of a broker whose
// shutdown condition was met (all clients detached, or the quota of
// disconnects reached). Launchers treat it as success.
var ErrShuttingDown = errors.New("transport: shutting down")

// Kind distinguishes the endpoint roles a process can hold.
type Kind int

const (
	// KindBroker is a first-tier broker relaying between the workers
	// of one machine.
	KindBroker Kind = iota + 1

	// KindClient is a worker endpoint bound to one core.
	KindClient

	// KindCentralizedBroker is the aggregation tier above several
	// first-tier brokers.
	KindCentralizedBroker
)

// String names the kind for logs.
func (k Kind) String() string {
	switch k {
	case KindBroker:
		return "broker"
	case KindClient:
		return "client"
	case KindCentralizedBroker:
		return "centralized-broker"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Role is the endpoint role one process instance carries. Exactly one
// process per launch carries each client role; exactly one per tier
// carries a broker role.
type Role struct {
	Kind Kind

	// Core is the bound core for KindClient, unused otherwise.
	Core cores.CoreID
}

// BrokerRole returns the first-tier broker role.
func BrokerRole() Role { return Role{Kind: KindBroker} }

// ClientRole returns the worker role bound to core.
func ClientRole(core cores.CoreID) Role {
	return Role{Kind: KindClient, Core: core}
}

// String renders the role for logs.
func (r Role) String() string {
	if r.Kind == KindClient {
		return fmt.Sprintf("client(core=%d)", r.Core)
	}
	return r.Kind.String()
}

// SaveStatePolicy controls when a worker persists its state snapshot.
type SaveStatePolicy int

const (
	// SaveOnRestart persists state so a crashed worker's successor can
	// resume; a first launch restores nothing.
	SaveOnRestart SaveStatePolicy = iota

	// SaveAlways persists on every SaveState call and restores
	// whenever a snapshot exists.
	SaveAlways

	// SaveNever neither persists nor restores.
	SaveNever

	// SaveAdaptive behaves like SaveOnRestart but rate-limits
	// snapshot writes using the endpoint's time reference, for
	// workers whose state serializes slowly relative to their
	// execution rate.
	SaveAdaptive
)

// ParseSaveStatePolicy maps the config-file spelling to the policy.
func ParseSaveStatePolicy(text string) (SaveStatePolicy, error) {
	switch text {
	case "on-restart", "":
		return SaveOnRestart, nil
	case "always":
		return SaveAlways, nil
	case "never":
		return SaveNever, nil
	case "adaptive":
		return SaveAdaptive, nil
	default:
		return 0, fmt.Errorf("unknown save-state policy %q", text)
	}
}

// String renders the policy in its config-file spelling.
func (p SaveStatePolicy) String() string {
	switch p {
	case SaveOnRestart:
		return "on-restart"
	case SaveAlways:
		return "always"
	case SaveNever:
		return "never"
	case SaveAdaptive:
		return "adaptive"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}
