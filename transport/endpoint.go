// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fuzzfleet/fuzzfleet/lib/clock"
	"github.com/fuzzfleet/fuzzfleet/lib/shmem"
	"github.com/fuzzfleet/fuzzfleet/monitor"
)

// EndpointConfig is the transport endpoint builder. The launcher fills
// it per role and calls BuildClient, RunBroker, or
// RunCentralizedBroker. The zero value is not usable; Port, Role, and
// Tag are required.
type EndpointConfig struct {
	// Provider owns the shared-memory segments backing large
	// cross-process payloads. Required.
	Provider shmem.Provider

	// Port is the TCP port of this endpoint's broker: the port to
	// bind for broker roles, the port to dial for client roles.
	Port uint16

	// Role selects what Build produces.
	Role Role

	// Tag is the run-configuration tag. Workers only receive events
	// whose tag matches.
	Tag Tag

	// Monitor receives aggregated statistics. Broker roles only;
	// defaults to monitor.Nop.
	Monitor monitor.Monitor

	// RemoteBrokerAddr optionally joins a broker to another machine's
	// broker ("host:port"). Broker roles only.
	RemoteBrokerAddr string

	// ExitCleanlyAfter makes a broker exit once this many clients
	// have disconnected. Zero means run until the context ends.
	// Broker roles only.
	ExitCleanlyAfter int

	// SaveState selects the worker state persistence policy.
	SaveState SaveStatePolicy

	// StateDir holds state snapshots and run markers. Defaults to the
	// system temp directory.
	StateDir string

	// Clock is the time reference for dial retries, adaptive
	// serialization, and broker poll loops. Defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// DialTimeout bounds how long a client retries its initial broker
	// connection. Staggered launches mean a worker may legitimately
	// dial before the broker binds. Defaults to 30 seconds.
	DialTimeout time.Duration
}

// withDefaults returns a copy with the optional fields filled in.
func (c EndpointConfig) withDefaults() EndpointConfig {
	if c.Monitor == nil {
		c.Monitor = monitor.Nop{}
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.StateDir == "" {
		c.StateDir = os.TempDir()
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = 30 * time.Second
	}
	return c
}

// validate rejects configurations the transport cannot serve.
func (c EndpointConfig) validate() error {
	if c.Provider == nil {
		return fmt.Errorf("endpoint config: shared-memory provider is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("endpoint config: port is required")
	}
	if c.Role.Kind == 0 {
		return fmt.Errorf("endpoint config: role is required")
	}
	if c.Tag == TagAlways {
		return fmt.Errorf("endpoint config: tag is required")
	}
	return nil
}

// BuildClient connects a worker endpoint to its broker and restores
// any persisted state for this (tag, core). The returned state is nil
// on a first launch or under the never policy. The endpoint is live:
// its reader goroutine is running and events will arrive on Events().
func (c EndpointConfig) BuildClient(ctx context.Context) (*RestoredState, *ClientEndpoint, error) {
	c = c.withDefaults()
	if err := c.validate(); err != nil {
		return nil, nil, err
	}
	if c.Role.Kind != KindClient {
		return nil, nil, fmt.Errorf("BuildClient called with role %s", c.Role)
	}
	return buildClient(ctx, c)
}

// RunBroker binds the broker endpoint and blocks until its shutdown
// condition: ExitCleanlyAfter disconnects when set, context
// cancellation otherwise. A quota-met shutdown returns nil.
func (c EndpointConfig) RunBroker(ctx context.Context) error {
	c = c.withDefaults()
	if err := c.validate(); err != nil {
		return err
	}
	if c.Role.Kind != KindBroker {
		return fmt.Errorf("RunBroker called with role %s", c.Role)
	}
	broker, err := newBroker(c)
	if err != nil {
		return err
	}
	return broker.run(ctx)
}
