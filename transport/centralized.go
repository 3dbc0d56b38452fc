// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"

	"github.com/fuzzfleet/fuzzfleet/lib/codec"
	"github.com/fuzzfleet/fuzzfleet/monitor"
)

// RunCentralizedBroker binds the aggregation tier and blocks until
// every attached peer has detached (after at least one attached),
// then returns ErrShuttingDown. Launchers treat that sentinel as the
// clean end of the campaign.
func (c EndpointConfig) RunCentralizedBroker(ctx context.Context) error {
	c = c.withDefaults()
	if err := c.validate(); err != nil {
		return err
	}
	if c.Role.Kind != KindCentralizedBroker {
		return fmt.Errorf("RunCentralizedBroker called with role %s", c.Role)
	}
	broker, err := newBroker(c)
	if err != nil {
		return err
	}
	return broker.runCentralized(ctx)
}

// CentralizedEndpoint wraps a worker's first-tier endpoint with a
// second link to the centralized broker. Exactly one worker per
// campaign holds is_main authority: it accepts or rejects shared
// findings; secondary workers only contribute candidates.
type CentralizedEndpoint struct {
	inner  *ClientEndpoint
	agg    *ClientEndpoint
	isMain bool
}

// BuildCentralized attaches a worker to the aggregation tier. The
// inner endpoint must already be connected to the first-tier broker;
// aggregatorPort is the centralized broker's port.
func (c EndpointConfig) BuildCentralized(ctx context.Context, inner *ClientEndpoint, aggregatorPort uint16, isMain bool) (*CentralizedEndpoint, error) {
	if inner == nil {
		return nil, fmt.Errorf("centralized endpoint requires a connected inner endpoint")
	}

	linkConfig := c.withDefaults()
	linkConfig.Port = aggregatorPort
	// The aggregator link carries no persistent state of its own; the
	// inner endpoint owns the snapshot and run marker.
	linkConfig.SaveState = SaveNever
	if err := linkConfig.validate(); err != nil {
		return nil, err
	}

	link := &ClientEndpoint{
		cfg:    linkConfig,
		logger: linkConfig.Logger.With("role", "aggregator-link", "main", isMain),
		events: make(chan codec.RawMessage, 64),
		done:   make(chan struct{}),
	}
	if err := link.connectWithHello(ctx, &frame{
		Kind: frameHello,
		Tag:  linkConfig.Tag,
		Core: int(linkConfig.Role.Core),
		Main: isMain,
	}); err != nil {
		return nil, fmt.Errorf("attaching to centralized broker: %w", err)
	}
	go link.readLoop()

	return &CentralizedEndpoint{inner: inner, agg: link, isMain: isMain}, nil
}

// IsMain reports whether this worker holds decision authority.
func (e *CentralizedEndpoint) IsMain() bool { return e.isMain }

// Inner returns the first-tier endpoint for island-local traffic.
func (e *CentralizedEndpoint) Inner() *ClientEndpoint { return e.inner }

// Publish shares a finding through the aggregation tier, reaching
// workers on every island.
func (e *CentralizedEndpoint) Publish(v any) error {
	return e.agg.Publish(v)
}

// Events delivers findings relayed by the centralized broker.
func (e *CentralizedEndpoint) Events() <-chan codec.RawMessage {
	return e.agg.Events()
}

// ReportStats forwards counters through the first-tier endpoint,
// keeping the monitor on the island broker.
func (e *CentralizedEndpoint) ReportStats(stats monitor.ClientStats) error {
	return e.inner.ReportStats(stats)
}

// SaveState persists through the first-tier endpoint's policy.
func (e *CentralizedEndpoint) SaveState(v any) error {
	return e.inner.SaveState(v)
}

// Close detaches from both tiers. The aggregator link goes first so
// the centralized broker's attachment count drains before the island
// broker counts this worker's disconnect.
func (e *CentralizedEndpoint) Close() error {
	aggErr := e.agg.Close()
	innerErr := e.inner.Close()
	if aggErr != nil {
		return aggErr
	}
	return innerErr
}
