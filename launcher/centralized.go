// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fuzzfleet/fuzzfleet/transport"
)

// aggregatorStartupPause is how long the launcher waits after spawning
// the centralized broker before launching workers, so the aggregation
// tier is listening by the time the first worker dials it.
const aggregatorStartupPause = 100 * time.Millisecond

// CentralizedLauncher runs a two-tier campaign: every worker holds its
// normal connection to this machine's broker plus a second link to a
// centralized broker that relays findings across islands. Exactly one
// worker, the one at launch index 1, is the main worker with decision
// authority over shared findings.
//
// The centralized broker runs in its own spawned process, created
// before any worker.
type CentralizedLauncher struct {
	Launcher

	// SecondaryRunClient, when set, is the body for every worker except
	// the main one; RunClient then only runs the main worker. When nil,
	// RunClient serves all workers and distinguishes them through
	// Client.Centralized.IsMain.
	SecondaryRunClient ClientFunc
}

// Launch runs the centralized campaign. Process dispatch works as in
// Launcher.Launch, with one more role: the centralized broker process.
func (c *CentralizedLauncher) Launch(ctx context.Context) error {
	return c.launch(ctx, c.child, c.spawnAggregator)
}

// spawnAggregator creates the centralized broker before any worker
// exists and gives it a head start on binding its port.
func (c *CentralizedLauncher) spawnAggregator(ctx context.Context, sup *supervisor) error {
	if err := sup.spawn(childRole{Kind: roleCentralizedBroker}); err != nil {
		return err
	}
	c.Clock.Sleep(aggregatorStartupPause)
	return nil
}

// child dispatches a marked process: the centralized broker role runs
// the aggregation tier, the client role runs a two-tier worker.
func (c *CentralizedLauncher) child(ctx context.Context, role childRole) error {
	if role.Kind == roleCentralizedBroker {
		return c.runAggregator(ctx)
	}
	return c.runWorker(ctx, role)
}

// runAggregator is the centralized broker process body. The broker's
// clean end is the ErrShuttingDown sentinel, which this process maps to
// a zero exit.
func (c *CentralizedLauncher) runAggregator(ctx context.Context) error {
	provider, err := c.childProvider()
	if err != nil {
		return err
	}
	err = c.runCentralizedBroker(ctx, transport.EndpointConfig{
		Provider: provider,
		Port:     c.Config.CentralizedBrokerPort,
		Role:     transport.Role{Kind: transport.KindCentralizedBroker},
		Tag:      c.tag(),
		Monitor:  c.Monitor,
		StateDir: c.StateDir,
		Clock:    c.Clock,
		Logger:   c.Logger,
	})
	if errors.Is(err, transport.ErrShuttingDown) {
		c.Logger.Info("centralized broker shut down", "campaign", c.Config.Name)
		return nil
	}
	return err
}

// runWorker is the two-tier worker body: connect to the island broker
// as usual, then attach to the aggregation tier. Launch index 1 is the
// main worker.
func (c *CentralizedLauncher) runWorker(ctx context.Context, role childRole) error {
	c.staggerSleep(role.Index)

	provider, err := c.childProvider()
	if err != nil {
		return err
	}

	cfg := c.clientConfig(provider, role.Core)
	state, inner, err := c.buildClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("worker on core %d: %w", role.Core, err)
	}

	isMain := role.Index == 1
	wrapped, err := c.buildCentralized(ctx, cfg, inner, c.Config.CentralizedBrokerPort, isMain)
	if err != nil {
		inner.Close()
		return fmt.Errorf("worker on core %d: %w", role.Core, err)
	}
	defer wrapped.Close()

	run := c.pickRunClient(isMain)
	return run(ctx, &Client{
		Core:        role.Core,
		Index:       role.Index,
		State:       state,
		Endpoint:    inner,
		Centralized: wrapped,
	})
}

// pickRunClient chooses between the main and secondary bodies. Either
// way the chosen slot is consumed exactly once in this process.
func (c *CentralizedLauncher) pickRunClient(isMain bool) ClientFunc {
	if isMain || c.SecondaryRunClient == nil {
		return c.takeRunClient()
	}
	run := c.SecondaryRunClient
	c.SecondaryRunClient = nil
	return run
}
