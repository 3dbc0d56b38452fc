// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fuzzfleet/fuzzfleet/lib/clock"
	"github.com/fuzzfleet/fuzzfleet/lib/config"
	"github.com/fuzzfleet/fuzzfleet/lib/cores"
	"github.com/fuzzfleet/fuzzfleet/lib/shmem"
	"github.com/fuzzfleet/fuzzfleet/monitor"
	"github.com/fuzzfleet/fuzzfleet/transport"
)

// Sentinel configuration errors.
var (
	// ErrNoCores means the core specification resolved to an empty set,
	// so there is nothing to launch.
	ErrNoCores = errors.New("launcher: core specification resolved to no cores")

	// ErrNoClientCallback means Launch was called without a RunClient
	// callback.
	ErrNoClientCallback = errors.New("launcher: RunClient callback is required")
)

// Client is what the worker callback receives: the worker's identity
// and its live connection to the campaign.
type Client struct {
	// Core is the core this worker is bound to.
	Core cores.CoreID

	// Index is the worker's launch position, starting at 1.
	Index int

	// State is the snapshot restored from a previous run, nil on a
	// first launch or under the never policy.
	State *transport.RestoredState

	// Endpoint is the connection to this machine's broker.
	Endpoint *transport.ClientEndpoint

	// Centralized is the aggregation-tier connection. Only set under a
	// CentralizedLauncher.
	Centralized *transport.CentralizedEndpoint
}

// ClientFunc is the worker body. It runs in the worker's own process;
// its return value becomes that process's result.
type ClientFunc func(ctx context.Context, client *Client) error

// Launcher runs one fuzzing campaign on one machine: it creates a
// worker process per configured core, optionally runs the broker in
// its own process, and supervises the whole tree until the campaign
// ends.
//
// Launch must be called from process entry with an identical
// configuration in every invocation: workers are created by
// re-executing this same binary, and a worker finds its way back into
// the client path through environment markers.
type Launcher struct {
	// Config is the campaign configuration. Validated at Launch.
	Config config.Campaign

	// RunClient is the worker body. The slot is consumed exactly once
	// per process; consuming it twice is a programming error and
	// panics.
	RunClient ClientFunc

	// Provider overrides the shared-memory provider. Nil means a
	// platform provider owned by the launcher, attached from the
	// environment in workers.
	Provider shmem.Provider

	// Monitor receives aggregated statistics in the broker process.
	// Defaults to a LogMonitor on Logger.
	Monitor monitor.Monitor

	// Strategy selects how workers are created.
	Strategy Strategy

	// DebugOutput disables output redirection for every worker, as does
	// the FUZZFLEET_DEBUG_OUTPUT environment variable.
	DebugOutput bool

	// StateDir overrides where workers keep snapshots and run markers.
	StateDir string

	Clock  clock.Clock
	Logger *slog.Logger

	consumed bool

	// Seams replaced in tests.
	getenv               func(string) (string, bool)
	environ              func() []string
	topo                 topology
	runBroker            func(context.Context, transport.EndpointConfig) error
	runCentralizedBroker func(context.Context, transport.EndpointConfig) error
	buildClient          func(context.Context, transport.EndpointConfig) (*transport.RestoredState, *transport.ClientEndpoint, error)
	buildCentralized     func(context.Context, transport.EndpointConfig, *transport.ClientEndpoint, uint16, bool) (*transport.CentralizedEndpoint, error)
}

// defaults fills the optional fields and test seams.
func (l *Launcher) defaults() {
	if l.Clock == nil {
		l.Clock = clock.Real()
	}
	if l.Logger == nil {
		l.Logger = slog.Default()
	}
	if l.Monitor == nil {
		l.Monitor = monitor.NewLogMonitor(l.Logger)
	}
	if l.getenv == nil {
		l.getenv = os.LookupEnv
	}
	if l.environ == nil {
		l.environ = os.Environ
	}
	if l.runBroker == nil {
		l.runBroker = func(ctx context.Context, cfg transport.EndpointConfig) error {
			return cfg.RunBroker(ctx)
		}
	}
	if l.runCentralizedBroker == nil {
		l.runCentralizedBroker = func(ctx context.Context, cfg transport.EndpointConfig) error {
			return cfg.RunCentralizedBroker(ctx)
		}
	}
	if l.buildClient == nil {
		l.buildClient = func(ctx context.Context, cfg transport.EndpointConfig) (*transport.RestoredState, *transport.ClientEndpoint, error) {
			return cfg.BuildClient(ctx)
		}
	}
	if l.buildCentralized == nil {
		l.buildCentralized = func(ctx context.Context, cfg transport.EndpointConfig, inner *transport.ClientEndpoint, port uint16, isMain bool) (*transport.CentralizedEndpoint, error) {
			return cfg.BuildCentralized(ctx, inner, port, isMain)
		}
	}
}

// Launch runs the campaign. In the launcher process it blocks until
// the campaign ends; in a worker process (detected through the
// environment markers) it runs the worker body and returns its result.
func (l *Launcher) Launch(ctx context.Context) error {
	return l.launch(ctx, l.workerChild, nil)
}

// launch is the shared flow behind Launch and the centralized variant:
// dispatch to the child path when a marker is present, otherwise spawn
// and supervise.
func (l *Launcher) launch(ctx context.Context, child func(context.Context, childRole) error, preSpawn func(context.Context, *supervisor) error) error {
	l.defaults()

	if l.RunClient == nil {
		return ErrNoClientCallback
	}
	if strings.TrimSpace(l.Config.Cores) == "" {
		return ErrNoCores
	}
	if err := l.Config.Validate(); err != nil {
		return fmt.Errorf("campaign config: %w", err)
	}

	role, err := detectChildRole(l.getenv)
	if err != nil {
		return err
	}
	if role != nil {
		return child(ctx, *role)
	}

	set, err := l.Config.CoreSet()
	if err != nil {
		return fmt.Errorf("campaign config: %w", err)
	}
	if set.Len() == 0 {
		return ErrNoCores
	}

	provider := l.Provider
	if provider == nil {
		provider = newOwnedProvider(l.tag().String())
		defer provider.Close()
	}

	sup, err := l.newSupervisor(provider)
	if err != nil {
		return err
	}
	defer sup.close()

	if preSpawn != nil {
		if err := preSpawn(ctx, sup); err != nil {
			sup.shutdown()
			sup.waitAll()
			return err
		}
	}

	for i, core := range set.IDs {
		spawnRole := childRole{Kind: roleClient, Core: core, Index: i + 1}
		if err := sup.spawn(spawnRole); err != nil {
			// A partial launch is worse than none: take down what
			// already started.
			sup.shutdown()
			sup.waitAll()
			return err
		}
	}
	l.Logger.Info("workers launched",
		"count", set.Len(),
		"cores", set.String(),
		"campaign", l.Config.Name,
	)

	if l.Config.SpawnBroker {
		return l.superviseWithBroker(ctx, sup, provider, set)
	}
	return l.superviseWorkersOnly(ctx, sup)
}

// superviseWithBroker runs the broker in this process. The broker's
// disconnect quota is the worker count, so it exits cleanly once every
// worker has detached.
func (l *Launcher) superviseWithBroker(ctx context.Context, sup *supervisor, provider shmem.Provider, set cores.Set) error {
	cfg := transport.EndpointConfig{
		Provider:         provider,
		Port:             l.Config.BrokerPort,
		Role:             transport.BrokerRole(),
		Tag:              l.tag(),
		Monitor:          l.Monitor,
		RemoteBrokerAddr: l.Config.RemoteBrokerAddr,
		ExitCleanlyAfter: set.Len(),
		StateDir:         l.StateDir,
		Clock:            l.Clock,
		Logger:           l.Logger,
	}
	err := l.runBroker(ctx, cfg)

	// The broker's return, clean or not, is the authoritative end of
	// the campaign: signal every recorded handle and reap them all.
	sup.shutdown()
	sup.waitAll()

	if err != nil && !errors.Is(err, transport.ErrShuttingDown) {
		return err
	}
	l.Logger.Info("campaign finished", "campaign", l.Config.Name)
	return nil
}

// superviseWorkersOnly covers spawn_broker=false: the broker lives in
// another invocation, so this process only watches its own workers.
func (l *Launcher) superviseWorkersOnly(ctx context.Context, sup *supervisor) error {
	done := make(chan struct{})
	go func() {
		sup.waitAll()
		close(done)
	}()
	select {
	case <-done:
		l.Logger.Info("all workers exited", "campaign", l.Config.Name)
		return nil
	case <-ctx.Done():
		sup.shutdown()
		<-done
		return ctx.Err()
	}
}

// workerChild is the client path of a plain (non-centralized)
// campaign.
func (l *Launcher) workerChild(ctx context.Context, role childRole) error {
	if role.Kind != roleClient {
		return fmt.Errorf("launcher: %s marker in a non-centralized campaign", EnvCentralizedBroker)
	}

	l.staggerSleep(role.Index)

	provider, err := l.childProvider()
	if err != nil {
		return err
	}

	state, endpoint, err := l.buildClient(ctx, l.clientConfig(provider, role.Core))
	if err != nil {
		return fmt.Errorf("worker on core %d: %w", role.Core, err)
	}
	defer endpoint.Close()

	run := l.takeRunClient()
	return run(ctx, &Client{
		Core:     role.Core,
		Index:    role.Index,
		State:    state,
		Endpoint: endpoint,
	})
}

// staggerSleep delays worker startup by index*launch_delay_ms so the
// machine is not hit by every worker's initialization at once.
func (l *Launcher) staggerSleep(index int) {
	delay := time.Duration(index) * time.Duration(l.Config.LaunchDelayMS) * time.Millisecond
	if delay > 0 {
		l.Clock.Sleep(delay)
	}
}

// childProvider attaches the shared-memory provider a worker inherited
// from its parent.
func (l *Launcher) childProvider() (shmem.Provider, error) {
	if l.Provider != nil {
		return l.Provider, nil
	}
	provider := attachProvider()
	if err := provider.PostSpawn(true); err != nil {
		return nil, fmt.Errorf("attaching inherited segments: %w", err)
	}
	return provider, nil
}

// takeRunClient extracts the one-shot worker callback. The slot exists
// so a campaign cannot accidentally run two worker bodies in one
// process; a second extraction is a bug in the caller, not a runtime
// condition, hence the panic.
func (l *Launcher) takeRunClient() ClientFunc {
	if l.consumed {
		panic("launcher: RunClient already consumed")
	}
	l.consumed = true
	run := l.RunClient
	l.RunClient = nil
	return run
}

// tag derives the campaign's run-configuration tag from its name.
func (l *Launcher) tag() transport.Tag {
	return transport.NewTag(l.Config.Name)
}

// clientConfig builds the endpoint configuration for one worker.
func (l *Launcher) clientConfig(provider shmem.Provider, core cores.CoreID) transport.EndpointConfig {
	policy, err := transport.ParseSaveStatePolicy(l.Config.SaveState)
	if err != nil {
		// Config.Validate already rejected unknown spellings.
		policy = transport.SaveOnRestart
	}
	return transport.EndpointConfig{
		Provider:  provider,
		Port:      l.Config.BrokerPort,
		Role:      transport.ClientRole(core),
		Tag:       l.tag(),
		SaveState: policy,
		StateDir:  l.StateDir,
		Clock:     l.Clock,
		Logger:    l.Logger,
	}
}

// supervisor owns the launcher-side process tree: the topology, the
// redirection files, and the handles of every spawned worker.
type supervisor struct {
	launcher *Launcher
	topo     topology
	provider shmem.Provider

	stdout *os.File
	stderr *os.File
	shared bool

	handles      []handle
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func (l *Launcher) newSupervisor(provider shmem.Provider) (*supervisor, error) {
	topo := l.topo
	if topo == nil {
		var err error
		topo, err = newTopology(l.Strategy)
		if err != nil {
			return nil, err
		}
	}
	sup := &supervisor{launcher: l, topo: topo, provider: provider}
	if err := sup.openRedirects(); err != nil {
		return nil, err
	}
	return sup, nil
}

// openRedirects opens the worker output files once; every worker
// shares the same handles. The debug override wins over any configured
// redirection.
func (s *supervisor) openRedirects() error {
	l := s.launcher
	if l.DebugOutput || debugRequested(l.getenv) {
		l.Logger.Info("debug output enabled, workers inherit the launcher's streams")
		return nil
	}

	cfg := l.Config
	if cfg.StdoutFile != "" {
		file, err := openRedirect(cfg.StdoutFile)
		if err != nil {
			return err
		}
		s.stdout = file
		if cfg.StderrFile == "" {
			// Unset stderr follows stdout into the same file.
			s.stderr = file
			s.shared = true
			return nil
		}
	}
	if cfg.StderrFile != "" {
		file, err := openRedirect(cfg.StderrFile)
		if err != nil {
			return err
		}
		s.stderr = file
	}
	return nil
}

func openRedirect(path string) (*os.File, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening redirection file %s: %w", path, err)
	}
	return file, nil
}

// spawn creates one child around the shared-memory hook protocol and
// starts its reaper.
func (s *supervisor) spawn(role childRole) error {
	if err := s.provider.PreSpawn(); err != nil {
		return fmt.Errorf("pre-spawn hook: %w", err)
	}

	env := scrubMarkers(s.launcher.environ())
	env = append(env, role.envMarkers()...)
	env = append(env, s.provider.ChildEnv()...)
	if s.launcher.DebugOutput && !debugRequested(s.launcher.getenv) {
		env = append(env, EnvDebugOutput+"=1")
	}

	child, err := s.topo.Spawn(childSpec{env: env, stdout: s.stdout, stderr: s.stderr})
	if err != nil {
		err = fmt.Errorf("spawning %s: %w", role.describe(), err)
		// The hook protocol still has to complete in this process even
		// though the spawn failed; a hook failure on top is part of the
		// report, not something to swallow.
		if hookErr := s.provider.PostSpawn(false); hookErr != nil {
			err = errors.Join(err, fmt.Errorf("post-spawn hook: %w", hookErr))
		}
		return err
	}
	if err := s.provider.PostSpawn(false); err != nil {
		return fmt.Errorf("post-spawn hook: %w", err)
	}

	s.launcher.Logger.Info("spawned", "role", role.describe(), "pid", child.Pid())
	s.handles = append(s.handles, child)
	s.wg.Add(1)
	go s.reap(child, role)
	return nil
}

// reap waits for one child and logs how it went. A non-zero exit is
// informational: the broker's disconnect quota, not exit codes, decides
// when the campaign ends.
func (s *supervisor) reap(child handle, role childRole) {
	defer s.wg.Done()
	code, err := child.Wait()
	logger := s.launcher.Logger
	switch {
	case err != nil:
		logger.Warn("reaping worker failed", "role", role.describe(), "pid", child.Pid(), "error", err)
	case code != 0:
		logger.Warn("worker exited non-zero", "role", role.describe(), "pid", child.Pid(), "code", code)
	default:
		logger.Info("worker exited", "role", role.describe(), "pid", child.Pid())
	}
}

// shutdown signals every child exactly once.
func (s *supervisor) shutdown() {
	s.shutdownOnce.Do(func() {
		for _, child := range s.handles {
			if err := child.Shutdown(); err != nil {
				s.launcher.Logger.Warn("shutdown signal failed", "pid", child.Pid(), "error", err)
			}
		}
	})
}

// waitAll blocks until every spawned child has been reaped.
func (s *supervisor) waitAll() {
	s.wg.Wait()
}

// close releases the redirection files.
func (s *supervisor) close() {
	if s.stdout != nil {
		s.stdout.Close()
	}
	if s.stderr != nil && !s.shared {
		s.stderr.Close()
	}
}

// describe names the role for logs.
func (r childRole) describe() string {
	if r.Kind == roleCentralizedBroker {
		return "centralized broker"
	}
	return fmt.Sprintf("worker %d (core %d)", r.Index, r.Core)
}
