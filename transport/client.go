// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/fuzzfleet/fuzzfleet/lib/codec"
	"github.com/fuzzfleet/fuzzfleet/lib/watchdog"
	"github.com/fuzzfleet/fuzzfleet/monitor"
)

// dialRetryInterval is how long a worker waits between attempts to
// reach its broker. Staggering bounds but does not eliminate the race
// against the broker's bind, so the first attempts may legitimately
// fail.
const dialRetryInterval = 100 * time.Millisecond

// adaptiveMinInterval rate-limits snapshot writes under the adaptive
// policy.
const adaptiveMinInterval = 5 * time.Second

// ClientEndpoint is a worker's live connection to its broker.
type ClientEndpoint struct {
	cfg    EndpointConfig
	logger *slog.Logger
	conn   net.Conn
	id     uint32

	writeMu sync.Mutex

	events chan codec.RawMessage
	done   chan struct{}

	store     *stateStore
	restarted bool
	lastSave  time.Time
	saveMu    sync.Mutex

	closeOnce sync.Once
}

// buildClient implements EndpointConfig.BuildClient.
func buildClient(ctx context.Context, cfg EndpointConfig) (*RestoredState, *ClientEndpoint, error) {
	endpoint := &ClientEndpoint{
		cfg:    cfg,
		logger: cfg.Logger.With("role", cfg.Role.String()),
		events: make(chan codec.RawMessage, 64),
		done:   make(chan struct{}),
		store: &stateStore{
			dir:  cfg.StateDir,
			tag:  cfg.Tag,
			core: int(cfg.Role.Core),
		},
	}

	// Bump the run marker first: whether this process is a restart
	// decides whether a snapshot is restored at all.
	marker, err := watchdog.Bump(endpoint.store.markerPath(), cfg.Tag.String(), int(cfg.Role.Core), cfg.Clock.Now())
	if err != nil {
		return nil, nil, fmt.Errorf("run marker: %w", err)
	}
	endpoint.restarted = marker.Launches > 1

	restored, err := endpoint.restore()
	if err != nil {
		return nil, nil, err
	}

	hello := &frame{Kind: frameHello, Tag: cfg.Tag, Core: int(cfg.Role.Core)}
	if err := endpoint.connectWithHello(ctx, hello); err != nil {
		return nil, nil, err
	}

	go endpoint.readLoop()
	return restored, endpoint, nil
}

// restore loads the persisted snapshot according to the policy.
func (e *ClientEndpoint) restore() (*RestoredState, error) {
	switch e.cfg.SaveState {
	case SaveNever:
		return nil, nil
	case SaveAlways:
	case SaveOnRestart, SaveAdaptive:
		if !e.restarted {
			return nil, nil
		}
	}
	restored, err := e.store.load()
	if err != nil {
		return nil, fmt.Errorf("restoring state: %w", err)
	}
	if restored != nil {
		e.logger.Info("restored state snapshot", "bytes", restored.Size())
	}
	return restored, nil
}

// connectWithHello dials the broker, retrying until DialTimeout, then
// performs the hello/welcome handshake with the given hello frame.
func (e *ClientEndpoint) connectWithHello(ctx context.Context, hello *frame) error {
	deadline := e.cfg.Clock.Now().Add(e.cfg.DialTimeout)
	address := fmt.Sprintf("127.0.0.1:%d", e.cfg.Port)

	var conn net.Conn
	for {
		var err error
		conn, err = net.Dial("tcp", address)
		if err == nil {
			break
		}
		if e.cfg.Clock.Now().After(deadline) {
			return fmt.Errorf("dialing broker %s: %w", address, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.cfg.Clock.After(dialRetryInterval):
		}
	}

	if err := writeFrame(conn, hello); err != nil {
		conn.Close()
		return fmt.Errorf("greeting broker: %w", err)
	}
	welcome, err := readFrame(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("reading broker welcome: %w", err)
	}
	if welcome.Kind != frameWelcome {
		conn.Close()
		return fmt.Errorf("broker sent frame kind %d instead of welcome", int(welcome.Kind))
	}

	e.conn = conn
	e.id = welcome.Client
	e.logger.Info("connected to broker", "client_id", e.id)
	return nil
}

// readLoop feeds relayed events into the Events channel until the
// connection drops.
func (e *ClientEndpoint) readLoop() {
	defer close(e.events)
	for {
		incoming, err := readFrame(e.conn)
		if err != nil {
			select {
			case <-e.done:
				// Closed locally; quiet exit.
			default:
				e.logger.Info("broker connection closed", "error", err)
			}
			return
		}
		if incoming.Kind != frameEvent {
			continue
		}
		select {
		case e.events <- incoming.Payload:
		case <-e.done:
			return
		}
	}
}

// ID returns the broker-assigned client id.
func (e *ClientEndpoint) ID() uint32 { return e.id }

// Restarted reports whether this worker is a restart of a crashed
// predecessor rather than a first launch.
func (e *ClientEndpoint) Restarted() bool { return e.restarted }

// Events delivers finding payloads relayed from other workers. The
// channel closes when the broker connection drops.
func (e *ClientEndpoint) Events() <-chan codec.RawMessage { return e.events }

// ReportStats sends the worker's aggregate counters to the broker.
func (e *ClientEndpoint) ReportStats(stats monitor.ClientStats) error {
	stats.Core = int(e.cfg.Role.Core)
	return e.send(&frame{Kind: frameStats, Tag: e.cfg.Tag, Stats: &stats})
}

// Publish shares a finding with every other worker carrying the same
// tag.
func (e *ClientEndpoint) Publish(v any) error {
	payload, err := codec.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}
	return e.send(&frame{Kind: frameEvent, Tag: e.cfg.Tag, Payload: payload})
}

// SaveState persists the worker's state per the configured policy.
// Under the never policy it is a no-op; under the adaptive policy
// writes are rate-limited by the endpoint's time reference.
func (e *ClientEndpoint) SaveState(v any) error {
	switch e.cfg.SaveState {
	case SaveNever:
		return nil
	case SaveAdaptive:
		e.saveMu.Lock()
		now := e.cfg.Clock.Now()
		if !e.lastSave.IsZero() && now.Sub(e.lastSave) < adaptiveMinInterval {
			e.saveMu.Unlock()
			return nil
		}
		e.lastSave = now
		e.saveMu.Unlock()
	}
	return e.store.save(v)
}

// send writes one frame under the write lock.
func (e *ClientEndpoint) send(f *frame) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return writeFrame(e.conn, f)
}

// Close detaches cleanly: bye frame, then connection teardown.
// Idempotent.
func (e *ClientEndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.done)
		err = e.send(&frame{Kind: frameBye, Tag: e.cfg.Tag})
		e.conn.Close()
	})
	return err
}
