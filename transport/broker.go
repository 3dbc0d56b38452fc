// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// pollInterval is the centralized broker's internal poll period while
// it waits for its attachment condition to resolve.
const pollInterval = 5 * time.Millisecond

// loopTimeout is the centralized broker's outer wait slice. Each slice
// it re-checks whether every attached peer is gone.
const loopTimeout = 30 * time.Second

// broker relays frames between the peers of one campaign tier.
type broker struct {
	cfg      EndpointConfig
	logger   *slog.Logger
	listener net.Listener

	mu           sync.Mutex
	peers        map[uint32]*peer
	nextID       uint32
	everAttached int
	disconnects  int

	// quotaMet is closed exactly once when ExitCleanlyAfter
	// disconnects have been observed.
	quotaMet  chan struct{}
	quotaOnce sync.Once

	// remote is the connection to a parent broker on another machine,
	// nil unless RemoteBrokerAddr is set.
	remote   net.Conn
	remoteMu sync.Mutex
}

// peer is one attached connection after its hello.
type peer struct {
	id       uint32
	conn     net.Conn
	tag      Tag
	core     int
	isBroker bool

	writeMu sync.Mutex
}

func (p *peer) send(f *frame) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return writeFrame(p.conn, f)
}

func newBroker(cfg EndpointConfig) (*broker, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("binding broker port %d: %w", cfg.Port, err)
	}

	b := &broker{
		cfg:      cfg,
		logger:   cfg.Logger.With("role", cfg.Role.String(), "port", cfg.Port),
		listener: listener,
		peers:    make(map[uint32]*peer),
		quotaMet: make(chan struct{}),
	}

	if cfg.RemoteBrokerAddr != "" {
		if err := b.attachRemote(); err != nil {
			listener.Close()
			return nil, err
		}
	}
	return b, nil
}

// attachRemote joins this broker to a parent broker on another
// machine and starts relaying its events into the local tier.
func (b *broker) attachRemote() error {
	conn, err := net.DialTimeout("tcp", b.cfg.RemoteBrokerAddr, b.cfg.DialTimeout)
	if err != nil {
		return fmt.Errorf("dialing remote broker %s: %w", b.cfg.RemoteBrokerAddr, err)
	}
	hello := &frame{Kind: frameBrokerHello, Tag: b.cfg.Tag}
	if err := writeFrame(conn, hello); err != nil {
		conn.Close()
		return fmt.Errorf("greeting remote broker: %w", err)
	}
	b.remote = conn
	b.logger.Info("attached to remote broker", "addr", b.cfg.RemoteBrokerAddr)

	go func() {
		for {
			incoming, err := readFrame(conn)
			if err != nil {
				b.logger.Info("remote broker connection closed", "error", err)
				return
			}
			if incoming.Kind == frameEvent {
				b.broadcast(incoming, 0)
			}
		}
	}()
	return nil
}

// run accepts and serves peers until the shutdown condition. For a
// first-tier broker that is ExitCleanlyAfter disconnects (nil return)
// or context cancellation; the ctx error is returned in that case.
func (b *broker) run(ctx context.Context) error {
	b.logger.Info("broker listening", "exit_after", b.cfg.ExitCleanlyAfter)

	go b.acceptLoop()
	defer b.shutdown()

	select {
	case <-b.quotaMet:
		b.logger.Info("all clients disconnected, broker exiting cleanly")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runCentralized serves the aggregation tier: it waits in bounded
// slices, polling until at least one peer has attached and all
// attached peers have gone, then reports ErrShuttingDown.
func (b *broker) runCentralized(ctx context.Context) error {
	b.logger.Info("centralized broker listening")

	go b.acceptLoop()
	defer b.shutdown()

	slice := b.cfg.Clock.After(loopTimeout)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-slice:
			slice = b.cfg.Clock.After(loopTimeout)
		case <-b.cfg.Clock.After(pollInterval):
		}

		b.mu.Lock()
		done := b.everAttached > 0 && len(b.peers) == 0
		b.mu.Unlock()
		if done {
			b.logger.Info("the last attached peer quit, exiting")
			return ErrShuttingDown
		}
	}
}

func (b *broker) shutdown() {
	b.listener.Close()
	b.mu.Lock()
	for _, p := range b.peers {
		p.conn.Close()
	}
	b.mu.Unlock()
	if b.remote != nil {
		b.remote.Close()
	}
}

func (b *broker) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			// Listener closed during shutdown.
			return
		}
		go b.servePeer(conn)
	}
}

// servePeer owns one connection: handshake, frame loop, unregister.
func (b *broker) servePeer(conn net.Conn) {
	hello, err := readFrame(conn)
	if err != nil {
		b.logger.Warn("peer hello failed", "error", err)
		conn.Close()
		return
	}
	if hello.Kind != frameHello && hello.Kind != frameBrokerHello {
		b.logger.Warn("peer sent non-hello first frame", "kind", int(hello.Kind))
		conn.Close()
		return
	}

	p := &peer{
		conn:     conn,
		tag:      hello.Tag,
		core:     hello.Core,
		isBroker: hello.Kind == frameBrokerHello,
	}

	b.mu.Lock()
	b.nextID++
	p.id = b.nextID
	b.peers[p.id] = p
	b.everAttached++
	b.mu.Unlock()

	if err := p.send(&frame{Kind: frameWelcome, Tag: b.cfg.Tag, Client: p.id}); err != nil {
		b.logger.Warn("welcome failed", "peer", p.id, "error", err)
		b.unregister(p, false)
		return
	}
	b.logger.Info("peer attached", "peer", p.id, "core", p.core, "broker_peer", p.isBroker)

	clean := false
	for {
		incoming, err := readFrame(conn)
		if err != nil {
			if err != io.EOF {
				b.logger.Warn("peer read failed", "peer", p.id, "error", err)
			}
			break
		}
		switch incoming.Kind {
		case frameStats:
			if incoming.Stats != nil {
				stats := *incoming.Stats
				stats.LastReport = b.cfg.Clock.Now()
				b.cfg.Monitor.Update(p.id, stats)
			}
		case frameEvent:
			incoming.Client = p.id
			b.broadcast(incoming, p.id)
		case frameBye:
			clean = true
		default:
			b.logger.Warn("unexpected frame", "peer", p.id, "kind", int(incoming.Kind))
		}
		if clean {
			break
		}
	}

	b.unregister(p, clean)
}

// unregister drops the peer, informs the monitor, and advances the
// disconnect quota.
func (b *broker) unregister(p *peer, clean bool) {
	p.conn.Close()

	b.mu.Lock()
	_, present := b.peers[p.id]
	delete(b.peers, p.id)
	if present && !p.isBroker {
		b.disconnects++
	}
	disconnects := b.disconnects
	b.mu.Unlock()

	if !present {
		return
	}
	b.cfg.Monitor.ClientGone(p.id)
	b.logger.Info("peer detached", "peer", p.id, "clean", clean, "disconnects", disconnects)

	if b.cfg.ExitCleanlyAfter > 0 && disconnects >= b.cfg.ExitCleanlyAfter {
		b.quotaOnce.Do(func() { close(b.quotaMet) })
	}
}

// broadcast relays an event to every attached peer with a matching
// tag except its origin, and forwards it to the remote broker.
func (b *broker) broadcast(event *frame, origin uint32) {
	b.mu.Lock()
	targets := make([]*peer, 0, len(b.peers))
	for _, p := range b.peers {
		if p.id == origin {
			continue
		}
		if event.Tag != TagAlways && p.tag != event.Tag {
			continue
		}
		targets = append(targets, p)
	}
	b.mu.Unlock()

	for _, p := range targets {
		if err := p.send(event); err != nil {
			b.logger.Warn("relay failed", "peer", p.id, "error", err)
		}
	}

	if b.remote != nil && origin != 0 {
		b.remoteMu.Lock()
		err := writeFrame(b.remote, event)
		b.remoteMu.Unlock()
		if err != nil {
			b.logger.Warn("remote relay failed", "error", err)
		}
	}
}
