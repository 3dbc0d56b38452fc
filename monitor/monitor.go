// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"log/slog"
	"time"
)

// ClientStats is one worker's aggregate progress as last reported to
// the broker.
type ClientStats struct {
	// Core is the worker's bound core index, -1 when unknown.
	Core int `cbor:"core"`

	// Executions is the worker's total target executions.
	Executions uint64 `cbor:"executions"`

	// CorpusSize is the worker's current corpus entry count.
	CorpusSize uint64 `cbor:"corpus_size"`

	// Objectives counts solutions (crashes, timeouts) found.
	Objectives uint64 `cbor:"objectives"`

	// LastReport is when the worker last reported, broker clock.
	LastReport time.Time `cbor:"last_report"`
}

// Monitor receives aggregated statistics from a broker. Update is
// called once per stats report; ClientGone when a worker disconnects.
// Implementations must not block: the broker calls them from its
// event loop.
type Monitor interface {
	Update(clientID uint32, stats ClientStats)
	ClientGone(clientID uint32)
}

// LogMonitor reports progress through the structured logger. It is the
// default monitor for headless campaigns.
type LogMonitor struct {
	logger *slog.Logger
}

var _ Monitor = (*LogMonitor)(nil)

// NewLogMonitor returns a monitor writing to logger, or the default
// logger when nil.
func NewLogMonitor(logger *slog.Logger) *LogMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMonitor{logger: logger}
}

// Update logs the worker's latest counters.
func (m *LogMonitor) Update(clientID uint32, stats ClientStats) {
	m.logger.Info("client stats",
		"client", clientID,
		"core", stats.Core,
		"executions", stats.Executions,
		"corpus", stats.CorpusSize,
		"objectives", stats.Objectives,
	)
}

// ClientGone logs the disconnect.
func (m *LogMonitor) ClientGone(clientID uint32) {
	m.logger.Info("client disconnected", "client", clientID)
}

// Nop is a Monitor that discards everything. Used by workers, which
// never carry a monitor, and by tests.
type Nop struct{}

var _ Monitor = Nop{}

// Update discards the report.
func (Nop) Update(uint32, ClientStats) {}

// ClientGone discards the event.
func (Nop) ClientGone(uint32) {}
