// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package monitor defines the statistics boundary between the broker
// and whatever renders campaign progress. The broker aggregates
// per-worker counters and pushes them through the Monitor interface;
// rendering beyond structured logs is someone else's concern.
package monitor
