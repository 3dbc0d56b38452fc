// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport connects the processes of a campaign: one broker
// per machine, one client endpoint per worker, and optionally a
// centralized aggregation broker above several first-tier brokers.
//
// The launcher consumes this package through [EndpointConfig], which
// plays the builder role: configured with a shared-memory provider, a
// port, a role, and a state-persistence policy, it either produces a
// running client endpoint plus any restored worker state, or runs a
// broker until its shutdown condition is met.
//
// The wire format is length-prefixed CBOR frames over TCP, with lz4
// block compression for large frames. Persisted worker state is a
// zstd-compressed CBOR snapshot on disk, keyed by campaign tag and
// core, with a run marker distinguishing first launches from crash
// restarts.
package transport
