// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec centralizes CBOR encoding configuration for fuzzfleet.
//
// All wire frames exchanged with a broker and all persisted client
// state snapshots go through this package, so the encoder and decoder
// options live in exactly one place. Encoding uses Core Deterministic
// Encoding (RFC 8949 §4.2): the same logical data always produces
// identical bytes, which keeps frame hashes and snapshot comparisons
// stable across processes.
package codec
