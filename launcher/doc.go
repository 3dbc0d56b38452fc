// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package launcher turns one binary into a fuzzing campaign: a worker
// process per configured core, an optional in-process broker, and a
// supervised shutdown path.
//
// The launcher never forks a bare process image. Every worker is a
// fresh execution of the running binary that finds its role through
// environment markers, so campaign code calls Launch unconditionally
// from process entry and the launcher routes each process to the right
// body. Two spawn strategies implement this: the native strategy uses
// the platform process primitives directly, the re-exec strategy the
// portable process API.
//
// CentralizedLauncher extends the same flow with a second broker tier
// that relays findings between machine-local broker islands.
package launcher
