// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for fuzzfleet packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. These are
// the only place in the test suite where real wall-clock timeouts are
// used; everything else goes through lib/clock.
//
// [FreePort] reserves an ephemeral TCP port for broker tests. It binds
// :0, reads back the assigned port, and closes the listener. The port
// can be stolen between the close and the test's own bind, but in
// practice the kernel does not reassign it that quickly and broker
// tests need a known port number before the broker starts.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
