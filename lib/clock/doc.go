// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// The launcher's startup staggering, the broker poll loops, and the
// adaptive state-serialization decision all depend on time. Production
// code injects Real(); tests inject Fake() and advance it
// deterministically, so no test ever sleeps real wall-clock time to
// observe a stagger delay.
//
// Wiring pattern: structs that use time carry a Clock field set to
// clock.Real() in production. Tests construct the struct with
// clock.Fake(start), start the goroutines under test, call
// WaitForSleepers to ensure a timer is registered, then Advance to
// fire it.
package clock
