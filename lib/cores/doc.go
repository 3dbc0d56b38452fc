// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package cores models the set of CPU cores a campaign binds workers
// to. A Set is an ordered list of distinct core identifiers; the
// launcher spawns exactly one worker per entry, in increasing order.
//
// [Parse] accepts the command-line forms operators actually type:
// "all", single ids ("3"), comma lists ("0,2,5"), and ranges ("0-3"),
// in any combination. [Available] enumerates the machine's online
// cores from sysfs on Linux, falling back to the runtime's CPU count
// elsewhere.
package cores
