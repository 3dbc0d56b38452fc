// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides campaign configuration loading.
//
// Configuration is loaded from a single YAML file specified by:
//   - the FUZZFLEET_CONFIG environment variable, or
//   - the --config flag passed to the command.
//
// There are no fallbacks or automatic discovery. This keeps a
// campaign's configuration deterministic and auditable: the exact
// same file drives the parent and every re-exec'd worker.
//
// Validation happens once, before launch. A config that passes
// Validate never fails for configuration reasons inside Launch.
package config
