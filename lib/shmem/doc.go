// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

// Package shmem owns the memory-mapped segments shared between the
// broker and its workers.
//
// Every process-creation point must follow the three-step protocol:
// PreSpawn on the parent, spawn, then PostSpawn on both sides
// (is_child=false in the parent, is_child=true in the new process).
// PreSpawn flushes segment contents and publishes the segment table as
// an environment description; PostSpawn(true) re-attaches the
// described segments in the new process image. Skipping any step
// leaves the child with an invalid segment table, so the launcher
// funnels all spawns through a single helper that always brackets them
// with these hooks.
//
// [MmapProvider] backs segments with files under /dev/shm (or the
// system temp directory where /dev/shm does not exist) mapped with
// mmap(2), so a re-exec'd child attaches the same physical pages by
// name. [HeapProvider] is a process-local stand-in for tests.
package shmem
