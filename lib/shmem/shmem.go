// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package shmem

import (
	"fmt"
	"strconv"
	"strings"
)

// DescriptionEnv is the environment variable carrying the segment
// table description from a parent to a spawned child.
const DescriptionEnv = "FUZZFLEET_SHM"

// Provider creates shared-memory segments and brackets every
// process-creation point with the duplication hooks. Implementations
// are not safe for concurrent use; the launcher drives them from a
// single goroutine.
type Provider interface {
	// New allocates a segment of the given size, zero-filled.
	New(size int) (*Segment, error)

	// PreSpawn prepares every live segment for inheritance by a child
	// about to be created. Must be called before each spawn.
	PreSpawn() error

	// PostSpawn completes the duplication protocol. The parent calls
	// it with isChild=false after recording the child's handle; the
	// new process calls it with isChild=true before touching any
	// segment.
	PostSpawn(isChild bool) error

	// ChildEnv returns the environment entries a spawned child needs
	// to re-attach the provider's segments. Valid only between
	// PreSpawn and the corresponding PostSpawn(false).
	ChildEnv() []string

	// Close unmaps all segments. The owning (creating) process also
	// removes their backing objects.
	Close() error
}

// Segment is one shared mapping. Data aliases the shared pages
// directly; both sides of a spawn see each other's writes.
type Segment struct {
	// Name identifies the backing object, unique per provider.
	Name string

	// Data is the mapped region, len(Data) == size requested.
	Data []byte
}

// describe renders the segment table in the env description form
// "name=size,name=size".
func describe(segments []*Segment) string {
	parts := make([]string, 0, len(segments))
	for _, segment := range segments {
		parts = append(parts, fmt.Sprintf("%s=%d", segment.Name, len(segment.Data)))
	}
	return strings.Join(parts, ",")
}

// parseDescription parses the env description form produced by
// describe. A present-but-malformed description is an error; the
// caller must not guess at segment sizes.
func parseDescription(text string) (map[string]int, error) {
	table := make(map[string]int)
	if text == "" {
		return table, nil
	}
	for _, part := range strings.Split(text, ",") {
		name, sizeText, found := strings.Cut(part, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("malformed segment description entry %q", part)
		}
		size, err := strconv.Atoi(sizeText)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("malformed segment size in %q", part)
		}
		table[name] = size
	}
	return table, nil
}
