// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/binary"
	"fmt"

	"github.com/zeebo/blake3"
)

// Tag identifies a run configuration. Workers only exchange findings
// with peers carrying the same tag, so two campaigns with different
// configurations can share one broker without cross-pollinating.
//
// A Tag derives from the campaign name by hashing, so it is stable
// across processes and machines without coordination.
type Tag uint64

// TagAlways matches every configuration. Brokers use it on frames
// that must reach all clients regardless of their tag.
const TagAlways Tag = 0

// NewTag derives the tag for a campaign name.
func NewTag(name string) Tag {
	sum := blake3.Sum256([]byte(name))
	tag := Tag(binary.BigEndian.Uint64(sum[:8]))
	if tag == TagAlways {
		// The reserved value is one hash collision in 2^64; bump it
		// rather than special-casing everywhere.
		tag = 1
	}
	return tag
}

// String renders the tag as fixed-width hex for logs.
func (t Tag) String() string {
	return fmt.Sprintf("%016x", uint64(t))
}
