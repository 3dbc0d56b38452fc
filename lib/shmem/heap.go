// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package shmem

import "fmt"

// HeapProvider is a process-local Provider for tests and platforms
// without shared mappings. Its segments are plain heap allocations, so
// nothing is actually shared across a spawn; the hook protocol is
// still enforced so tests can assert it was followed.
type HeapProvider struct {
	counter    int
	segments   []*Segment
	childEnv   []string
	PreSpawns  int
	PostSpawns int
}

var _ Provider = (*HeapProvider)(nil)

// NewHeapProvider returns an empty heap-backed provider.
func NewHeapProvider() *HeapProvider { return &HeapProvider{} }

// New allocates a zero-filled heap segment.
func (p *HeapProvider) New(size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("segment size must be positive, got %d", size)
	}
	segment := &Segment{
		Name: fmt.Sprintf("heap-%d", p.counter),
		Data: make([]byte, size),
	}
	p.counter++
	p.segments = append(p.segments, segment)
	return segment, nil
}

// PreSpawn records the hook call and publishes the description.
func (p *HeapProvider) PreSpawn() error {
	p.PreSpawns++
	p.childEnv = []string{DescriptionEnv + "=" + describe(p.segments)}
	return nil
}

// PostSpawn records the hook call.
func (p *HeapProvider) PostSpawn(isChild bool) error {
	p.PostSpawns++
	if !isChild {
		p.childEnv = nil
	}
	return nil
}

// ChildEnv returns the description published by the last PreSpawn.
func (p *HeapProvider) ChildEnv() []string { return p.childEnv }

// Close drops all segments.
func (p *HeapProvider) Close() error {
	p.segments = nil
	return nil
}
