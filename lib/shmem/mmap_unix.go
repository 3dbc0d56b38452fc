// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package shmem

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// shmDir returns the directory for segment backing files. /dev/shm is
// a tmpfs on Linux; other unix systems fall back to the temp dir,
// which still supports shared file-backed mappings.
func shmDir() string {
	if info, err := os.Stat("/dev/shm"); err == nil && info.IsDir() {
		return "/dev/shm"
	}
	return os.TempDir()
}

// MmapProvider backs segments with mmap'd files so a re-exec'd child
// can attach the same pages by name. The creating process owns the
// backing files and removes them on Close; attached (child) providers
// only unmap.
type MmapProvider struct {
	prefix   string
	dir      string
	owner    bool
	counter  int
	segments []*Segment
	childEnv []string
}

var _ Provider = (*MmapProvider)(nil)

// NewMmapProvider creates a provider whose segment names are
// namespaced by prefix (normally the campaign tag), so concurrent
// campaigns on one machine do not collide.
func NewMmapProvider(prefix string) *MmapProvider {
	return &MmapProvider{
		prefix: prefix,
		dir:    shmDir(),
		owner:  true,
	}
}

// AttachFromEnv builds a provider in a spawned child from the parent's
// segment description. The returned provider has no live mappings
// until PostSpawn(true) runs.
func AttachFromEnv() *MmapProvider {
	return &MmapProvider{dir: shmDir()}
}

// New allocates a zero-filled shared segment.
func (p *MmapProvider) New(size int) (*Segment, error) {
	if size <= 0 {
		return nil, fmt.Errorf("segment size must be positive, got %d", size)
	}
	name := fmt.Sprintf("fuzzfleet-%s-%d-%d", p.prefix, os.Getpid(), p.counter)
	p.counter++

	segment, err := mapSegment(p.dir, name, size, true)
	if err != nil {
		return nil, err
	}
	p.segments = append(p.segments, segment)
	return segment, nil
}

// PreSpawn flushes every segment to its backing object and refreshes
// the child environment description.
func (p *MmapProvider) PreSpawn() error {
	for _, segment := range p.segments {
		if err := unix.Msync(segment.Data, unix.MS_SYNC); err != nil {
			return fmt.Errorf("syncing segment %s: %w", segment.Name, err)
		}
	}
	p.childEnv = []string{DescriptionEnv + "=" + describe(p.segments)}
	return nil
}

// PostSpawn completes the duplication protocol. In the parent it
// clears the published child environment. In a child it attaches every
// segment named in the inherited description.
func (p *MmapProvider) PostSpawn(isChild bool) error {
	if !isChild {
		p.childEnv = nil
		return nil
	}

	table, err := parseDescription(os.Getenv(DescriptionEnv))
	if err != nil {
		return fmt.Errorf("inherited segment description: %w", err)
	}
	for name, size := range table {
		segment, err := mapSegment(p.dir, name, size, false)
		if err != nil {
			return fmt.Errorf("attaching segment %s: %w", name, err)
		}
		p.segments = append(p.segments, segment)
	}
	return nil
}

// ChildEnv returns the environment entries published by the last
// PreSpawn.
func (p *MmapProvider) ChildEnv() []string { return p.childEnv }

// Get returns the attached segment with the given name, or nil.
func (p *MmapProvider) Get(name string) *Segment {
	for _, segment := range p.segments {
		if segment.Name == name {
			return segment
		}
	}
	return nil
}

// Close unmaps all segments and, in the owning process, unlinks their
// backing files. Per-segment failures are collected so one bad unmap
// does not leak the rest.
func (p *MmapProvider) Close() error {
	var firstErr error
	for _, segment := range p.segments {
		if err := unix.Munmap(segment.Data); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("unmapping %s: %w", segment.Name, err)
		}
		if p.owner {
			if err := os.Remove(filepath.Join(p.dir, segment.Name)); err != nil && !os.IsNotExist(err) && firstErr == nil {
				firstErr = fmt.Errorf("removing %s: %w", segment.Name, err)
			}
		}
	}
	p.segments = nil
	return firstErr
}

// mapSegment opens (or creates) the named backing file and maps it
// shared and read-write.
func mapSegment(dir, name string, size int, create bool) (*Segment, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_EXCL
	}
	file, err := os.OpenFile(filepath.Join(dir, name), flags, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening segment backing file: %w", err)
	}
	defer file.Close()

	if create {
		if err := file.Truncate(int64(size)); err != nil {
			os.Remove(file.Name())
			return nil, fmt.Errorf("sizing segment backing file: %w", err)
		}
	}

	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		if create {
			os.Remove(file.Name())
		}
		return nil, fmt.Errorf("mapping segment %s: %w", name, err)
	}
	return &Segment{Name: name, Data: data}, nil
}
