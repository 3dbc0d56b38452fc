// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package shmem

import (
	"bytes"
	"os"
	"testing"
)

func TestMmapProviderSharedVisibility(t *testing.T) {
	parent := NewMmapProvider("visibility-test")
	defer parent.Close()

	segment, err := parent.New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	copy(segment.Data, "written by parent")

	if err := parent.PreSpawn(); err != nil {
		t.Fatalf("PreSpawn: %v", err)
	}
	env := parent.ChildEnv()
	if len(env) != 1 {
		t.Fatalf("ChildEnv = %v, want one entry", env)
	}

	// Simulate the child side of the protocol in-process: set the
	// inherited environment and attach by description.
	t.Setenv(DescriptionEnv, env[0][len(DescriptionEnv)+1:])
	child := AttachFromEnv()
	defer child.Close()
	if err := child.PostSpawn(true); err != nil {
		t.Fatalf("child PostSpawn: %v", err)
	}
	if err := parent.PostSpawn(false); err != nil {
		t.Fatalf("parent PostSpawn: %v", err)
	}

	attached := child.Get(segment.Name)
	if attached == nil {
		t.Fatalf("child did not attach segment %s", segment.Name)
	}
	if !bytes.HasPrefix(attached.Data, []byte("written by parent")) {
		t.Errorf("child read %q, want parent's write", attached.Data[:17])
	}

	// Writes travel the other way through the same pages.
	copy(attached.Data[32:], "written by child")
	if !bytes.HasPrefix(segment.Data[32:], []byte("written by child")) {
		t.Errorf("parent did not observe child write")
	}
}

func TestMmapProviderCloseRemovesBackingFiles(t *testing.T) {
	provider := NewMmapProvider("close-test")
	segment, err := provider.New(1024)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	name := segment.Name

	if err := provider.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(shmDir() + "/" + name); !os.IsNotExist(err) {
		t.Errorf("backing file %s still exists after Close", name)
	}
}

func TestMmapProviderRejectsBadSize(t *testing.T) {
	provider := NewMmapProvider("size-test")
	defer provider.Close()
	if _, err := provider.New(0); err == nil {
		t.Error("New(0) succeeded, want error")
	}
}
