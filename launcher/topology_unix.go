// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

//go:build unix

package launcher

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/fuzzfleet/fuzzfleet/lib/shmem"
)

// defaultTopology resolves StrategyAuto: native on unix.
func defaultTopology() (topology, error) {
	return nativeTopology()
}

// nativeTopology builds the native process-duplication strategy.
func nativeTopology() (topology, error) {
	return &nativeSpawner{exe: runningImage()}, nil
}

// runningImage returns the path the kernel will execute for "this same
// binary". /proc/self/exe survives the binary being replaced or deleted
// on disk mid-campaign; elsewhere the resolved executable path is the
// best available.
func runningImage() string {
	if _, err := os.Stat("/proc/self/exe"); err == nil {
		return "/proc/self/exe"
	}
	exe, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return exe
}

// nativeSpawner creates workers with os.StartProcess, installing the
// redirection files directly as the child's descriptors 1 and 2.
type nativeSpawner struct {
	exe string
}

func (s *nativeSpawner) Spawn(spec childSpec) (handle, error) {
	stdout := spec.stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := spec.stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	process, err := os.StartProcess(s.exe, os.Args, &os.ProcAttr{
		Env:   spec.env,
		Files: []*os.File{os.Stdin, stdout, stderr},
	})
	if err != nil {
		return nil, fmt.Errorf("starting %s: %w", s.exe, err)
	}
	return &nativeHandle{pid: process.Pid}, nil
}

type nativeHandle struct {
	pid int
}

func (h *nativeHandle) Pid() int { return h.pid }

// Wait reaps the worker and decodes its raw wait status.
func (h *nativeHandle) Wait() (int, error) {
	var status unix.WaitStatus
	for {
		_, err := unix.Wait4(h.pid, &status, 0, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return -1, fmt.Errorf("waiting for pid %d: %w", h.pid, err)
		}
		break
	}
	switch {
	case status.Exited():
		return status.ExitStatus(), nil
	case status.Signaled():
		return 128 + int(status.Signal()), nil
	default:
		return -1, fmt.Errorf("pid %d: unexpected wait status %#x", h.pid, int(status))
	}
}

// Shutdown interrupts the worker, giving it a chance to detach from its
// broker and flush state before exiting. A worker that already exited
// reports ESRCH, which is not an error here.
func (h *nativeHandle) Shutdown() error {
	err := unix.Kill(h.pid, unix.SIGINT)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

// attachProvider builds the shared-memory provider for a spawned
// worker from the inherited segment description.
func attachProvider() shmem.Provider {
	return shmem.AttachFromEnv()
}

// newOwnedProvider builds the launcher-side provider whose segments
// workers will inherit.
func newOwnedProvider(prefix string) shmem.Provider {
	return shmem.NewMmapProvider(prefix)
}
