// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// reexecTopology creates workers through the portable process API. It
// trades the native strategy's precise descriptor placement and
// graceful interrupt for working on every platform Go targets.
type reexecTopology struct{}

func (t *reexecTopology) Spawn(spec childSpec) (handle, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolving own executable: %w", err)
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = spec.env
	if spec.stdout != nil {
		cmd.Stdout = spec.stdout
	} else {
		cmd.Stdout = os.Stdout
	}
	if spec.stderr != nil {
		cmd.Stderr = spec.stderr
	} else {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("re-executing %s: %w", exe, err)
	}
	return &reexecHandle{cmd: cmd}, nil
}

type reexecHandle struct {
	cmd *exec.Cmd
}

func (h *reexecHandle) Pid() int { return h.cmd.Process.Pid }

func (h *reexecHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ProcessState.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("waiting for pid %d: %w", h.cmd.Process.Pid, err)
	}
	return 0, nil
}

// Shutdown kills the worker outright. The portable API has no
// cross-platform graceful interrupt.
func (h *reexecHandle) Shutdown() error {
	err := h.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
