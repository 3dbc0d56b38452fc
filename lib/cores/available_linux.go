// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package cores

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// onlinePath lists the online CPUs in the kernel's range syntax
// ("0-7" or "0-3,8-11").
const onlinePath = "/sys/devices/system/cpu/online"

// Available enumerates the machine's online cores from sysfs. When
// sysfs is unreadable (containers with a masked /sys), it falls back
// to a dense range over the runtime's CPU count.
func Available() ([]CoreID, error) {
	data, err := os.ReadFile(onlinePath)
	if err != nil {
		return denseRange(runtime.NumCPU()), nil
	}
	ids, err := parseKernelList(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", onlinePath, err)
	}
	return ids, nil
}

// parseKernelList parses the kernel's CPU list syntax, which is the
// same comma/range form Parse accepts minus "all".
func parseKernelList(text string) ([]CoreID, error) {
	set, err := Parse(text)
	if err != nil {
		return nil, err
	}
	return set.IDs, nil
}
