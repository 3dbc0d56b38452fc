// Copyright 2026 The Fuzzfleet Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import "net"

// FreePort reserves an ephemeral TCP port and returns its number. The
// listener is closed before returning, so the caller can hand the port
// to a broker that binds it itself.
func FreePort(t interface {
	Helper()
	Fatalf(format string, args ...any)
}) uint16 {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return uint16(port)
}
