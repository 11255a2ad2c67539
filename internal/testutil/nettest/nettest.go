// Package nettest finds loopback ports and addresses for socket tests.
package nettest

import (
	"net"
	"testing"
)

// FreePort returns a port that is currently unused for both UDP and TCP on host.
func FreePort(t *testing.T, host string) int {
	t.Helper()
	for n := 0; n < 32; n++ {
		ln, err := net.Listen("tcp4", net.JoinHostPort(host, "0"))
		if err != nil {
			t.Fatalf("reserve tcp port on %s: %v", host, err)
		}
		port := ln.Addr().(*net.TCPAddr).Port
		pc, err := net.ListenPacket("udp4", ln.Addr().String())
		_ = ln.Close()
		if err != nil {
			continue
		}
		_ = pc.Close()
		return port
	}
	t.Fatalf("no port free for both udp and tcp on %s", host)
	return 0
}

// RequireLoopback skips the test when host cannot be bound locally.
// Linux routes all of 127.0.0.0/8 to lo; other platforms may need an alias.
func RequireLoopback(t *testing.T, host string) {
	t.Helper()
	pc, err := net.ListenPacket("udp4", net.JoinHostPort(host, "0"))
	if err != nil {
		t.Skipf("loopback address %s unavailable: %v", host, err)
	}
	_ = pc.Close()
}
