// Package netprobe provides the TCP bind preflight used before launching a
// process that declares a port.
package netprobe

import (
	"context"
	"fmt"
	"net"
	"time"
)

// IsPortFree attempts a transient bind on 127.0.0.1:port and reports whether
// it succeeded. The listener is released immediately; there are no other
// side effects.
func IsPortFree(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = l.Close()
	return true
}

// WaitForPortFree polls until the port is bindable, the timeout elapses, or
// the context is canceled. Useful after stopping a process whose socket may
// linger briefly.
func WaitForPortFree(ctx context.Context, port int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if IsPortFree(port) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
