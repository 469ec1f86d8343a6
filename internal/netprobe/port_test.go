package netprobe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// grabPort binds an ephemeral port and returns it with its listener.
func grabPort(t *testing.T) (int, net.Listener) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return l.Addr().(*net.TCPAddr).Port, l
}

func TestIsPortFree(t *testing.T) {
	port, l := grabPort(t)
	defer l.Close()
	assert.False(t, IsPortFree(port), "held port reports busy")

	require.NoError(t, l.Close())
	assert.True(t, IsPortFree(port), "released port reports free")
}

func TestWaitForPortFreeImmediate(t *testing.T) {
	port, l := grabPort(t)
	require.NoError(t, l.Close())
	assert.True(t, WaitForPortFree(context.Background(), port, time.Second))
}

func TestWaitForPortFreeTimesOut(t *testing.T) {
	port, l := grabPort(t)
	defer l.Close()
	began := time.Now()
	assert.False(t, WaitForPortFree(context.Background(), port, 300*time.Millisecond))
	assert.Less(t, time.Since(began), 2*time.Second)
}

func TestWaitForPortFreeCanceled(t *testing.T) {
	port, l := grabPort(t)
	defer l.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, WaitForPortFree(ctx, port, 10*time.Second))
}
