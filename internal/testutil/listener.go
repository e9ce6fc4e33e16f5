//go:build integration

package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/alanyang/ipc-bridge/internal/domain/message"
)

// CaptureListener is a test-double EventListener. It records every payload
// with a mutex so it is safe for concurrent use.
type CaptureListener struct {
	mu    sync.Mutex
	Calls []message.Args
}

func (c *CaptureListener) Listen(args message.Args) {
	c.mu.Lock()
	c.Calls = append(c.Calls, args)
	c.mu.Unlock()
}

func (c *CaptureListener) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// WaitFor fails the test unless n payloads arrive within timeout.
func (c *CaptureListener) WaitFor(t *testing.T, n int, timeout time.Duration) []message.Args {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Len() >= n {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Calls) < n {
		t.Fatalf("expected %d events, got %d", n, len(c.Calls))
	}
	return append([]message.Args(nil), c.Calls...)
}
