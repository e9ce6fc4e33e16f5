package mcp_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	mcptransport "github.com/alanyang/ipc-bridge/internal/transport/mcp"
)

func TestRegistry_RegisterUnregister(t *testing.T) {
	reg := mcptransport.NewSessionRegistry()

	reg.Register("session-1")
	reg.Register("session-1")
	assert.True(t, reg.IsConnected("session-1"))
	assert.Equal(t, 1, reg.Count())

	assert.True(t, reg.Unregister("session-1"))
	assert.False(t, reg.Unregister("session-1"))
	assert.False(t, reg.IsConnected("session-1"))
}

func TestNotifyAll_NoSessions_NoOp(t *testing.T) {
	reg := mcptransport.NewSessionRegistry()

	err := reg.NotifyAll(context.Background(), map[string]any{"channel": "clock::tick"})
	assert.NoError(t, err, "NotifyAll with no sessions must be a no-op")
}

func TestNotifyAll_ServerNotInitialized(t *testing.T) {
	reg := mcptransport.NewSessionRegistry()
	reg.Register("session-1")

	err := reg.NotifyAll(context.Background(), map[string]any{"channel": "clock::tick"})
	assert.Error(t, err)
}
