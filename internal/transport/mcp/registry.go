package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// methodMessage is the notification method events are delivered under.
const methodMessage = "notifications/message"

// SessionRegistry is the in-memory registry of active MCP sessions. Events are
// fanned out to every session it tracks.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]time.Time // sessionID → connected at

	// mcpSrv is set after the MCP server is constructed (avoids circular init dependency).
	mcpMu  sync.RWMutex
	mcpSrv *mcpserver.MCPServer
}

// NewSessionRegistry creates a registry without an MCP server reference.
// Call SetMCPServer once the mcp-go server is constructed.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]time.Time),
	}
}

func (r *SessionRegistry) SetMCPServer(s *mcpserver.MCPServer) {
	r.mcpMu.Lock()
	r.mcpSrv = s
	r.mcpMu.Unlock()
}

// Register starts tracking a session. Registering it again is a no-op.
func (r *SessionRegistry) Register(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		r.sessions[sessionID] = time.Now()
	}
}

// Unregister stops tracking a session and reports whether it was known.
func (r *SessionRegistry) Unregister(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sessionID]; !ok {
		return false
	}
	delete(r.sessions, sessionID)
	return true
}

func (r *SessionRegistry) IsConnected(sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[sessionID]
	return ok
}

func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// NotifyAll sends params as a notifications/message to every tracked session.
// It keeps going past failures and returns the last one.
func (r *SessionRegistry) NotifyAll(_ context.Context, params map[string]any) error {
	r.mu.RLock()
	targets := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		targets = append(targets, id)
	}
	r.mu.RUnlock()

	if len(targets) == 0 {
		return nil // Nobody listening.
	}

	r.mcpMu.RLock()
	srv := r.mcpSrv
	r.mcpMu.RUnlock()

	if srv == nil {
		return fmt.Errorf("mcp server not initialized")
	}

	var lastErr error
	for _, id := range targets {
		if err := srv.SendNotificationToSpecificClient(id, methodMessage, params); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
