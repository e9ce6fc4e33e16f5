// Package mcp publishes the host registry over the Model Context Protocol:
// functions become tools, emitted events become notifications, and
// synchronous responders (discovery included) become resources.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/alanyang/ipc-bridge/internal/domain/channel"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

// Server wraps the mark3labs/mcp-go MCPServer and its StreamableHTTPServer.
// It implements transport.Binder, transport.Broadcaster and transport.Responder.
type Server struct {
	mcpSrv  *mcpserver.MCPServer
	httpSrv *mcpserver.StreamableHTTPServer
	reg     *SessionRegistry
}

// New creates the MCP transport server.
func New(name, version string) *Server {
	s := &Server{reg: NewSessionRegistry()}

	hooks := &mcpserver.Hooks{}
	hooks.OnRegisterSession = append(hooks.OnRegisterSession, s.onSessionOpen)
	hooks.OnUnregisterSession = append(hooks.OnUnregisterSession, s.onSessionClose)

	s.mcpSrv = mcpserver.NewMCPServer(
		name,
		version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, true),
		mcpserver.WithPromptCapabilities(false),
		mcpserver.WithHooks(hooks),
	)
	s.reg.SetMCPServer(s.mcpSrv)

	s.httpSrv = mcpserver.NewStreamableHTTPServer(s.mcpSrv)
	return s
}

// Handler returns an http.Handler that serves the MCP endpoint.
func (s *Server) Handler() http.Handler {
	return s.httpSrv
}

func (s *Server) Handle(ch string, h transport.Handler) {
	s.mcpSrv.AddTool(newTool(ch), toolHandler(ch, h))
}

func (s *Server) Unhandle(ch string) {
	s.mcpSrv.DeleteTools(ch)
}

func (s *Server) Respond(ch string, h transport.SyncHandler) {
	s.mcpSrv.AddResource(newResource(ch), resourceHandler(ch, h))
	if ch == channel.Discovery {
		s.mcpSrv.AddPrompt(newOverviewPrompt(), overviewHandler(h))
	}
}

// Broadcast sends the event to every MCP session as notifications/message.
func (s *Server) Broadcast(ctx context.Context, ch string, args message.Args) error {
	payload := make([]any, len(args))
	for i, a := range args {
		var v any
		if err := json.Unmarshal(a, &v); err != nil {
			return err
		}
		payload[i] = v
	}
	return s.reg.NotifyAll(ctx, map[string]any{"channel": ch, "args": payload})
}

func (s *Server) onSessionOpen(ctx context.Context, session mcpserver.ClientSession) {
	s.reg.Register(session.SessionID())
	slog.DebugContext(ctx, "mcp: session opened", "session_id", session.SessionID())
}

func (s *Server) onSessionClose(ctx context.Context, session mcpserver.ClientSession) {
	if s.reg.Unregister(session.SessionID()) {
		slog.DebugContext(ctx, "mcp: session closed", "session_id", session.SessionID())
	}
}
