//go:generate mockgen -source=transport.go -destination=../../mocks/transport.go -package=mocks

package transport

import (
	"context"
	"encoding/json"

	"github.com/alanyang/ipc-bridge/internal/domain/future"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
)

// Handler answers one invocation on a channel.
type Handler func(ctx context.Context, args message.Args) (json.RawMessage, error)

// SyncHandler answers a synchronous request. It backs the discovery handshake.
type SyncHandler func(ctx context.Context) ([]byte, error)

// EventListener receives the payload of one event message.
type EventListener func(args message.Args)

// ── Host capabilities ────────────────────────────────────────────────────────
// A host endpoint implements whichever of these it can carry. The host service
// discovers them by type assertion.

// Binder routes invocations to handlers. At most one handler is bound per
// channel; binding again replaces the previous handler.
type Binder interface {
	Handle(channel string, h Handler)
	Unhandle(channel string)
}

// Broadcaster fans an event out to every connected client. Fire and forget.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel string, args message.Args) error
}

// Responder answers synchronous requests on a channel.
type Responder interface {
	Respond(channel string, h SyncHandler)
}

// ── Client capabilities ──────────────────────────────────────────────────────

// Listener delivers events for a channel, in send order, to a local callback.
// The returned func removes exactly that callback and is idempotent.
type Listener interface {
	Listen(channel string, fn EventListener) (remove func())
}

// Client is everything the client builder needs from a transport.
type Client interface {
	Listener

	// Invoke sends one invocation and returns a future settled by its reply.
	// Each call is correlated independently.
	Invoke(ctx context.Context, channel string, args message.Args) *future.Future

	// Request performs the blocking round-trip used for discovery.
	Request(ctx context.Context, channel string) ([]byte, error)
}
