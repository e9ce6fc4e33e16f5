// Package memory is an in-process transport. A Bus is the host endpoint and
// hands out Clients that share nothing with it but envelopes: arguments and
// results cross as encoded JSON exactly as they would over a socket.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

var (
	ErrNoHandler   = errors.New("memory: no handler bound for channel")
	ErrNoResponder = errors.New("memory: no responder bound for channel")
	ErrClosed      = errors.New("memory: client closed")
)

// Bus implements transport.Binder, transport.Broadcaster and
// transport.Responder.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[string]transport.Handler
	responders map[string]transport.SyncHandler
	clients    map[*Client]struct{}
}

func NewBus() *Bus {
	return &Bus{
		handlers:   make(map[string]transport.Handler),
		responders: make(map[string]transport.SyncHandler),
		clients:    make(map[*Client]struct{}),
	}
}

func (b *Bus) Handle(channel string, h transport.Handler) {
	b.mu.Lock()
	b.handlers[channel] = h
	b.mu.Unlock()
}

func (b *Bus) Unhandle(channel string) {
	b.mu.Lock()
	delete(b.handlers, channel)
	b.mu.Unlock()
}

func (b *Bus) Respond(channel string, h transport.SyncHandler) {
	b.mu.Lock()
	b.responders[channel] = h
	b.mu.Unlock()
}

// Broadcast queues the event on every connected client. Delivery is
// asynchronous; per-client order follows call order.
func (b *Bus) Broadcast(_ context.Context, channel string, args message.Args) error {
	env := message.NewEvent(channel, args)

	b.mu.RLock()
	targets := make([]*Client, 0, len(b.clients))
	for c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(env)
	}
	return nil
}

// Clients reports how many clients are connected.
func (b *Bus) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// NewClient connects a new client context to the bus.
func (b *Bus) NewClient() *Client {
	c := newClient(b)
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	go c.run()
	return c
}

func (b *Bus) disconnect(c *Client) {
	b.mu.Lock()
	delete(b.clients, c)
	b.mu.Unlock()
}

func (b *Bus) handler(channel string) (transport.Handler, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	h, ok := b.handlers[channel]
	return h, ok
}

// serve runs one invocation on the host side and returns its reply.
func (b *Bus) serve(inv message.Envelope) message.Envelope {
	h, ok := b.handler(inv.Channel)
	if !ok {
		return message.NewReply(inv, nil, fmt.Errorf("%w: %s", ErrNoHandler, inv.Channel))
	}
	result, err := h(context.Background(), inv.Args)
	return message.NewReply(inv, result, err)
}

func (b *Bus) request(ctx context.Context, channel string) ([]byte, error) {
	b.mu.RLock()
	h, ok := b.responders[channel]
	b.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoResponder, channel)
	}
	return h(ctx)
}
