package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/alanyang/ipc-bridge/internal/adapter/correlate"
	"github.com/alanyang/ipc-bridge/internal/domain/future"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

// Client implements transport.Client. Replies and events reach it through one
// ordered inbox drained by a single goroutine.
type Client struct {
	bus       *Bus
	pending   *correlate.Pending
	listeners correlate.Listeners

	mu     sync.Mutex
	inbox  []message.Envelope
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newClient(b *Bus) *Client {
	return &Client{
		bus:     b,
		pending: correlate.NewPending(),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Invoke sends one invocation. Cancelling ctx rejects the future and drops
// interest in the reply; a reply arriving afterwards is discarded.
func (c *Client) Invoke(ctx context.Context, channel string, args message.Args) *future.Future {
	f := future.New()
	inv := message.NewInvocation(channel, cloneArgs(args))
	if err := c.pending.Add(ctx, inv.ID, f); err != nil {
		f.Reject(err)
		return f
	}
	go func() {
		c.enqueue(c.bus.serve(inv))
	}()
	return f
}

// Request runs the bus responder for channel synchronously.
func (c *Client) Request(ctx context.Context, channel string) ([]byte, error) {
	return c.bus.request(ctx, channel)
}

// Listen registers fn for events on channel.
func (c *Client) Listen(channel string, fn transport.EventListener) (remove func()) {
	return c.listeners.Add(channel, fn)
}

// Pending reports invocations still waiting for a reply.
func (c *Client) Pending() int {
	return c.pending.Len()
}

// Close disconnects the client and rejects every pending invocation.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.inbox = nil
	c.mu.Unlock()

	c.bus.disconnect(c)
	close(c.done)
	c.pending.Close(ErrClosed)
	return nil
}

func (c *Client) enqueue(env message.Envelope) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inbox = append(c.inbox, env)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Client) run() {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}
		for {
			c.mu.Lock()
			batch := c.inbox
			c.inbox = nil
			c.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, env := range batch {
				c.deliver(env)
			}
		}
	}
}

func (c *Client) deliver(env message.Envelope) {
	switch env.Type {
	case message.TypeReply:
		c.pending.Settle(env)
	case message.TypeEvent:
		c.listeners.Dispatch(env.Channel, env.Args)
	}
}

func cloneArgs(args message.Args) message.Args {
	out := make(message.Args, len(args))
	for i, a := range args {
		out[i] = append(json.RawMessage(nil), a...)
	}
	return out
}
