package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/alanyang/ipc-bridge/internal/domain/channel"
	"github.com/alanyang/ipc-bridge/internal/domain/future"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/domain/stream"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

// Node is one level of the mirror: the root or a namespace. It is built once
// per discovery cycle and read-only afterwards.
type Node struct {
	name       string
	funcs      map[string]*Invoker
	events     map[string]*Events
	namespaces map[string]*Node
}

func newNode(name string) *Node {
	return &Node{
		name:       name,
		funcs:      make(map[string]*Invoker),
		events:     make(map[string]*Events),
		namespaces: make(map[string]*Node),
	}
}

// Name is the namespace key, empty for the root.
func (n *Node) Name() string { return n.name }

// Func returns the invoker for a remote function, or nil.
func (n *Node) Func(name string) *Invoker {
	if n == nil {
		return nil
	}
	return n.funcs[name]
}

// Events returns the subscription object for a remote stream, or nil.
func (n *Node) Events(name string) *Events {
	if n == nil {
		return nil
	}
	return n.events[name]
}

// Namespace returns a child node, or nil.
func (n *Node) Namespace(name string) *Node {
	if n == nil {
		return nil
	}
	return n.namespaces[name]
}

// Names lists every member of n, sorted.
func (n *Node) Names() []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.funcs)+len(n.events)+len(n.namespaces))
	for name := range n.funcs {
		out = append(out, name)
	}
	for name := range n.events {
		out = append(out, name)
	}
	for name := range n.namespaces {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Invoker forwards calls to one remote function.
type Invoker struct {
	channel string
	tr      transport.Client
}

// Channel is the invocation channel the invoker sends on.
func (i *Invoker) Channel() string { return i.channel }

// Call sends one invocation. The future resolves to the reply's raw JSON
// result, or rejects with a *message.RemoteError or a transport error.
func (i *Invoker) Call(ctx context.Context, args ...any) *future.Future {
	encoded, err := message.EncodeArgs(args...)
	if err != nil {
		return future.Rejected(err)
	}
	return i.tr.Invoke(ctx, i.channel, encoded)
}

// Do calls the remote function and decodes its result into out, which may be
// nil to discard it.
func (i *Invoker) Do(ctx context.Context, out any, args ...any) error {
	v, err := i.Call(ctx, args...).Await(ctx)
	if err != nil {
		return err
	}
	return decodeResult(v, out)
}

func decodeResult(v any, out any) error {
	if out == nil {
		return nil
	}
	raw, ok := v.(json.RawMessage)
	if !ok {
		return fmt.Errorf("client: unexpected result type %T", v)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("client: decoding result: %w", err)
	}
	return nil
}

// Events is the client view of a remote event stream.
type Events struct {
	base string
	src  transport.Listener
}

// Channel is the base channel sub-events are derived from.
func (e *Events) Channel() string { return e.base }

// On delivers every emission of sub to fn until the returned handle is called.
func (e *Events) On(sub string, fn func(args message.Args)) stream.Unsubscribe {
	return stream.Guard(e.src.Listen(channel.Event(e.base, sub), fn))
}

// Once delivers the next emission of sub to fn only. Calling the handle after
// it fired is a no-op.
func (e *Events) Once(sub string, fn func(args message.Args)) stream.Unsubscribe {
	var (
		fired  atomic.Bool
		ready  = make(chan struct{})
		remove func()
	)
	remove = e.src.Listen(channel.Event(e.base, sub), func(args message.Args) {
		if !fired.CompareAndSwap(false, true) {
			return
		}
		<-ready
		remove()
		fn(args)
	})
	close(ready)
	return stream.Guard(remove)
}
