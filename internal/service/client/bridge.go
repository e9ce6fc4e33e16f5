package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alanyang/ipc-bridge/internal/domain/channel"
	"github.com/alanyang/ipc-bridge/internal/domain/descriptor"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

// SlotKey names the well-known slot the mirror is published under.
const SlotKey = "$ipc"

var ErrNotExposed = errors.New("client: mirror not exposed yet")

// Slot holds the published mirror. Client code reads it through Connect; the
// bridge writes it once per discovery cycle.
type Slot struct {
	root atomic.Pointer[Node]
}

func NewSlot() *Slot { return &Slot{} }

// Load returns the published root, or nil before the first publish.
func (s *Slot) Load() *Node { return s.root.Load() }

func (s *Slot) publish(n *Node) { s.root.Store(n) }

type Option func(*Bridge)

// WithEventSource routes event subscriptions through l instead of the
// invocation transport.
func WithEventSource(l transport.Listener) Option {
	return func(b *Bridge) { b.events = l }
}

// WithSlot publishes into a caller-owned slot.
func WithSlot(s *Slot) Option {
	return func(b *Bridge) { b.slot = s }
}

// Bridge is the client side of the bridge.
type Bridge struct {
	tr     transport.Client
	events transport.Listener
	slot   *Slot
}

func New(tr transport.Client, opts ...Option) *Bridge {
	b := &Bridge{tr: tr, events: tr}
	for _, opt := range opts {
		opt(b)
	}
	if b.slot == nil {
		b.slot = NewSlot()
	}
	return b
}

// Slot returns the slot the mirror is published into.
func (b *Bridge) Slot() *Slot { return b.slot }

// Expose performs the discovery handshake, builds the mirror, and publishes
// it. It blocks until the host answers or the transport gives up; it must
// complete before Connect is used.
func (b *Bridge) Expose(ctx context.Context) error {
	data, err := b.tr.Request(ctx, channel.Discovery)
	if err != nil {
		return fmt.Errorf("discovery request: %w", err)
	}
	list, err := descriptor.Decode(data)
	if err != nil {
		return err
	}
	root := b.build(list)
	b.slot.publish(root)
	slog.DebugContext(ctx, "client: mirror exposed", "members", len(root.Names()))
	return nil
}

// ExposeNames publishes invokers for a caller-supplied list of function names
// without a discovery round-trip. Names go under namespace ns, or the root
// when ns is empty. Entries already published are kept.
func (b *Bridge) ExposeNames(ns string, names ...string) {
	root := cloneNode(b.slot.Load())
	target := root
	if ns != "" {
		target = root.namespaces[ns]
		if target == nil {
			target = newNode(ns)
			root.namespaces[ns] = target
		}
	}
	for _, name := range names {
		target.funcs[name] = &Invoker{channel: channel.For(name, ns), tr: b.tr}
	}
	b.slot.publish(root)
}

// Connect returns the root mirror for an empty key, otherwise the named
// namespace. It returns nil if Expose has not completed or the key was not
// discovered. No I/O happens here.
func (b *Bridge) Connect(ns string) *Node {
	root := b.slot.Load()
	if ns == "" {
		return root
	}
	return root.Namespace(ns)
}

func (b *Bridge) build(list descriptor.List) *Node {
	root := newNode("")
	for _, d := range list {
		switch d.Kind {
		case descriptor.KindFunction, descriptor.KindEvents:
			b.install(root, "", d)
		case descriptor.KindNamespace:
			child := root.namespaces[d.Name]
			if child == nil {
				child = newNode(d.Name)
				root.namespaces[d.Name] = child
			}
			for _, v := range d.Values {
				b.install(child, d.Name, v)
			}
		}
	}
	return root
}

func (b *Bridge) install(n *Node, ns string, d descriptor.Descriptor) {
	ch := channel.For(d.Name, ns)
	switch d.Kind {
	case descriptor.KindFunction:
		n.funcs[d.Name] = &Invoker{channel: ch, tr: b.tr}
	case descriptor.KindEvents:
		n.events[d.Name] = &Events{base: ch, src: b.events}
	}
}

func cloneNode(n *Node) *Node {
	if n == nil {
		return newNode("")
	}
	out := newNode(n.name)
	for k, v := range n.funcs {
		out.funcs[k] = v
	}
	for k, v := range n.events {
		out.events[k] = v
	}
	for k, v := range n.namespaces {
		out.namespaces[k] = cloneNode(v)
	}
	return out
}
