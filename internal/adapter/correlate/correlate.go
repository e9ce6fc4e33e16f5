// Package correlate holds the client-side bookkeeping shared by transports:
// invocations waiting for replies, and event listeners keyed by channel.
package correlate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alanyang/ipc-bridge/internal/domain/future"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/domain/stream"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

// Pending maps invocation ids to the futures their replies settle.
type Pending struct {
	mu     sync.Mutex
	m      map[string]*future.Future
	closed error
}

func NewPending() *Pending {
	return &Pending{m: make(map[string]*future.Future)}
}

// Add tracks f under id until a reply arrives or ctx ends, whichever is first.
// Cancelling ctx rejects f with ctx.Err(). After Close, Add returns the close
// error and does not track f.
func (p *Pending) Add(ctx context.Context, id string, f *future.Future) error {
	p.mu.Lock()
	if p.closed != nil {
		err := p.closed
		p.mu.Unlock()
		return err
	}
	p.m[id] = f
	p.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			if p.Take(id) != nil {
				f.Reject(ctx.Err())
			}
		case <-f.Done():
		}
	}()
	return nil
}

// Take removes and returns the future for id, or nil if nobody waits for it.
func (p *Pending) Take(id string) *future.Future {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.m[id]
	if !ok {
		return nil
	}
	delete(p.m, id)
	return f
}

// Settle completes the waiter for a reply envelope. A reply nobody waits for
// is logged and dropped.
func (p *Pending) Settle(env message.Envelope) {
	f := p.Take(env.ID)
	if f == nil {
		slog.Debug("dropping reply without waiter", "channel", env.Channel, "id", env.ID)
		return
	}
	if err := env.Err(); err != nil {
		f.Reject(err)
		return
	}
	f.Resolve(env.Result)
}

func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

// Close rejects every waiter with err and refuses new ones. Only the first
// call has an effect.
func (p *Pending) Close(err error) {
	p.mu.Lock()
	if p.closed != nil {
		p.mu.Unlock()
		return
	}
	p.closed = err
	waiting := p.m
	p.m = make(map[string]*future.Future)
	p.mu.Unlock()

	for _, f := range waiting {
		f.Reject(err)
	}
}

type slot struct {
	fn transport.EventListener
}

// Listeners is a channel-keyed listener table. The zero value is ready to use.
type Listeners struct {
	mu sync.RWMutex
	m  map[string][]*slot
}

// Add registers fn for channel. The returned func removes exactly that
// registration and is idempotent.
func (l *Listeners) Add(channel string, fn transport.EventListener) (remove func()) {
	s := &slot{fn: fn}
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string][]*slot)
	}
	l.m[channel] = append(l.m[channel], s)
	l.mu.Unlock()

	return stream.Guard(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		ls := l.m[channel]
		for i, cur := range ls {
			if cur == s {
				l.m[channel] = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
		if len(l.m[channel]) == 0 {
			delete(l.m, channel)
		}
	})
}

// Dispatch calls every listener registered on channel at the time of the
// call, in registration order. It reports how many ran.
func (l *Listeners) Dispatch(channel string, args message.Args) int {
	l.mu.RLock()
	ls := append([]*slot(nil), l.m[channel]...)
	l.mu.RUnlock()
	for _, s := range ls {
		s.fn(args)
	}
	return len(ls)
}
