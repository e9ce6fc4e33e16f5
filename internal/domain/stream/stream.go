// Package stream implements the event emitter a host registers as an Events
// entry.
//
// An emission runs two declared steps in order: local listeners are notified
// synchronously, then the event is forwarded to every attached Pipe. The host
// attaches one pipe per registration to relay emissions to connected clients.
package stream

import (
	"context"
	"sync"
	"sync/atomic"
)

// Listener receives the arguments of one emission.
type Listener func(args ...any)

// Unsubscribe removes exactly the listener it was returned for. Calling it
// more than once is a no-op.
type Unsubscribe func()

// Guard makes remove idempotent.
func Guard(remove func()) Unsubscribe {
	var once sync.Once
	return func() { once.Do(remove) }
}

// Pipe is the remote step of an emission.
type Pipe interface {
	Forward(ctx context.Context, event string, args []any)
}

// PipeFunc adapts a function to Pipe.
type PipeFunc func(ctx context.Context, event string, args []any)

func (f PipeFunc) Forward(ctx context.Context, event string, args []any) { f(ctx, event, args) }

type listener struct {
	fn    Listener
	once  bool
	fired atomic.Bool
}

type pipeSlot struct {
	pipe Pipe
}

type Stream struct {
	mu        sync.RWMutex
	listeners map[string][]*listener
	pipes     []*pipeSlot
}

func New() *Stream {
	return &Stream{listeners: make(map[string][]*listener)}
}

// On subscribes fn to every emission of event.
func (s *Stream) On(event string, fn Listener) Unsubscribe {
	return s.add(event, &listener{fn: fn})
}

// Once subscribes fn to the next emission of event only.
func (s *Stream) Once(event string, fn Listener) Unsubscribe {
	return s.add(event, &listener{fn: fn, once: true})
}

func (s *Stream) add(event string, l *listener) Unsubscribe {
	s.mu.Lock()
	s.listeners[event] = append(s.listeners[event], l)
	s.mu.Unlock()
	return Guard(func() { s.remove(event, l) })
}

func (s *Stream) remove(event string, l *listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls := s.listeners[event]
	for i, cur := range ls {
		if cur == l {
			s.listeners[event] = append(ls[:i:i], ls[i+1:]...)
			break
		}
	}
	if len(s.listeners[event]) == 0 {
		delete(s.listeners, event)
	}
}

// Attach adds p as a remote step. The returned func detaches it.
func (s *Stream) Attach(p Pipe) (detach func()) {
	slot := &pipeSlot{pipe: p}
	s.mu.Lock()
	s.pipes = append(s.pipes, slot)
	s.mu.Unlock()
	return Guard(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, cur := range s.pipes {
			if cur == slot {
				s.pipes = append(s.pipes[:i:i], s.pipes[i+1:]...)
				return
			}
		}
	})
}

// Emit notifies local listeners of event, then forwards it to every pipe.
func (s *Stream) Emit(ctx context.Context, event string, args ...any) {
	s.mu.RLock()
	ls := append([]*listener(nil), s.listeners[event]...)
	pipes := append([]*pipeSlot(nil), s.pipes...)
	s.mu.RUnlock()

	for _, l := range ls {
		if l.once {
			if !l.fired.CompareAndSwap(false, true) {
				continue
			}
			s.remove(event, l)
		}
		l.fn(args...)
	}

	for _, p := range pipes {
		p.pipe.Forward(ctx, event, args)
	}
}
