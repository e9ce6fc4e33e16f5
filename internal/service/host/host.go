package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyang/ipc-bridge/internal/domain/channel"
	"github.com/alanyang/ipc-bridge/internal/domain/descriptor"
	"github.com/alanyang/ipc-bridge/internal/domain/entry"
	"github.com/alanyang/ipc-bridge/internal/domain/registry"
	"github.com/alanyang/ipc-bridge/internal/domain/stream"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

var (
	ErrEmptyNamespace   = errors.New("host: namespace key must not be empty")
	ErrInvalidNamespace = errors.New("host: namespace key must not contain ':'")
)

// Service is the host side of the bridge: it merges registrations into the
// Registry, binds each entry on every attached endpoint, and answers discovery.
type Service struct {
	reg *registry.Registry

	mu      sync.Mutex
	started bool
	relays  map[string]func() // base channel → detach

	epMu         sync.RWMutex
	binders      []transport.Binder
	broadcasters []transport.Broadcaster
	responders   []transport.Responder
}

// NewService creates a host service over reg. Each endpoint contributes the
// transport capabilities it implements (Binder, Broadcaster, Responder).
func NewService(reg *registry.Registry, endpoints ...any) *Service {
	s := &Service{
		reg:    reg,
		relays: make(map[string]func()),
	}
	for _, ep := range endpoints {
		s.Attach(ep)
	}
	return s
}

// Attach adds an endpoint. Entries registered earlier are bound on it
// immediately, and it answers discovery if the responder is already up.
func (s *Service) Attach(ep any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, isBinder := ep.(transport.Binder)
	bc, isBroadcaster := ep.(transport.Broadcaster)
	r, isResponder := ep.(transport.Responder)
	if !isBinder && !isBroadcaster && !isResponder {
		slog.Warn("host: endpoint carries no transport capability", "endpoint", fmt.Sprintf("%T", ep))
		return
	}

	s.epMu.Lock()
	if isBinder {
		s.binders = append(s.binders, b)
	}
	if isBroadcaster {
		s.broadcasters = append(s.broadcasters, bc)
	}
	if isResponder {
		s.responders = append(s.responders, r)
	}
	s.epMu.Unlock()

	if isBinder {
		for ns, set := range s.reg.Snapshot() {
			for name, e := range set {
				if e.Kind == entry.KindFunction {
					b.Handle(channel.For(name, ns), s.handler(channel.For(name, ns), e.Func))
				}
			}
		}
	}
	if isResponder && s.started {
		r.Respond(channel.Discovery, s.respondDiscovery)
	}
}

// Start attaches the discovery responder. It runs at most once; Register and
// RegisterNamespace call it implicitly.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startLocked()
}

func (s *Service) startLocked() {
	if s.started {
		return
	}
	s.started = true
	s.epMu.RLock()
	defer s.epMu.RUnlock()
	for _, r := range s.responders {
		r.Respond(channel.Discovery, s.respondDiscovery)
	}
	slog.Debug("host: discovery responder attached", "channel", channel.Discovery)
}

// Register merges set into the root namespace.
func (s *Service) Register(set entry.Set) {
	s.register(registry.Root, set)
}

// RegisterNamespace merges set into namespace ns, which must be a non-empty
// key without the channel separator.
func (s *Service) RegisterNamespace(ns string, set entry.Set) error {
	if ns == "" {
		return ErrEmptyNamespace
	}
	if !channel.ValidName(ns) {
		return fmt.Errorf("%w: %q", ErrInvalidNamespace, ns)
	}
	s.register(ns, set)
	return nil
}

func (s *Service) register(ns string, set entry.Set) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startLocked()

	changes, skipped := s.reg.Merge(ns, set)
	for _, name := range skipped {
		slog.Debug("host: skipped invalid entry", "namespace", ns, "name", name)
	}
	for _, c := range changes {
		s.bindLocked(c)
	}
}

func (s *Service) bindLocked(c registry.Change) {
	ch := channel.For(c.Name, c.Namespace)

	switch c.Old.Kind {
	case entry.KindEvents:
		if detach, ok := s.relays[ch]; ok {
			detach()
			delete(s.relays, ch)
		}
	case entry.KindFunction:
		if c.New.Kind != entry.KindFunction {
			s.epMu.RLock()
			for _, b := range s.binders {
				b.Unhandle(ch)
			}
			s.epMu.RUnlock()
		}
	}

	switch c.New.Kind {
	case entry.KindFunction:
		h := s.handler(ch, c.New.Func)
		s.epMu.RLock()
		for _, b := range s.binders {
			b.Handle(ch, h)
		}
		s.epMu.RUnlock()
	case entry.KindEvents:
		s.relays[ch] = c.New.Stream.Attach(&relay{svc: s, base: ch})
	}
	slog.Debug("host: entry bound", "channel", ch, "kind", c.New.Kind.String())
}

// Describe returns the current registry shape.
func (s *Service) Describe() descriptor.List {
	return s.reg.Describe()
}

// Emitter returns the stream registered as name in namespace ns.
func (s *Service) Emitter(name, ns string) (*stream.Stream, bool) {
	e, ok := s.reg.Lookup(ns, name)
	if !ok || e.Kind != entry.KindEvents {
		return nil, false
	}
	return e.Stream, true
}

// respondDiscovery holds s.mu so an answer never lists an entry whose handler
// is still being bound.
func (s *Service) respondDiscovery(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return descriptor.Encode(s.reg.Describe())
}
