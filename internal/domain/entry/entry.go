package entry

import (
	"context"

	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/domain/stream"
)

type Kind int

const (
	KindInvalid Kind = iota
	KindFunction
	KindEvents
)

func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindEvents:
		return "events"
	default:
		return "invalid"
	}
}

// Func is the uniform shape every function entry is reduced to. The returned
// value may be a *future.Future, in which case its settlement is the reply.
type Func func(ctx context.Context, args message.Args) (any, error)

// Entry is one registered unit. Construct it with Function, Handler, or
// Events; the zero value is invalid and is skipped on registration.
type Entry struct {
	Kind   Kind
	Func   Func
	Stream *stream.Stream
}

// Set maps local names to entries. It is the payload of one registration.
type Set map[string]Entry

func (e Entry) Valid() bool {
	switch e.Kind {
	case KindFunction:
		return e.Func != nil
	case KindEvents:
		return e.Stream != nil
	default:
		return false
	}
}

// Handler wraps a Func that already speaks positional JSON arguments.
func Handler(fn Func) Entry {
	if fn == nil {
		return Entry{}
	}
	return Entry{Kind: KindFunction, Func: fn}
}

// Events wraps an event stream.
func Events(s *stream.Stream) Entry {
	if s == nil {
		return Entry{}
	}
	return Entry{Kind: KindEvents, Stream: s}
}
