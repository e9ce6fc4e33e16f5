package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyang/ipc-bridge/internal/domain/channel"
	"github.com/alanyang/ipc-bridge/internal/domain/entry"
	"github.com/alanyang/ipc-bridge/internal/domain/future"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

// handler turns an entry func into a transport handler. An asynchronous
// result is awaited so the reply carries its settlement, and a panic becomes
// a failed reply rather than taking the host down.
func (s *Service) handler(ch string, fn entry.Func) transport.Handler {
	return func(ctx context.Context, args message.Args) (result json.RawMessage, err error) {
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(ctx, "host: function panicked", "channel", ch, "panic", r)
				result, err = nil, fmt.Errorf("panic: %v", r)
			}
		}()

		v, err := fn(ctx, args)
		if err != nil {
			return nil, err
		}
		if f, ok := v.(*future.Future); ok {
			if v, err = f.Await(ctx); err != nil {
				return nil, err
			}
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding result: %w", err)
		}
		return data, nil
	}
}

// relay is the remote step attached to a registered stream. Every emission of
// sub-event e is broadcast on base::e to all connected clients.
type relay struct {
	svc  *Service
	base string
}

func (r *relay) Forward(ctx context.Context, event string, args []any) {
	ch := channel.Event(r.base, event)
	encoded, err := message.EncodeArgs(args...)
	if err != nil {
		slog.ErrorContext(ctx, "host: event payload not encodable", "channel", ch, "error", err)
		return
	}

	r.svc.epMu.RLock()
	targets := append([]transport.Broadcaster(nil), r.svc.broadcasters...)
	r.svc.epMu.RUnlock()

	for _, b := range targets {
		if err := b.Broadcast(ctx, ch, encoded); err != nil {
			slog.WarnContext(ctx, "host: broadcast failed", "channel", ch, "error", err)
		}
	}
}
