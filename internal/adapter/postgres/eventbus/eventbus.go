// Package eventbus relays bridge events through Postgres LISTEN/NOTIFY, so
// clients that cannot hold a connection to the host still see its events.
// On the host it is a transport.Broadcaster; on a client it is a
// transport.Listener.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/ipc-bridge/internal/adapter/correlate"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

// DefaultChannel is the Postgres channel events are NOTIFYed on.
const DefaultChannel = "ipc_bridge_events"

// maxPayload is the Postgres NOTIFY payload limit (8000 bytes in the default build).
const maxPayload = 7999

// Retry delays after a failed wait on a connection that is still open.
const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 5 * time.Second
)

var (
	ErrPayloadTooLarge = errors.New("eventbus: event exceeds NOTIFY payload limit")
	ErrStarted         = errors.New("eventbus: already listening")
)

type EventBus struct {
	pool    *pgxpool.Pool
	channel string

	listeners correlate.Listeners

	mu  sync.Mutex
	sub *subscription
}

func New(pool *pgxpool.Pool) *EventBus {
	return NewWithChannel(pool, DefaultChannel)
}

// NewWithChannel relays on a caller-chosen Postgres channel. The name is used
// as an identifier in LISTEN and must be a valid one.
func NewWithChannel(pool *pgxpool.Pool, channel string) *EventBus {
	return &EventBus{pool: pool, channel: channel}
}

// Broadcast sends an event via Postgres NOTIFY.
func (eb *EventBus) Broadcast(ctx context.Context, ch string, args message.Args) error {
	payload, err := json.Marshal(message.NewEvent(ch, args))
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("%w: %s is %d bytes", ErrPayloadTooLarge, ch, len(payload))
	}

	_, err = eb.pool.Exec(ctx, "SELECT pg_notify($1, $2)", eb.channel, string(payload))
	if err != nil {
		return fmt.Errorf("publishing event on channel %s: %w", eb.channel, err)
	}
	return nil
}

// Listen registers fn for events on ch. Events only arrive after Start.
func (eb *EventBus) Listen(ch string, fn transport.EventListener) (remove func()) {
	return eb.listeners.Add(ch, fn)
}

// Start acquires a dedicated connection, LISTENs on the relay channel and
// dispatches every notification to the matching listeners in arrival order.
// It runs until ctx is done, Close is called, or the connection is lost;
// Done reports the latter.
func (eb *EventBus) Start(ctx context.Context) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.sub != nil {
		return ErrStarted
	}

	conn, err := eb.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for LISTEN: %w", err)
	}

	ident := pgx.Identifier{eb.channel}.Sanitize()
	if _, err := conn.Exec(ctx, "LISTEN "+ident); err != nil {
		conn.Release()
		return fmt.Errorf("executing LISTEN on channel %s: %w", eb.channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{cancel: cancel, done: make(chan struct{})}
	eb.sub = sub

	go func() {
		defer func() {
			conn.Exec(context.Background(), "UNLISTEN "+ident) //nolint:errcheck
			conn.Release()
			close(sub.done)
		}()

		var backoff time.Duration
		for {
			notification, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				if conn.Conn().IsClosed() {
					slog.Error("eventbus: listen connection lost", "channel", eb.channel, "error", err)
					return
				}
				backoff = nextBackoff(backoff)
				slog.Warn("eventbus: wait for notification failed", "channel", eb.channel, "error", err, "retry_in", backoff)
				select {
				case <-subCtx.Done():
					return
				case <-time.After(backoff):
				}
				continue
			}
			backoff = 0

			var env message.Envelope
			if err := json.Unmarshal([]byte(notification.Payload), &env); err != nil || env.Type != message.TypeEvent {
				slog.Debug("eventbus: ignoring payload", "channel", eb.channel, "error", err)
				continue
			}
			eb.listeners.Dispatch(env.Channel, env.Args)
		}
	}()

	slog.Debug("eventbus: listening", "channel", eb.channel)
	return nil
}

// Done is closed once the listen loop has exited. It is nil before Start.
func (eb *EventBus) Done() <-chan struct{} {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.sub == nil {
		return nil
	}
	return eb.sub.done
}

func nextBackoff(d time.Duration) time.Duration {
	if d < minBackoff {
		return minBackoff
	}
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

// Close stops listening and waits for the dispatch goroutine to exit.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	sub := eb.sub
	eb.sub = nil
	eb.mu.Unlock()
	if sub != nil {
		sub.stop()
	}
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) stop() {
	s.cancel()
	<-s.done
}
