// Package websocket is the client transport for the host hub: invocations and
// events travel over one websocket connection, and synchronous requests use
// plain HTTP GETs against the sync endpoint.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	gws "github.com/gorilla/websocket"

	"github.com/alanyang/ipc-bridge/internal/adapter/correlate"
	"github.com/alanyang/ipc-bridge/internal/domain/future"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

var (
	ErrClosed = errors.New("websocket: connection closed")
	ErrStatus = errors.New("websocket: unexpected response status")
)

// Client implements transport.Client.
type Client struct {
	base string
	http *http.Client
	conn *gws.Conn
	wmu  sync.Mutex

	pending   *correlate.Pending
	listeners correlate.Listeners

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the host mounted at baseURL, e.g. http://localhost:8080/rpc.
func Dial(ctx context.Context, baseURL string) (*Client, error) {
	base := strings.TrimRight(baseURL, "/")
	wsURL, err := websocketURL(base)
	if err != nil {
		return nil, err
	}
	conn, _, err := gws.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}

	c := &Client{
		base:    base,
		http:    http.DefaultClient,
		conn:    conn,
		pending: correlate.NewPending(),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	slog.Debug("websocket: connected", "url", wsURL)
	return c, nil
}

func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing host url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported host url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Invoke sends one invocation over the connection.
func (c *Client) Invoke(ctx context.Context, channel string, args message.Args) *future.Future {
	f := future.New()
	inv := message.NewInvocation(channel, args)
	if err := c.pending.Add(ctx, inv.ID, f); err != nil {
		f.Reject(err)
		return f
	}

	c.wmu.Lock()
	err := c.conn.WriteJSON(inv)
	c.wmu.Unlock()
	if err != nil && c.pending.Take(inv.ID) != nil {
		f.Reject(fmt.Errorf("sending %s: %w", channel, err))
	}
	return f
}

// Request GETs {base}/sync/{channel} and returns the response body.
func (c *Client) Request(ctx context.Context, channel string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/sync/"+url.PathEscape(channel), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting %s: %w", channel, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", channel, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s: %s", ErrStatus, channel, resp.Status)
	}
	return body, nil
}

// Listen registers fn for events on channel.
func (c *Client) Listen(channel string, fn transport.EventListener) (remove func()) {
	return c.listeners.Add(channel, fn)
}

// Pending reports invocations still waiting for a reply.
func (c *Client) Pending() int {
	return c.pending.Len()
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the connection and rejects every pending invocation.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		_ = c.conn.WriteMessage(gws.CloseMessage, gws.FormatCloseMessage(gws.CloseNormalClosure, ""))
		c.wmu.Unlock()
		err = c.conn.Close()
		c.pending.Close(ErrClosed)
	})
	<-c.done
	return err
}

// readLoop is the single ordered delivery path for replies and events.
func (c *Client) readLoop() {
	defer close(c.done)
	for {
		var env message.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if !gws.IsCloseError(err, gws.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				slog.Warn("websocket: read failed", "error", err)
			}
			c.pending.Close(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		switch env.Type {
		case message.TypeReply:
			c.pending.Settle(env)
		case message.TypeEvent:
			c.listeners.Dispatch(env.Channel, env.Args)
		}
	}
}
