// Package ws is the host-side websocket endpoint. Clients connect on {base}/ws
// and exchange envelopes; {base}/sync/:channel answers synchronous requests
// such as discovery.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/port/transport"
)

var ErrNoHandler = errors.New("ws: no handler bound for channel")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(pm *websocket.PreparedMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WritePreparedMessage(pm)
}

func (c *conn) send(env message.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(env)
}

// Hub implements transport.Binder, transport.Broadcaster and
// transport.Responder over websocket connections.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*conn
	handlers   map[string]transport.Handler
	responders map[string]transport.SyncHandler
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*conn),
		handlers:   make(map[string]transport.Handler),
		responders: make(map[string]transport.SyncHandler),
	}
}

func (h *Hub) Register(rg *gin.RouterGroup) {
	rg.GET("/ws", h.handleWS)
	rg.GET("/sync/:channel", h.handleSync)
}

func (h *Hub) Handle(channel string, fn transport.Handler) {
	h.mu.Lock()
	h.handlers[channel] = fn
	h.mu.Unlock()
}

func (h *Hub) Unhandle(channel string) {
	h.mu.Lock()
	delete(h.handlers, channel)
	h.mu.Unlock()
}

func (h *Hub) Respond(channel string, fn transport.SyncHandler) {
	h.mu.Lock()
	h.responders[channel] = fn
	h.mu.Unlock()
}

// Clients reports the number of open connections.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast writes the event to every connection. Failed writes are logged and
// reported together; the remaining connections still receive the event.
func (h *Hub) Broadcast(_ context.Context, channel string, args message.Args) error {
	data, err := json.Marshal(message.NewEvent(channel, args))
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		return fmt.Errorf("preparing event: %w", err)
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var errs []error
	for _, c := range targets {
		if err := c.write(pm); err != nil {
			slog.Warn("websocket write failed", "client", c.id, "channel", channel, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) handleWS(c *gin.Context) {
	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	cl := &conn{id: uuid.NewString(), ws: wsConn}
	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()
	slog.Debug("websocket client connected", "client", cl.id)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer func() {
		cancel()
		h.mu.Lock()
		delete(h.clients, cl.id)
		h.mu.Unlock()
		wsConn.Close()
		slog.Debug("websocket client disconnected", "client", cl.id)
	}()

	for {
		var env message.Envelope
		if err := wsConn.ReadJSON(&env); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				slog.Warn("websocket frame is not an envelope", "client", cl.id, "error", err)
				continue
			}
			break
		}
		if env.Type != message.TypeInvoke {
			slog.Debug("websocket frame ignored", "client", cl.id, "type", env.Type)
			continue
		}
		go h.serve(ctx, cl, env)
	}
}

func (h *Hub) serve(ctx context.Context, cl *conn, inv message.Envelope) {
	h.mu.RLock()
	fn, ok := h.handlers[inv.Channel]
	h.mu.RUnlock()

	var reply message.Envelope
	if !ok {
		reply = message.NewReply(inv, nil, fmt.Errorf("%w: %s", ErrNoHandler, inv.Channel))
	} else {
		result, err := fn(ctx, inv.Args)
		reply = message.NewReply(inv, result, err)
	}
	if err := cl.send(reply); err != nil {
		slog.Warn("websocket reply failed", "client", cl.id, "channel", inv.Channel, "error", err)
	}
}

func (h *Hub) handleSync(c *gin.Context) {
	channel := c.Param("channel")
	h.mu.RLock()
	fn, ok := h.responders[channel]
	h.mu.RUnlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no responder for " + channel})
		return
	}

	data, err := fn(c.Request.Context())
	if err != nil {
		slog.Error("sync request failed", "channel", channel, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}
