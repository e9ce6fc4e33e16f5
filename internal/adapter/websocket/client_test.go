package websocket_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wsclient "github.com/alanyang/ipc-bridge/internal/adapter/websocket"
	"github.com/alanyang/ipc-bridge/internal/domain/entry"
	"github.com/alanyang/ipc-bridge/internal/domain/future"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/domain/registry"
	"github.com/alanyang/ipc-bridge/internal/domain/stream"
	"github.com/alanyang/ipc-bridge/internal/service/client"
	"github.com/alanyang/ipc-bridge/internal/service/host"
	"github.com/alanyang/ipc-bridge/internal/transport/ws"
)

type fixture struct {
	hub    *ws.Hub
	host   *host.Service
	server *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := ws.NewHub()
	r := gin.New()
	hub.Register(r.Group("/rpc"))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{hub: hub, host: host.NewService(registry.New(), hub), server: srv}
}

func (f *fixture) dial(t *testing.T) *wsclient.Client {
	t.Helper()
	c, err := wsclient.Dial(context.Background(), f.server.URL+"/rpc")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.Eventually(t, func() bool { return f.hub.Clients() > 0 }, time.Second, 5*time.Millisecond)
	return c
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.host.Register(entry.Set{"greet": entry.Function(func() string { return "hi" })})
	require.NoError(t, f.host.RegisterNamespace("calc", entry.Set{
		"add": entry.Function(func(a, b int) int { return a + b }),
		"slow": entry.Function(func() *future.Future {
			out := future.New()
			go func() {
				time.Sleep(5 * time.Millisecond)
				out.Resolve("late")
			}()
			return out
		}),
	}))

	b := client.New(f.dial(t))
	require.NoError(t, b.Expose(context.Background()))

	var greeting string
	require.NoError(t, b.Connect("").Func("greet").Do(context.Background(), &greeting))
	assert.Equal(t, "hi", greeting)

	var sum int
	require.NoError(t, b.Connect("calc").Func("add").Do(context.Background(), &sum, 2, 3))
	assert.Equal(t, 5, sum)

	var late string
	require.NoError(t, b.Connect("calc").Func("slow").Do(context.Background(), &late))
	assert.Equal(t, "late", late)
}

func TestHub_SkipsMalformedFrames(t *testing.T) {
	f := newFixture(t)
	f.host.Register(entry.Set{"greet": entry.Function(func() string { return "hi" })})

	wsURL := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/rpc/ws"
	conn, _, err := gws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteMessage(gws.TextMessage,
		[]byte(`{"type":"invoke","id":"bad","channel":"greet","args":5}`)))

	args, err := message.EncodeArgs()
	require.NoError(t, err)
	inv := message.NewInvocation("greet", args)
	require.NoError(t, conn.WriteJSON(inv))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var reply message.Envelope
	require.NoError(t, conn.ReadJSON(&reply), "connection must survive malformed frames")
	assert.Equal(t, message.TypeReply, reply.Type)
	assert.Equal(t, inv.ID, reply.ID)
	assert.JSONEq(t, `"hi"`, string(reply.Result))
}

func TestConcurrentCallsCorrelate(t *testing.T) {
	f := newFixture(t)
	f.host.Register(entry.Set{"echo": entry.Function(func(n int) int {
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return n
	})})
	b := client.New(f.dial(t))
	require.NoError(t, b.Expose(context.Background()))
	echo := b.Connect("").Func("echo")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var got int
			if assert.NoError(t, echo.Do(context.Background(), &got, i)) {
				assert.Equal(t, i, got)
			}
		}(i)
	}
	wg.Wait()
}

func TestRemoteError(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	_, err := c.Invoke(context.Background(), "missing", nil).Await(context.Background())
	var re *message.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "missing", re.Channel)
	assert.Contains(t, re.Message, "no handler bound")
}

func TestEvents(t *testing.T) {
	f := newFixture(t)
	ticks := stream.New()
	f.host.Register(entry.Set{"events": entry.Events(ticks)})

	b := client.New(f.dial(t))
	require.NoError(t, b.Expose(context.Background()))

	var (
		mu  sync.Mutex
		got []int
	)
	off := b.Connect("").Events("events").On("tick", func(args message.Args) {
		var n int
		assert.NoError(t, args.Decode(0, &n))
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		ticks.Emit(context.Background(), "tick", 42+i)
	}
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 5
	}, time.Second, 5*time.Millisecond)

	off()
	ticks.Emit(context.Background(), "tick", 0)
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{42, 43, 44, 45, 46}, got)
}

func TestRequest(t *testing.T) {
	f := newFixture(t)
	c := f.dial(t)

	_, err := c.Request(context.Background(), "$ipc:discover")
	assert.ErrorIs(t, err, wsclient.ErrStatus, "no responder before the host starts")

	f.host.Start()
	data, err := c.Request(context.Background(), "$ipc:discover")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestClose_RejectsPending(t *testing.T) {
	f := newFixture(t)
	block := make(chan struct{})
	defer close(block)
	f.hub.Handle("block", func(context.Context, message.Args) (json.RawMessage, error) {
		<-block
		return nil, nil
	})
	c := f.dial(t)

	fut := c.Invoke(context.Background(), "block", nil)
	require.NoError(t, c.Close())

	_, err := fut.Await(context.Background())
	assert.ErrorIs(t, err, wsclient.ErrClosed)
	_, err = c.Invoke(context.Background(), "block", nil).Await(context.Background())
	assert.ErrorIs(t, err, wsclient.ErrClosed)
	assert.Eventually(t, func() bool { return f.hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestContextCancelWithdrawsInterest(t *testing.T) {
	f := newFixture(t)
	block := make(chan struct{})
	defer close(block)
	f.hub.Handle("block", func(context.Context, message.Args) (json.RawMessage, error) {
		<-block
		return json.RawMessage(`1`), nil
	})
	c := f.dial(t)

	ctx, cancel := context.WithCancel(context.Background())
	fut := c.Invoke(ctx, "block", nil)
	cancel()
	_, err := fut.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 5*time.Millisecond)
}
