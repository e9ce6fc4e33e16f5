package memory_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/ipc-bridge/internal/adapter/memory"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
)

func echoHandler(_ context.Context, args message.Args) (json.RawMessage, error) {
	return json.Marshal(len(args))
}

func TestInvoke_RoundTrip(t *testing.T) {
	bus := memory.NewBus()
	bus.Handle("count", echoHandler)
	c := bus.NewClient()
	defer c.Close()

	args, err := message.EncodeArgs(1, 2, 3)
	require.NoError(t, err)
	v, err := c.Invoke(context.Background(), "count", args).Await(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, "3", string(v.(json.RawMessage)))
}

func TestInvoke_HandlerReplaced(t *testing.T) {
	bus := memory.NewBus()
	bus.Handle("f", func(context.Context, message.Args) (json.RawMessage, error) { return json.RawMessage(`1`), nil })
	bus.Handle("f", func(context.Context, message.Args) (json.RawMessage, error) { return json.RawMessage(`2`), nil })
	c := bus.NewClient()
	defer c.Close()

	v, err := c.Invoke(context.Background(), "f", nil).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`2`), v)
}

func TestInvoke_ErrorsBecomeRemote(t *testing.T) {
	bus := memory.NewBus()
	bus.Handle("fail", func(context.Context, message.Args) (json.RawMessage, error) {
		return nil, errors.New("nope")
	})
	c := bus.NewClient()
	defer c.Close()

	_, err := c.Invoke(context.Background(), "fail", nil).Await(context.Background())
	var re *message.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nope", re.Message)

	_, err = c.Invoke(context.Background(), "missing", nil).Await(context.Background())
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Message, "no handler bound")

	bus.Handle("gone", echoHandler)
	bus.Unhandle("gone")
	_, err = c.Invoke(context.Background(), "gone", nil).Await(context.Background())
	assert.Error(t, err)
}

func TestInvoke_ConcurrentCallsCorrelate(t *testing.T) {
	bus := memory.NewBus()
	bus.Handle("echo", func(_ context.Context, args message.Args) (json.RawMessage, error) {
		var n int
		if err := args.Decode(0, &n); err != nil {
			return nil, err
		}
		time.Sleep(time.Duration(10-n) * time.Millisecond)
		return json.Marshal(n)
	})
	c := bus.NewClient()
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			args, _ := message.EncodeArgs(i)
			v, err := c.Invoke(context.Background(), "echo", args).Await(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			var got int
			assert.NoError(t, json.Unmarshal(v.(json.RawMessage), &got))
			assert.Equal(t, i, got)
		}(i)
	}
	wg.Wait()
}

func TestInvoke_LateReplyDiscarded(t *testing.T) {
	bus := memory.NewBus()
	release := make(chan struct{})
	bus.Handle("slow", func(context.Context, message.Args) (json.RawMessage, error) {
		<-release
		return json.RawMessage(`"late"`), nil
	})
	c := bus.NewClient()
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	f := c.Invoke(ctx, "slow", nil)
	cancel()

	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Eventually(t, func() bool { return c.Pending() == 0 }, time.Second, 5*time.Millisecond)

	close(release)
	time.Sleep(20 * time.Millisecond)
	_, err = f.Await(context.Background())
	assert.ErrorIs(t, err, context.Canceled, "a late reply must not resettle the future")
}

func TestBroadcast_OrderedFanOut(t *testing.T) {
	bus := memory.NewBus()
	a, b := bus.NewClient(), bus.NewClient()
	defer a.Close()
	defer b.Close()
	require.Equal(t, 2, bus.Clients())

	var (
		mu         sync.Mutex
		gotA, gotB []int
	)
	record := func(dst *[]int) func(message.Args) {
		return func(args message.Args) {
			var n int
			assert.NoError(t, args.Decode(0, &n))
			mu.Lock()
			*dst = append(*dst, n)
			mu.Unlock()
		}
	}
	a.Listen("ev::tick", record(&gotA))
	b.Listen("ev::tick", record(&gotB))

	for i := 0; i < 50; i++ {
		args, _ := message.EncodeArgs(i)
		require.NoError(t, bus.Broadcast(context.Background(), "ev::tick", args))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(gotA) == 50 && len(gotB) == 50
	}, time.Second, 5*time.Millisecond)
	for i := 0; i < 50; i++ {
		assert.Equal(t, i, gotA[i])
		assert.Equal(t, i, gotB[i])
	}
}

func TestListen_RemoveIsIdempotent(t *testing.T) {
	bus := memory.NewBus()
	c := bus.NewClient()
	defer c.Close()

	var (
		mu    sync.Mutex
		calls int
	)
	remove := c.Listen("ev::tick", func(message.Args) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	require.NoError(t, bus.Broadcast(context.Background(), "ev::tick", nil))
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, time.Second, 5*time.Millisecond)

	remove()
	remove()
	require.NoError(t, bus.Broadcast(context.Background(), "ev::tick", nil))
	require.NoError(t, bus.Broadcast(context.Background(), "ev::unheard", nil))
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
}

func TestRequest(t *testing.T) {
	bus := memory.NewBus()
	c := bus.NewClient()
	defer c.Close()

	_, err := c.Request(context.Background(), "$ipc:discover")
	assert.ErrorIs(t, err, memory.ErrNoResponder)

	bus.Respond("$ipc:discover", func(context.Context) ([]byte, error) { return []byte("[]"), nil })
	data, err := c.Request(context.Background(), "$ipc:discover")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestClose_RejectsPending(t *testing.T) {
	bus := memory.NewBus()
	block := make(chan struct{})
	defer close(block)
	bus.Handle("block", func(context.Context, message.Args) (json.RawMessage, error) {
		<-block
		return nil, nil
	})
	c := bus.NewClient()
	f := c.Invoke(context.Background(), "block", nil)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	_, err := f.Await(context.Background())
	assert.ErrorIs(t, err, memory.ErrClosed)
	assert.Equal(t, 0, bus.Clients())

	_, err = c.Invoke(context.Background(), "block", nil).Await(context.Background())
	assert.ErrorIs(t, err, memory.ErrClosed)
}
