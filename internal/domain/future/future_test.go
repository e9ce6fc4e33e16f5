package future_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/ipc-bridge/internal/domain/future"
)

func TestFuture_ResolveOnce(t *testing.T) {
	f := future.New()
	assert.True(t, f.Resolve("first"))
	assert.False(t, f.Resolve("second"))
	assert.False(t, f.Reject(errors.New("late")))

	v, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", v)
}

func TestFuture_Reject(t *testing.T) {
	boom := errors.New("boom")
	v, err := future.Rejected(boom).Await(context.Background())
	assert.Nil(t, v)
	assert.ErrorIs(t, err, boom)
}

func TestFuture_FlattensNestedFuture(t *testing.T) {
	inner := future.New()
	outer := future.Resolved(inner)

	_, _, ok := outer.Peek()
	assert.False(t, ok, "outer must stay pending until inner settles")

	inner.Resolve(42)
	v, err := outer.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v, "outer carries the inner value, not the inner handle")
}

func TestFuture_FlattensNestedRejection(t *testing.T) {
	boom := errors.New("boom")
	outer := future.Resolved(future.Rejected(boom))
	_, err := outer.Await(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestFuture_NilInnerRejects(t *testing.T) {
	var inner *future.Future
	_, err := future.Resolved(inner).Await(context.Background())
	assert.ErrorIs(t, err, future.ErrNilFuture)
}

func TestFuture_AwaitHonoursContext(t *testing.T) {
	f := future.New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A settlement after the waiter gave up is harmless.
	assert.True(t, f.Resolve("late"))
}

func TestFuture_ConcurrentSettlers(t *testing.T) {
	f := future.New()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if f.Resolve(i) {
				mu.Lock()
				claimed++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, claimed)
}
