//go:build integration

package eventbus_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pgeventbus "github.com/alanyang/ipc-bridge/internal/adapter/postgres/eventbus"
	"github.com/alanyang/ipc-bridge/internal/domain/entry"
	"github.com/alanyang/ipc-bridge/internal/domain/message"
	"github.com/alanyang/ipc-bridge/internal/domain/registry"
	"github.com/alanyang/ipc-bridge/internal/domain/stream"
	"github.com/alanyang/ipc-bridge/internal/service/host"
	"github.com/alanyang/ipc-bridge/internal/testutil"
)

// uniqueChannel isolates concurrent test runs against the same database.
func uniqueChannel() string {
	return "ipc_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func TestRelay_DeliversInOrder(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ch := uniqueChannel()
	hostSide := pgeventbus.NewWithChannel(pool, ch)
	clientSide := pgeventbus.NewWithChannel(pool, ch)

	require.NoError(t, clientSide.Start(context.Background()))
	t.Cleanup(clientSide.Close)
	assert.ErrorIs(t, clientSide.Start(context.Background()), pgeventbus.ErrStarted)

	var capture testutil.CaptureListener
	clientSide.Listen("clock::tick", capture.Listen)
	var other testutil.CaptureListener
	clientSide.Listen("clock::tock", other.Listen)

	for i := 0; i < 5; i++ {
		args, err := message.EncodeArgs(i)
		require.NoError(t, err)
		require.NoError(t, hostSide.Broadcast(context.Background(), "clock::tick", args))
	}

	calls := capture.WaitFor(t, 5, 5*time.Second)
	for i, args := range calls {
		var n int
		require.NoError(t, args.Decode(0, &n))
		assert.Equal(t, i, n)
	}
	assert.Equal(t, 0, other.Len())
}

func TestRelay_HostStreamReachesListener(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ch := uniqueChannel()
	relay := pgeventbus.NewWithChannel(pool, ch)
	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(relay.Close)

	svc := host.NewService(registry.New(), relay)
	ticks := stream.New()
	require.NoError(t, svc.RegisterNamespace("clock", entry.Set{"ticks": entry.Events(ticks)}))

	var capture testutil.CaptureListener
	relay.Listen("clock:ticks::tick", capture.Listen)

	ticks.Emit(context.Background(), "tick", "now")
	calls := capture.WaitFor(t, 1, 5*time.Second)
	var got string
	require.NoError(t, calls[0].Decode(0, &got))
	assert.Equal(t, "now", got)
}

func TestRelay_PayloadTooLarge(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	relay := pgeventbus.NewWithChannel(pool, uniqueChannel())

	args, err := message.EncodeArgs(strings.Repeat("x", 9000))
	require.NoError(t, err)
	err = relay.Broadcast(context.Background(), "big::blob", args)
	assert.ErrorIs(t, err, pgeventbus.ErrPayloadTooLarge)
}

func TestRelay_StopsWhenConnectionIsLost(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	ch := uniqueChannel()
	relay := pgeventbus.NewWithChannel(pool, ch)
	require.NoError(t, relay.Start(context.Background()))
	t.Cleanup(relay.Close)

	_, err := pool.Exec(context.Background(),
		"SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE query = $1",
		"LISTEN "+pgx.Identifier{ch}.Sanitize())
	require.NoError(t, err)

	select {
	case <-relay.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("listen loop kept running on a dead connection")
	}
}
