package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	bus := NewBus(rdb, "test-instance")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, Event{Type: "TaskDispatched", TaskID: "t1"}))

	select {
	case evt := <-sub.Events():
		require.Equal(t, "TaskDispatched", evt.Type)
		require.Equal(t, "t1", evt.TaskID)
		require.Equal(t, "test-instance", evt.Instance)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_SubscriptionCloseIsIdempotent(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	bus := NewBus(rdb, "test-instance")
	sub, err := bus.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
}
