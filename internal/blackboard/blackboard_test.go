package blackboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestBoard(t *testing.T) (*Board, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	b := NewBoard("test")
	go b.Run(ctx)
	return b, ctx
}

func TestBoard_SubscribeReceivesCurrentValueFirst(t *testing.T) {
	b, ctx := newTestBoard(t)

	b.Publish(ctx, Signal{Key: "risk/level", Value: "low", PublisherID: "agent-a"})

	sub := b.Subscribe(ctx, "risk/level")
	defer sub.Close(ctx)

	select {
	case sig := <-sub.Signals():
		require.Equal(t, "low", sig.Value)
	case <-time.After(time.Second):
		t.Fatal("expected replayed current value")
	}
}

func TestBoard_SubscribeWithNoPriorValueGetsNothingUntilPublish(t *testing.T) {
	b, ctx := newTestBoard(t)

	sub := b.Subscribe(ctx, "risk/level")
	defer sub.Close(ctx)

	select {
	case <-sub.Signals():
		t.Fatal("should not have received anything yet")
	case <-time.After(20 * time.Millisecond):
	}

	b.Publish(ctx, Signal{Key: "risk/level", Value: "high"})

	select {
	case sig := <-sub.Signals():
		require.Equal(t, "high", sig.Value)
	case <-time.After(time.Second):
		t.Fatal("expected live publish to arrive")
	}
}

func TestBoard_PrefixMatchDeliversToMultipleSubscribers(t *testing.T) {
	b, ctx := newTestBoard(t)

	subAll := b.Subscribe(ctx, "risk/")
	subSpecific := b.Subscribe(ctx, "risk/level")
	defer subAll.Close(ctx)
	defer subSpecific.Close(ctx)

	b.Publish(ctx, Signal{Key: "risk/level", Value: "medium"})
	b.Publish(ctx, Signal{Key: "risk/other", Value: "x"})

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case sig := <-subAll.Signals():
			got[sig.Key] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broad subscriber")
		}
	}
	require.True(t, got["risk/level"])
	require.True(t, got["risk/other"])

	select {
	case sig := <-subSpecific.Signals():
		require.Equal(t, "risk/level", sig.Key)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for narrow subscriber")
	}
}

func TestBoard_CloseIsIdempotent(t *testing.T) {
	b, ctx := newTestBoard(t)
	sub := b.Subscribe(ctx, "x")
	require.NotPanics(t, func() {
		sub.Close(ctx)
		sub.Close(ctx)
	})
}

func TestBoard_ListSignalsByPrefix(t *testing.T) {
	b, ctx := newTestBoard(t)
	b.Publish(ctx, Signal{Key: "a/1", Value: "v1"})
	b.Publish(ctx, Signal{Key: "a/2", Value: "v2"})
	b.Publish(ctx, Signal{Key: "b/1", Value: "v3"})

	all := b.ListSignals(ctx, "a/")
	require.Len(t, all, 2)
}
