package skillregistry

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) (*Registry, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := NewRegistry("test")
	go r.Run(ctx)
	return r, ctx
}

func TestRegistry_FindCapableRequiresSuperset(t *testing.T) {
	r, ctx := newTestRegistry(t)

	r.Register(ctx, "agent-a", []string{"go", "docker"})
	r.Register(ctx, "agent-b", []string{"go"})
	r.Register(ctx, "agent-c", []string{"python"})

	found := r.FindCapable([]string{"go", "docker"})
	require.Equal(t, []string{"agent-a"}, found)

	found = r.FindCapable([]string{"go"})
	sort.Strings(found)
	require.Equal(t, []string{"agent-a", "agent-b"}, found)
}

func TestRegistry_DeregisterRemovesAgent(t *testing.T) {
	r, ctx := newTestRegistry(t)

	r.Register(ctx, "agent-a", []string{"go"})
	require.Len(t, r.FindCapable([]string{"go"}), 1)

	r.Deregister(ctx, "agent-a")
	require.Empty(t, r.FindCapable([]string{"go"}))
}

func TestRegistry_DescriptorReflectsActiveTaskCount(t *testing.T) {
	r, ctx := newTestRegistry(t)

	r.Register(ctx, "agent-a", []string{"go"})
	r.SetActiveTaskCount(ctx, "agent-a", 3)

	desc, ok := r.Descriptor(ctx, "agent-a")
	require.True(t, ok)
	require.Equal(t, 3, desc.ActiveTaskCount)
}

func TestRegistry_DescriptorUnknownAgent(t *testing.T) {
	r, ctx := newTestRegistry(t)
	_, ok := r.Descriptor(ctx, "ghost")
	require.False(t, ok)
}
