package transport

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/internal/dispatcher"
	"github.com/dyluth/warren/internal/taskgraph"
	"github.com/dyluth/warren/internal/viewport"
	"github.com/dyluth/warren/pkg/fleet"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

type recordingHandler struct {
	offered  chan string
	awarded  chan string
	rejected chan string
	stopped  chan string
}

func (h *recordingHandler) OnTaskOffered(ctx context.Context, graphID, taskID, description string, capabilities []string) {
	h.offered <- taskID
}
func (h *recordingHandler) OnTaskAwarded(ctx context.Context, graphID, taskID string) {
	h.awarded <- taskID
}
func (h *recordingHandler) OnBidRejected(ctx context.Context, graphID, taskID string) {
	h.rejected <- taskID
}
func (h *recordingHandler) OnSubtasksCompleted(ctx context.Context, taskID string, results []taskgraph.SubtaskResult) {
}
func (h *recordingHandler) OnDecompositionRejected(ctx context.Context, taskID, reason string) {}
func (h *recordingHandler) OnStop(ctx context.Context, taskID string)                          { h.stopped <- taskID }

func TestAgentLinkToKitLink_ControlRoundTrip(t *testing.T) {
	rdb := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	link := NewAgentLink(rdb, "inst")
	kit := NewKitLink(rdb, "inst", "agent-1")
	h := &recordingHandler{offered: make(chan string, 1), awarded: make(chan string, 1), rejected: make(chan string, 1), stopped: make(chan string, 1)}

	go kit.Listen(ctx, h)
	time.Sleep(50 * time.Millisecond) // let the subscription establish

	link.NotifyTaskOffered("agent-1", "g1", "t1", "do it", []string{"code_edit"})
	require.Equal(t, "t1", <-h.offered)

	link.NotifyTaskAwarded("agent-1", "g1", "t1")
	require.Equal(t, "t1", <-h.awarded)

	link.NotifyTaskBidRejected("agent-1", "g1", "t2")
	require.Equal(t, "t2", <-h.rejected)

	link.NotifyStop("agent-1", "t1")
	require.Equal(t, "t1", <-h.stopped)
}

func TestKitLinkToAgentLink_InboxRoundTrip(t *testing.T) {
	rdb := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	link := NewAgentLink(rdb, "inst")
	kit := NewKitLink(rdb, "inst", "agent-1")

	bids := make(chan fleet.Bid, 1)
	completions := make(chan string, 1)
	failures := make(chan string, 1)
	go link.ListenInbox(ctx, InboxHandlers{
		OnBid: func(ctx context.Context, bid fleet.Bid, graphID string) { bids <- bid },
		OnCompleted: func(ctx context.Context, graphID, taskID string, success bool, summary string, artifactIDs []string, subplan *fleet.ProposedSubplan) {
			completions <- taskID
		},
		OnFailed: func(ctx context.Context, graphID, taskID, reason string) { failures <- taskID },
	})
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, kit.SubmitBid(ctx, "g1", fleet.Bid{TaskID: "t1", AgentID: "agent-1", Fitness: 1.0}))
	got := <-bids
	require.Equal(t, "t1", got.TaskID)

	require.NoError(t, kit.SubmitCompletion(ctx, "g1", "t1", true, "done", nil, nil))
	require.Equal(t, "t1", <-completions)

	require.NoError(t, kit.SubmitFailure(ctx, "g1", "t2", "boom"))
	require.Equal(t, "t2", <-failures)
}

func TestRedisApprover_OnlyListensOnApprovalChannel(t *testing.T) {
	rdb := newTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := fakeRegistryForApproval{}
	d := dispatcher.NewDispatcher("inst", fakeOrchForApproval{}, fakeNotifierForApproval{}, reg, nil, viewport.Noop{})
	go d.Run(ctx)

	approver := NewRedisApprover(rdb, "inst", d)
	go approver.Listen(ctx)
	time.Sleep(50 * time.Millisecond)

	// A decision published on a different channel must never reach the
	// dispatcher; the approver only subscribes to fleet.ApprovalChannel.
	require.NoError(t, rdb.Publish(ctx, "some-other-channel", `{"type":"RiskApproved","graphId":"g1","taskId":"t1"}`).Err())
	time.Sleep(20 * time.Millisecond)
}

type fakeRegistryForApproval struct{}

func (fakeRegistryForApproval) FindCapable([]string) []string { return nil }

type fakeOrchForApproval struct{}

func (fakeOrchForApproval) OnTaskReadyForDispatch(ctx context.Context, graphID, taskID, agentID string) {
}
func (fakeOrchForApproval) OnTaskFailed(ctx context.Context, graphID, taskID, reason string) {}

type fakeNotifierForApproval struct{}

func (fakeNotifierForApproval) NotifyTaskOffered(agentID, graphID, taskID, description string, capabilities []string) {
}
func (fakeNotifierForApproval) NotifyTaskAwarded(agentID, graphID, taskID string)     {}
func (fakeNotifierForApproval) NotifyTaskBidRejected(agentID, graphID, taskID string) {}
