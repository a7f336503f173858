//go:build integration

package main

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dyluth/warren/internal/dispatcher"
	"github.com/dyluth/warren/internal/skillregistry"
	"github.com/dyluth/warren/internal/taskgraph"
	"github.com/dyluth/warren/internal/transport"
	"github.com/dyluth/warren/internal/viewport"
	"github.com/dyluth/warren/pkg/fleet"
)

// setupRedis starts a real Redis container for the orchestrator's actors
// to talk through, exercising the same transport code path a kit process
// uses in production instead of an in-memory fake.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := redisC.Host(ctx)
	require.NoError(t, err)
	port, err := redisC.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	cleanup := func() {
		_ = rdb.Close()
		_ = redisC.Terminate(ctx)
	}
	return rdb, cleanup
}

// TestOrchestrator_GraphSubmitBidAwardCompleteOverRedis drives one task
// through the full orchestrator-side pipeline - submit, offer, bid,
// award, completion - with every hop riding real Redis pub/sub instead
// of in-process fakes, and a simulated kit standing in for the container
// supervisor normally spawns.
func TestOrchestrator_GraphSubmitBidAwardCompleteOverRedis(t *testing.T) {
	rdb, cleanup := setupRedis(t)
	defer cleanup()

	const instance = "it-test"
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	bus := fleet.NewBus(rdb, instance)
	bridge := viewport.NewBusBridge(ctx, bus)
	registry := skillregistry.NewRegistry(instance)
	agentLink := transport.NewAgentLink(rdb, instance)

	graph := taskgraph.NewEngine(instance, taskgraph.Limits{MaxDepth: 3, MaxSubtasks: 5, MaxTotalNodes: 50}, nil, agentLink, bridge, bus)
	approver := transport.NewRedisApprover(rdb, instance, nil)
	disp := dispatcher.NewDispatcher(instance, graph, agentLink, registry, approver, bridge)
	approver.SetDispatcher(disp)
	graph.SetDispatcher(disp)
	submitListener := transport.NewGraphSubmitListener(rdb, instance, graph)

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	go graph.Run(runCtx)
	go disp.Run(runCtx)
	go registry.Run(runCtx)
	go approver.Listen(runCtx)
	go submitListener.Listen(runCtx)
	go agentLink.ListenInbox(runCtx, transport.InboxHandlers{
		OnBid: func(ctx context.Context, bid fleet.Bid, graphID string) { disp.OnBid(ctx, bid, graphID) },
		OnCompleted: func(ctx context.Context, graphID, taskID string, success bool, summary string, artifactIDs []string, subplan *fleet.ProposedSubplan) {
			graph.OnTaskCompleted(ctx, graphID, taskID, success, summary, artifactIDs, subplan)
		},
		OnFailed: func(ctx context.Context, graphID, taskID, reason string) { graph.OnTaskFailed(ctx, graphID, taskID, reason) },
	})

	const agentID = "agent-coder-0"
	registry.Register(runCtx, agentID, []string{"code"})
	kit := transport.NewKitLink(rdb, instance, agentID)

	// The simulated kit: bid on whatever it's offered, then report success.
	var awardedTaskID, awardedGraphID string
	offered := make(chan struct{}, 1)
	go kit.Listen(runCtx, simulatedKit{
		onOffered: func(graphID, taskID string) {
			_ = kit.SubmitBid(runCtx, graphID, fleet.Bid{TaskID: taskID, AgentID: agentID, Fitness: 1.0})
			select {
			case offered <- struct{}{}:
			default:
			}
		},
		onAwarded: func(graphID, taskID string) {
			awardedGraphID, awardedTaskID = graphID, taskID
			_ = kit.SubmitCompletion(runCtx, graphID, taskID, true, "done", nil, nil)
		},
	})

	busSub, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer busSub.Close()

	client := transport.NewGraphClient(rdb, instance)
	reply, err := client.SubmitGraph(ctx, &fleet.Graph{
		Nodes: []*fleet.TaskNode{{TaskID: "root", Description: "write code", Capabilities: []string{"code"}}},
	}, 5*time.Second)
	require.NoError(t, err)
	require.True(t, reply.Accepted)

	select {
	case <-offered:
	case <-time.After(5 * time.Second):
		t.Fatal("task was never offered to the simulated kit")
	}

	deadline := time.After(10 * time.Second)
	for {
		select {
		case evt := <-busSub.Events():
			if evt.Type == "TaskGraphCompleted" && evt.GraphID == reply.GraphID {
				require.Equal(t, reply.GraphID, awardedGraphID)
				require.Equal(t, "root", awardedTaskID)
				return
			}
		case <-deadline:
			t.Fatal("graph did not complete in time")
		}
	}
}

type simulatedKit struct {
	onOffered func(graphID, taskID string)
	onAwarded func(graphID, taskID string)
}

func (k simulatedKit) OnTaskOffered(ctx context.Context, graphID, taskID, description string, capabilities []string) {
	k.onOffered(graphID, taskID)
}
func (k simulatedKit) OnTaskAwarded(ctx context.Context, graphID, taskID string) {
	k.onAwarded(graphID, taskID)
}
func (k simulatedKit) OnBidRejected(ctx context.Context, graphID, taskID string) {}
func (k simulatedKit) OnSubtasksCompleted(ctx context.Context, taskID string, results []taskgraph.SubtaskResult) {
}
func (k simulatedKit) OnDecompositionRejected(ctx context.Context, taskID, reason string) {}
func (k simulatedKit) OnStop(ctx context.Context, taskID string)                          {}
