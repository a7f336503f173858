package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	dockerclient "github.com/docker/docker/client"
	"github.com/redis/go-redis/v9"

	"github.com/dyluth/warren/internal/blackboard"
	"github.com/dyluth/warren/internal/config"
	"github.com/dyluth/warren/internal/dispatcher"
	"github.com/dyluth/warren/internal/healthserver"
	"github.com/dyluth/warren/internal/skillregistry"
	"github.com/dyluth/warren/internal/supervisor"
	"github.com/dyluth/warren/internal/taskgraph"
	"github.com/dyluth/warren/internal/transport"
	"github.com/dyluth/warren/internal/viewport"
	"github.com/dyluth/warren/pkg/fleet"
)

func main() {
	instanceName := os.Getenv("WARREN_INSTANCE_NAME")
	redisURL := os.Getenv("REDIS_URL")

	if instanceName == "" || redisURL == "" {
		fmt.Fprintf(os.Stderr, "Error: WARREN_INSTANCE_NAME and REDIS_URL must be set\n")
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid REDIS_URL: %v\n", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Redis not accessible: %v\n", err)
		os.Exit(1)
	}

	manifest, err := config.LoadManifest("/workspace/warren.yml")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load warren.yml: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Orchestrator starting for instance %q with %d agent roles\n", instanceName, len(manifest.Agents))

	// Docker client backs the supervisor's container lifecycle. Every
	// agent role runs as its own kit container, so a missing Docker
	// socket is fatal rather than degrading to a reduced mode.
	dockerCli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to create Docker client: %v\n", err)
		os.Exit(1)
	}
	defer dockerCli.Close()
	if _, err := dockerCli.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Docker not accessible: %v\n", err)
		os.Exit(1)
	}

	bus := fleet.NewBus(rdb, instanceName)
	registry := skillregistry.NewRegistry(instanceName)
	board := blackboard.NewBoard(instanceName)
	agentLink := transport.NewAgentLink(rdb, instanceName)

	// Every state notification goes both to the external event bus (for
	// `warren watch`) and onto the blackboard as last-value signals (for
	// in-process consumers: the registry's load tracker, /signals).
	bridge := viewport.Multi{
		viewport.NewBusBridge(ctx, bus),
		viewport.NewBoardBridge(ctx, board),
	}

	limits := taskgraph.Limits{
		MaxDepth:      config.DefaultMaxDepth,
		MaxSubtasks:   config.DefaultMaxSubtasks,
		MaxTotalNodes: config.DefaultMaxTotalNodes,
	}
	if manifest.Orchestrator != nil {
		if manifest.Orchestrator.MaxDepth != nil {
			limits.MaxDepth = *manifest.Orchestrator.MaxDepth
		}
		if manifest.Orchestrator.MaxSubtasks != nil {
			limits.MaxSubtasks = *manifest.Orchestrator.MaxSubtasks
		}
		if manifest.Orchestrator.MaxTotalNodes != nil {
			limits.MaxTotalNodes = *manifest.Orchestrator.MaxTotalNodes
		}
	}

	graph := taskgraph.NewEngine(instanceName, limits, nil, agentLink, bridge, bus)
	submitListener := transport.NewGraphSubmitListener(rdb, instanceName, graph)
	approver := transport.NewRedisApprover(rdb, instanceName, nil)
	disp := dispatcher.NewDispatcher(instanceName, graph, agentLink, registry, approver, bridge)
	approver.SetDispatcher(disp)
	graph.SetDispatcher(disp)

	runID := fleet.NewGraphID()
	sup := supervisor.NewSupervisor(dockerCli, instanceName, runID, supervisorListener{})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go graph.Run(runCtx)
	go disp.Run(runCtx)
	go registry.Run(runCtx)
	go board.Run(runCtx)
	go registry.TrackLoad(runCtx, board)
	go func() { _ = approver.Listen(runCtx) }()
	go func() { _ = submitListener.Listen(runCtx) }()
	go func() {
		_ = agentLink.ListenInbox(runCtx, transport.InboxHandlers{
			OnBid: func(ctx context.Context, bid fleet.Bid, graphID string) {
				disp.OnBid(ctx, bid, graphID)
			},
			OnCompleted: func(ctx context.Context, graphID, taskID string, success bool, summary string, artifactIDs []string, subplan *fleet.ProposedSubplan) {
				graph.OnTaskCompleted(ctx, graphID, taskID, success, summary, artifactIDs, subplan)
			},
			OnFailed: func(ctx context.Context, graphID, taskID, reason string) {
				graph.OnTaskFailed(ctx, graphID, taskID, reason)
			},
		})
	}()

	health := healthserver.NewServer(
		func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		[]healthserver.QueueProbe{
			{Name: "taskgraph", Depth: graph.QueueDepth},
			{Name: "dispatcher", Depth: disp.QueueDepth},
			{Name: "skillregistry", Depth: registry.QueueDepth},
			{Name: "blackboard", Depth: board.QueueDepth},
		},
	)
	health.SetSignalLister(func(prefix string) []healthserver.SignalEntry {
		signals := board.ListSignals(runCtx, prefix)
		entries := make([]healthserver.SignalEntry, 0, len(signals))
		for _, sig := range signals {
			entries = append(entries, healthserver.SignalEntry{
				Key: sig.Key, Value: sig.Value, PublisherID: sig.PublisherID,
			})
		}
		return entries
	})
	if err := health.Start(":8080"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to start health server: %v\n", err)
		os.Exit(1)
	}

	for role, spec := range manifest.Agents {
		replicas := 1
		if spec.Replicas != nil {
			replicas = *spec.Replicas
		}
		for i := 0; i < replicas; i++ {
			agentID := fmt.Sprintf("%s-%d", role, i)
			registry.Register(runCtx, agentID, spec.Capabilities)
			env := map[string]string{
				"WARREN_INSTANCE_NAME": instanceName,
				"WARREN_AGENT_ID":      agentID,
				"REDIS_URL":            redisURL,
				"WARREN_RUNTIME_ID":    spec.RuntimeID,
				"WARREN_CAPABILITIES":  strings.Join(spec.Capabilities, ","),
				"WARREN_CAPACITY":      strconv.Itoa(spec.Capacity),
			}
			if len(spec.BidScript) > 0 {
				env["WARREN_BID_SCRIPT"] = strings.Join(spec.BidScript, " ")
			}
			if spec.Model != nil {
				env["WARREN_MODEL_PROVIDER"] = spec.Model.Provider
				env["WARREN_MODEL_ID"] = spec.Model.ModelID
			}
			for k, v := range envVarMap(spec.Environment) {
				env[k] = v
			}
			if _, err := sup.Spawn(runCtx, agentID, spec.Image, spec.Command, env); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to spawn agent %s: %v\n", agentID, err)
			}
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	fmt.Println("Received shutdown signal, stopping gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = sup.StopAll(shutdownCtx)
	_ = health.Shutdown(shutdownCtx)
	cancel()

	fmt.Println("Orchestrator stopped")
}

// envVarMap turns "KEY=VALUE" entries from an agent manifest's
// Environment list into a map, silently dropping malformed entries.
func envVarMap(entries []string) map[string]string {
	out := map[string]string{}
	for _, e := range entries {
		for i := 0; i < len(e); i++ {
			if e[i] == '=' {
				out[e[:i]] = e[i+1:]
				break
			}
		}
	}
	return out
}

type supervisorListener struct{}

func (supervisorListener) OnChildTerminated(agentID string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: agent %s exited unexpectedly: %v\n", agentID, err)
	}
}
