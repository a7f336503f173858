// Command kit is the per-agent process: one kit runs one agent's Agent
// Core (internal/agentcore) against a runtime driver selected from the
// runtime catalog, wired to the orchestrator exclusively through
// internal/transport over Redis pub/sub.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	dockerclient "github.com/docker/docker/client"
	"github.com/redis/go-redis/v9"

	"github.com/dyluth/warren/internal/agentcore"
	"github.com/dyluth/warren/internal/config"
	"github.com/dyluth/warren/internal/protocol"
	"github.com/dyluth/warren/internal/runtime"
	"github.com/dyluth/warren/internal/sidecar"
	"github.com/dyluth/warren/internal/transport"
	"github.com/dyluth/warren/pkg/fleet"
)

func main() {
	instanceName := os.Getenv("WARREN_INSTANCE_NAME")
	agentID := os.Getenv("WARREN_AGENT_ID")
	redisURL := os.Getenv("REDIS_URL")
	runtimeID := os.Getenv("WARREN_RUNTIME_ID")

	if instanceName == "" || agentID == "" || redisURL == "" || runtimeID == "" {
		fmt.Fprintf(os.Stderr, "Error: WARREN_INSTANCE_NAME, WARREN_AGENT_ID, REDIS_URL, and WARREN_RUNTIME_ID must be set\n")
		os.Exit(1)
	}
	capabilities := splitNonEmpty(os.Getenv("WARREN_CAPABILITIES"))
	capacity := 1
	if v := os.Getenv("WARREN_CAPACITY"); v != "" {
		fmt.Sscanf(v, "%d", &capacity)
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

	cat, err := config.LoadCatalog("/etc/warren/runtimes.json")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load runtime catalog: %v\n", err)
		os.Exit(1)
	}
	entry, ok := cat.Lookup(runtimeID)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown runtime id %q\n", runtimeID)
		os.Exit(1)
	}

	var override *config.ModelSpec
	if provider, modelID := os.Getenv("WARREN_MODEL_PROVIDER"), os.Getenv("WARREN_MODEL_ID"); provider != "" || modelID != "" {
		override = &config.ModelSpec{Provider: provider, ModelID: modelID}
	}
	effectiveModel := config.MergeModelSpec(override, entry.DefaultModel)

	// A sandbox image routes every runtime invocation through a
	// short-lived container instead of a bare host subprocess.
	var driver runtime.Driver
	if sandboxImage := os.Getenv("WARREN_SANDBOX_IMAGE"); sandboxImage != "" {
		dockerCli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to create Docker client for sandboxed runtime: %v\n", err)
			os.Exit(1)
		}
		defer dockerCli.Close()
		driver = runtime.NewContainerDriver(dockerCli, entry, effectiveModel, sandboxImage)
	} else {
		driver, err = runtime.NewDriver(entry, effectiveModel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: Failed to build runtime driver: %v\n", err)
			os.Exit(1)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := driver.Start(runCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to start runtime driver: %v\n", err)
		os.Exit(1)
	}

	link := transport.NewKitLink(rdb, instanceName, agentID)
	artifacts := fleet.NewArtifactRegistry(rdb, instanceName)

	var sidecarClient *sidecar.Client
	if bin := os.Getenv("WARREN_SIDECAR_BINARY"); bin != "" {
		sidecarClient = sidecar.NewClient(bin)
	}

	var bidScript []string
	if raw := os.Getenv("WARREN_BID_SCRIPT"); raw != "" {
		bidScript = strings.Fields(raw)
	}

	engine := agentcore.NewEngine(
		agentID,
		capabilities,
		agentcore.BiddingConfig{Capacity: capacity, BidScript: bidScript},
		driver,
		protocol.NewAdapter(agentID),
		sidecarClient,
		link,
		link,
		artifacts,
		nil, // no viewport bridge from inside a kit process; the orchestrator's bridge reports on its behalf
		cat.ClassifyActivity,
	)

	go engine.Run(runCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	errCh := make(chan error, 1)
	go func() { errCh <- link.Listen(runCtx, engine) }()

	fmt.Printf("kit started agent_id=%s instance=%s runtime=%s\n", agentID, instanceName, runtimeID)

	select {
	case sig := <-sigCh:
		fmt.Printf("Received signal %v, shutting down gracefully...\n", sig)
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "kit control listener stopped: %v\n", err)
		}
	}

	cancel()
	_ = driver.Stop()
	fmt.Println("kit stopped")
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
