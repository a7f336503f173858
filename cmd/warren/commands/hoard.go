package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/docker"
	"github.com/dyluth/warren/internal/hoard"
	"github.com/dyluth/warren/internal/instance"
	"github.com/dyluth/warren/internal/resolver"
	"github.com/dyluth/warren/internal/timespec"
	"github.com/dyluth/warren/pkg/fleet"
)

var (
	hoardInstanceName string
	hoardJSON         bool
	hoardTypeGlob     string
	hoardAgentID      string
	hoardSince        string
	hoardUntil        string
)

var hoardCmd = &cobra.Command{
	Use:   "hoard [artifact-id]",
	Short: "Inspect artifacts produced by a warren instance",
	Long: `List every artifact a warren instance's agents have produced, or fetch
one artifact's full content by id (a full UUID or a unique short prefix,
at least 6 characters).

Examples:
  # List all artifacts
  warren hoard

  # List artifacts produced by a specific agent, as JSONL
  warren hoard --agent Coder-0 --json

  # Fetch one artifact by short id
  warren hoard a1b2c3`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHoard,
}

func init() {
	hoardCmd.Flags().StringVarP(&hoardInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	hoardCmd.Flags().BoolVar(&hoardJSON, "json", false, "Output as line-delimited JSON (list mode only)")
	hoardCmd.Flags().StringVar(&hoardTypeGlob, "type", "", "Only list artifacts whose type matches this glob")
	hoardCmd.Flags().StringVar(&hoardAgentID, "agent", "", "Only list artifacts produced by this agent id")
	hoardCmd.Flags().StringVar(&hoardSince, "since", "", "Only list artifacts produced at or after this time (duration like '1h30m' or RFC3339)")
	hoardCmd.Flags().StringVar(&hoardUntil, "until", "", "Only list artifacts produced at or before this time (duration like '1h30m' or RFC3339)")
	rootCmd.AddCommand(hoardCmd)
}

func runHoard(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := docker.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	targetInstanceName := hoardInstanceName
	if targetInstanceName == "" {
		targetInstanceName, err = instance.InferInstanceFromWorkspace(ctx, cli)
		if err != nil {
			return fmt.Errorf("failed to infer instance: %w", err)
		}
	}

	redisPort, err := instance.GetInstanceRedisPort(ctx, cli, targetInstanceName)
	if err != nil {
		return fmt.Errorf("failed to resolve Redis connection: %w", err)
	}
	redisOpts, err := redis.ParseURL(instance.GetRedisURL(redisPort))
	if err != nil {
		return fmt.Errorf("invalid Redis connection info: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	registry := fleet.NewArtifactRegistry(rdb, targetInstanceName)

	if len(args) == 1 {
		artifactID, err := resolver.ResolveArtifactID(ctx, registry, args[0])
		if err != nil {
			if resolver.IsAmbiguousError(err) {
				fmt.Fprint(os.Stderr, resolver.FormatAmbiguousError(err.(*resolver.AmbiguousError)))
				return fmt.Errorf("ambiguous short id")
			}
			return err
		}
		if err := hoard.GetArtifact(ctx, registry, artifactID, os.Stdout); err != nil {
			if hoard.IsNotFound(err) {
				return fmt.Errorf("%w", err)
			}
			return err
		}
		return nil
	}

	format := hoard.OutputFormatDefault
	if hoardJSON {
		format = hoard.OutputFormatJSONL
	}
	sinceMS, untilMS, err := timespec.ParseRange(hoardSince, hoardUntil)
	if err != nil {
		return err
	}
	filters := &hoard.FilterCriteria{
		TypeGlob:         hoardTypeGlob,
		AgentID:          hoardAgentID,
		SinceTimestampMs: sinceMS,
		UntilTimestampMs: untilMS,
	}

	return hoard.ListArtifacts(ctx, registry, targetInstanceName, format, filters, os.Stdout)
}
