package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/docker"
	"github.com/dyluth/warren/internal/filter"
	"github.com/dyluth/warren/internal/instance"
	"github.com/dyluth/warren/internal/timespec"
	"github.com/dyluth/warren/internal/watch"
	"github.com/dyluth/warren/pkg/fleet"
)

var (
	watchInstanceName string
	watchJSON          bool
	watchSince          string
	watchUntil          string
	watchTypeGlob       string
	watchAgentID        string
	watchExitOnComplete bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream live activity from a warren instance",
	Long: `Stream events from a warren instance's event bus: task dispatch,
bids, awards, completions, failures, decompositions, and graph
completion.

The instance name is auto-inferred from the current workspace if not specified.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	watchCmd.Flags().BoolVar(&watchJSON, "json", false, "Output events as line-delimited JSON")
	watchCmd.Flags().StringVar(&watchSince, "since", "", "Only show events at or after this time (duration like '1h30m' or RFC3339)")
	watchCmd.Flags().StringVar(&watchUntil, "until", "", "Only show events at or before this time (duration like '1h30m' or RFC3339)")
	watchCmd.Flags().StringVar(&watchTypeGlob, "type", "", "Only show events whose type matches this glob")
	watchCmd.Flags().StringVar(&watchAgentID, "agent", "", "Only show events from this agent id")
	watchCmd.Flags().BoolVar(&watchExitOnComplete, "exit-on-completion", false, "Exit once the submitted graph reaches a terminal state")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := docker.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	targetInstanceName := watchInstanceName
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

	bus := fleet.NewBus(rdb, targetInstanceName)

	sinceMS, untilMS, err := timespec.ParseRange(watchSince, watchUntil)
	if err != nil {
		return err
	}
	criteria := &filter.Criteria{
		TypeGlob:         watchTypeGlob,
		AgentID:          watchAgentID,
		SinceTimestampMs: sinceMS,
		UntilTimestampMs: untilMS,
	}

	format := watch.OutputFormatDefault
	if watchJSON {
		format = watch.OutputFormatJSONL
	}

	return watch.StreamActivity(ctx, bus, format, criteria, watchExitOnComplete, os.Stdout)
}
