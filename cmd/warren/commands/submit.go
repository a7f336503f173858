package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/docker"
	"github.com/dyluth/warren/internal/git"
	"github.com/dyluth/warren/internal/instance"
	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/transport"
	"github.com/dyluth/warren/pkg/fleet"
)

var (
	submitInstanceName string
	submitTimeout       time.Duration
	submitAllowDirty    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <graph.json>",
	Short: "Submit a task graph to a running warren instance",
	Long: `Load a task graph from a JSON file and submit it to a running
warren instance's orchestrator. The orchestrator validates the graph
(duplicate ids, dangling edges, cycles) and replies Accepted or Rejected
before this command returns.

The instance name is auto-inferred from the current workspace if not specified.

Examples:
  warren submit graph.json
  warren submit --name prod-instance graph.json`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitInstanceName, "name", "n", "", "Target instance name (auto-inferred if omitted)")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 10*time.Second, "How long to wait for the orchestrator's reply")
	submitCmd.Flags().BoolVar(&submitAllowDirty, "allow-dirty", false, "Submit even if the Git workspace has uncommitted changes")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	graphPath := args[0]

	if !submitAllowDirty {
		checker := git.NewChecker()
		if isRepo, err := checker.IsGitRepository(); err == nil && isRepo {
			if isClean, err := checker.IsWorkspaceClean(); err == nil && !isClean {
				dirtyFiles, _ := checker.GetDirtyFiles()
				return printer.Error(
					"Git workspace is not clean",
					dirtyFiles,
					[]string{
						"Commit changes:\n  git add .\n  git commit -m \"your message\"",
						"Stash temporarily:\n  git stash",
						"Submit anyway:\n  warren submit --allow-dirty " + graphPath,
					},
				)
			}
		}
	}

	g, err := fleet.LoadGraph(graphPath)
	if err != nil {
		return printer.Error(
			"failed to load graph file",
			err.Error(),
			[]string{"Check that the file exists and contains valid JSON"},
		)
	}

	cli, err := docker.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	targetInstanceName := submitInstanceName
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

	client := transport.NewGraphClient(rdb, targetInstanceName)

	printer.Step("Submitting graph %s to instance '%s'...\n", graphPath, targetInstanceName)

	reply, err := client.SubmitGraph(ctx, g, submitTimeout)
	if err != nil {
		return printer.Error(
			"graph submission failed",
			err.Error(),
			[]string{"Confirm the instance is running: warren list"},
		)
	}

	if !reply.Accepted {
		return printer.Error(
			"graph rejected",
			reply.Reason,
			[]string{"Validate the graph offline before resubmitting: warren validate " + graphPath},
		)
	}

	printer.Success("Graph %s accepted (%d nodes, %d edges)\n", reply.GraphID, reply.NodeCount, reply.EdgeCount)
	return nil
}
