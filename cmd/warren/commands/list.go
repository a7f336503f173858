package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"os"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	dockerpkg "github.com/dyluth/warren/internal/docker"
	"github.com/dyluth/warren/internal/instance"
)

var (
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all warren instances",
	Long: `List all warren instances by querying Docker for containers with the warren.project label.

For each instance, displays:
  • Instance name
  • Status (Running/Degraded/Stopped), based on the Redis and orchestrator
    containers only - a quiet fleet with no agent kits running is not degraded
  • Workspace path
  • Uptime (for running instances)
  • Kits running/total, i.e. how many agent containers are currently alive

Use --json for machine-readable output.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	containerFilters := filters.NewArgs()
	containerFilters.Add("label", fmt.Sprintf("%s=true", dockerpkg.LabelProject))

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: containerFilters,
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	instances := make(map[string][]types.Container)
	for _, c := range containers {
		instanceName := c.Labels[dockerpkg.LabelInstanceName]
		instances[instanceName] = append(instances[instanceName], c)
	}

	var infos []instance.InstanceInfo
	for name, containers := range instances {
		status := instance.DetermineStatus(containers)
		kitsRunning, kitsTotal := instance.CountKits(containers)

		workspacePath := containers[0].Labels[dockerpkg.LabelWorkspacePath]
		createdAt := containers[0].Created

		var uptime string
		if status == instance.StatusRunning {
			duration := time.Since(time.Unix(createdAt, 0))
			uptime = formatDuration(duration)
		} else {
			uptime = "-"
		}

		infos = append(infos, instance.InstanceInfo{
			Name:        name,
			Status:      status,
			Workspace:   workspacePath,
			Uptime:      uptime,
			KitsRunning: kitsRunning,
			KitsTotal:   kitsTotal,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	if len(infos) == 0 {
		if !listJSON {
			fmt.Println("No warren instances found.")
			fmt.Println()
			fmt.Println("Run 'warren up' to start a new instance.")
		} else {
			fmt.Println("[]")
		}
		return nil
	}

	if listJSON {
		outputJSON(infos)
	} else {
		outputTable(infos)
	}

	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)

	hours := d / time.Hour
	d -= hours * time.Hour

	minutes := d / time.Minute
	d -= minutes * time.Minute

	seconds := d / time.Second

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

func outputJSON(infos []instance.InstanceInfo) {
	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func outputTable(infos []instance.InstanceInfo) {
	table := tablewriter.NewTable(os.Stdout)
	table.Header([]string{"Instance", "Status", "Workspace", "Uptime", "Kits"})

	for _, info := range infos {
		workspace := info.Workspace
		if len(workspace) > 30 {
			workspace = "..." + workspace[len(workspace)-27:]
		}

		kits := fmt.Sprintf("%d/%d", info.KitsRunning, info.KitsTotal)
		table.Append([]string{info.Name, string(info.Status), workspace, info.Uptime, kits})
	}

	table.Render()
}
