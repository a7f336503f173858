package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/config"
	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/taskgraph"
	"github.com/dyluth/warren/pkg/fleet"
)

var validateManifestPath string

var validateCmd = &cobra.Command{
	Use:   "validate <graph.json>",
	Short: "Validate a task graph file without submitting it",
	Long: `Check a task graph JSON file for every structural problem the
orchestrator would reject it for - duplicate task ids, edges referencing
unknown task ids, cycles - without connecting to anything.

With --manifest, also checks each task's required capabilities against
the fleet's agent roles and reports any capability no agent can satisfy.

Examples:
  warren validate graph.json
  warren validate --manifest warren.yml graph.json`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateManifestPath, "manifest", "", "Fleet manifest to check capability coverage against")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	graphPath := args[0]

	g, err := fleet.LoadGraph(graphPath)
	if err != nil {
		return printer.Error(
			"failed to load graph file",
			err.Error(),
			[]string{"Check that the file exists and contains valid JSON"},
		)
	}

	if err := taskgraph.ValidateGraph(g); err != nil {
		return printer.Error(
			"graph is invalid",
			err.Error(),
			[]string{"Fix the reported problem and re-run: warren validate " + graphPath},
		)
	}

	printer.Success("Graph structure is valid (%d nodes, %d edges)\n", len(g.Nodes), len(g.Edges))

	if validateManifestPath == "" {
		return nil
	}

	manifest, err := config.LoadManifest(validateManifestPath)
	if err != nil {
		return printer.Error(
			"failed to load fleet manifest",
			err.Error(),
			[]string{"Check the manifest path and YAML syntax"},
		)
	}

	unmet := unmetCapabilities(g, manifest)
	if len(unmet) > 0 {
		detail := ""
		for _, u := range unmet {
			detail += fmt.Sprintf("task %q requires %v; no agent role covers it\n", u.taskID, u.capabilities)
		}
		return printer.Error(
			"capability coverage check failed",
			detail,
			[]string{"Add an agent role with the missing capabilities to " + validateManifestPath},
		)
	}

	printer.Success("Every task's capability set is covered by at least one agent role\n")
	return nil
}

type unmetEntry struct {
	taskID       string
	capabilities []string
}

// unmetCapabilities returns every task whose required capability set no
// single agent role in the manifest fully covers - the same subset match
// the skill registry answers at runtime.
func unmetCapabilities(g *fleet.Graph, manifest *config.Manifest) []unmetEntry {
	var out []unmetEntry
	for _, node := range g.Nodes {
		if len(node.Capabilities) == 0 {
			continue
		}
		covered := false
		for _, spec := range manifest.Agents {
			desc := fleet.AgentDescriptor{Capabilities: spec.Capabilities}
			if desc.HasAllCapabilities(node.Capabilities) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, unmetEntry{taskID: node.TaskID, capabilities: node.Capabilities})
		}
	}
	return out
}
