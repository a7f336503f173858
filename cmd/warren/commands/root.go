package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "warren",
	Short: "warren - container-native multi-agent task orchestrator",
	Long: `warren runs a fleet of specialized, tool-equipped AI agents against a
submitted task graph: agents bid for ready tasks, the highest-fitness bid
wins, and any agent may decompose its task into a subplan that re-enters
the graph.

warren provides an event-driven architecture with Redis-backed
coordination, enabling transparent, auditable agent workflows.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
