package commands

import (
	"fmt"

	"github.com/dyluth/warren/internal/git"
	"github.com/dyluth/warren/internal/printer"
	"github.com/dyluth/warren/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new warren project",
	Long: `Initialize a new warren project with a default fleet manifest and example agent.

Creates:
  • warren.yml - fleet manifest (agents, capabilities, capacity, replicas)
  • runtimes.json - runtime catalog (how to drive each agent's subprocess)
  • agents/example-agent/ - example agent demonstrating the kit contract

This command must be run from the root of a Git repository.

Use --force to reinitialize an existing project (WARNING: destroys existing configuration).`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Force reinitialization (removes existing warren.yml, runtimes.json, and agents/)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	checker := git.NewChecker()
	if err := checker.ValidateGitContext(); err != nil {
		return err
	}

	if forceInit {
		if dirty, err := checker.HasUncommittedChanges(); err == nil && dirty {
			printer.Warning("working tree has uncommitted changes; --force will overwrite warren.yml/runtimes.json/agents/ with no way to recover them other than git\n")
		}
	}

	if !forceInit {
		if err := scaffold.CheckExisting(); err != nil {
			return err
		}
	}

	if err := scaffold.Initialize(forceInit); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	scaffold.PrintSuccess()

	return nil
}
