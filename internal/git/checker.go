package git

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Checker provides Git repository validation functionality
type Checker struct{}

// NewChecker creates a new Git checker
func NewChecker() *Checker {
	return &Checker{}
}

// IsGitRepository checks if the current directory is within a Git repository
func (c *Checker) IsGitRepository() (bool, error) {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	err := cmd.Run()
	if err != nil {
		// Check if error is because git command not found
		if _, ok := err.(*exec.Error); ok {
			return false, fmt.Errorf("git not found in PATH\nwarren requires Git to be installed.\nInstall Git: https://git-scm.com/downloads")
		}
		// Not in a Git repository
		return false, nil
	}
	return true, nil
}

// GetGitRoot returns the absolute path to the Git repository root
func (c *Checker) GetGitRoot() (string, error) {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get Git root: %w", err)
	}

	gitRoot := strings.TrimSpace(string(output))
	return gitRoot, nil
}

// IsGitRoot checks if the current directory is the Git repository root
func (c *Checker) IsGitRoot() (bool, string, error) {
	// Get current directory
	currentDir, err := os.Getwd()
	if err != nil {
		return false, "", fmt.Errorf("failed to get current directory: %w", err)
	}

	// Get Git root
	gitRoot, err := c.GetGitRoot()
	if err != nil {
		return false, "", err
	}

	// Clean both paths and compare
	currentDirClean := filepath.Clean(currentDir)
	gitRootClean := filepath.Clean(gitRoot)

	isRoot := currentDirClean == gitRootClean

	return isRoot, gitRoot, nil
}

// HasUncommittedChanges reports whether the working tree has staged or
// unstaged modifications. warren init (especially with --force) rewrites
// or removes warren.yml/runtimes.json/agents/ in place, so callers use
// this to warn before destroying uncommitted work the user has no other
// way to recover.
func (c *Checker) HasUncommittedChanges() (bool, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	output, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("failed to check Git status: %w", err)
	}
	return len(strings.TrimSpace(string(output))) > 0, nil
}

// IsWorkspaceClean reports whether the working tree has no staged or
// unstaged modifications. warren submit uses this to refuse dispatching a
// task graph against a workspace whose on-disk state doesn't match the
// commit agents will actually check out.
func (c *Checker) IsWorkspaceClean() (bool, error) {
	dirty, err := c.HasUncommittedChanges()
	if err != nil {
		return false, err
	}
	return !dirty, nil
}

// GetDirtyFiles renders the working tree's uncommitted and untracked files
// as a human-readable report, grouped the way `git status` itself groups
// them, for inclusion in a warren submit error message.
func (c *Checker) GetDirtyFiles() (string, error) {
	cmd := exec.Command("git", "status", "--porcelain")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to check Git status: %w", err)
	}

	var modified, untracked []string
	for _, line := range strings.Split(string(output), "\n") {
		if line == "" {
			continue
		}
		status := line[:2]
		file := strings.TrimSpace(line[2:])
		if status == "??" {
			untracked = append(untracked, file)
		} else {
			modified = append(modified, file)
		}
	}

	var sb strings.Builder
	if len(modified) > 0 {
		sb.WriteString("Uncommitted changes:\n")
		for _, f := range modified {
			sb.WriteString("  " + f + "\n")
		}
	}
	if len(untracked) > 0 {
		sb.WriteString("Untracked files:\n")
		for _, f := range untracked {
			sb.WriteString("  " + f + "\n")
		}
	}
	return sb.String(), nil
}

// ValidateGitContext validates that we're in a Git repository at its root
// Returns a user-friendly error if validation fails
func (c *Checker) ValidateGitContext() error {
	// First check if we're in a Git repository
	isRepo, err := c.IsGitRepository()
	if err != nil {
		return err
	}

	if !isRepo {
		return fmt.Errorf("not a Git repository\n\nwarren requires initialization from within a Git repository.\n\nRun 'git init' first, then 'warren init'")
	}

	// Check if we're at the Git root
	isRoot, gitRoot, err := c.IsGitRoot()
	if err != nil {
		return err
	}

	if !isRoot {
		currentDir, _ := os.Getwd()
		return fmt.Errorf("must run from Git repository root\n\nGit root: %s\nCurrent directory: %s\n\nPlease cd to the Git root and run 'warren init'", gitRoot, currentDir)
	}

	return nil
}
