package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadManifest_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warren.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1.0"
agents:
  Coder:
    image: warren/coder:latest
    command: ["kit"]
    capabilities: ["code_edit"]
    runtime_id: claude-cli
`), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	require.Equal(t, DefaultMaxDepth, *m.Orchestrator.MaxDepth)
	require.Equal(t, DefaultMaxSubtasks, *m.Orchestrator.MaxSubtasks)
	require.Equal(t, DefaultMaxTotalNodes, *m.Orchestrator.MaxTotalNodes)
	require.Equal(t, 1, m.Agents["Coder"].Capacity)
}

func TestLoadManifest_MissingAgents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warren.yml")
	require.NoError(t, os.WriteFile(path, []byte(`version: "1.0"`), 0o644))

	_, err := LoadManifest(path)
	require.Error(t, err)
}

func TestLoadManifest_RejectsBadWorkspaceMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warren.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1.0"
agents:
  Coder:
    image: img
    command: ["kit"]
    capabilities: ["code_edit"]
    runtime_id: claude-cli
    workspace:
      mode: "bogus"
`), 0o644))

	_, err := LoadManifest(path)
	require.Error(t, err)
}
