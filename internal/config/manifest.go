// Package config loads the two configuration surfaces a warren run needs:
// the fleet manifest (warren.yml, describing which agents exist) and the
// runtime catalog (runtimes.json, describing how to drive each kind of
// agent subprocess). See catalog.go for the latter.
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// OrchestratorSettings configures behavior of the task-graph orchestrator
// that is not part of any individual graph submission.
type OrchestratorSettings struct {
	MaxDepth      *int `yaml:"max_depth,omitempty"`      // default 3
	MaxSubtasks   *int `yaml:"max_subtasks,omitempty"`    // default 10
	MaxTotalNodes *int `yaml:"max_total_nodes,omitempty"` // default 100
}

const (
	DefaultMaxDepth      = 3
	DefaultMaxSubtasks   = 10
	DefaultMaxTotalNodes = 100
)

// Manifest is the top-level warren.yml document.
type Manifest struct {
	Version      string                `yaml:"version"`
	Orchestrator *OrchestratorSettings `yaml:"orchestrator,omitempty"`
	Agents       map[string]AgentSpec  `yaml:"agents"`
}

// AgentSpec describes one agent role the fleet should run. The map key in
// Manifest.Agents is the agent's role name.
type AgentSpec struct {
	Image        string   `yaml:"image"`
	Command      []string `yaml:"command"`
	Capabilities []string `yaml:"capabilities"`
	Capacity     int      `yaml:"capacity,omitempty"` // max concurrent tasks, default 1
	Replicas     *int     `yaml:"replicas,omitempty"`
	RuntimeID    string   `yaml:"runtime_id"` // looked up in the runtime catalog
	Model        *ModelOverride `yaml:"model,omitempty"`
	BidScript    []string `yaml:"bid_script,omitempty"`
	Environment  []string `yaml:"environment,omitempty"`
	Workspace    *WorkspaceSpec `yaml:"workspace,omitempty"`
}

// ModelOverride lets a fleet manifest pin an agent to a specific model,
// merged against the runtime catalog's default per MergeModelSpec.
type ModelOverride struct {
	Provider   string            `yaml:"provider,omitempty"`
	ModelID    string            `yaml:"model_id,omitempty"`
	Parameters map[string]string `yaml:"parameters,omitempty"`
}

type WorkspaceSpec struct {
	Mode string `yaml:"mode"` // "ro" or "rw"
}

// Validate applies defaults and checks the manifest is well formed.
func (m *Manifest) Validate() error {
	if m.Version != "1.0" {
		return fmt.Errorf("unsupported manifest version: %s (expected 1.0)", m.Version)
	}
	if len(m.Agents) == 0 {
		return fmt.Errorf("no agents defined")
	}

	if m.Orchestrator == nil {
		m.Orchestrator = &OrchestratorSettings{}
	}
	if m.Orchestrator.MaxDepth == nil {
		d := DefaultMaxDepth
		m.Orchestrator.MaxDepth = &d
	}
	if m.Orchestrator.MaxSubtasks == nil {
		d := DefaultMaxSubtasks
		m.Orchestrator.MaxSubtasks = &d
	}
	if m.Orchestrator.MaxTotalNodes == nil {
		d := DefaultMaxTotalNodes
		m.Orchestrator.MaxTotalNodes = &d
	}

	for role, agent := range m.Agents {
		if err := validateRoleName(role); err != nil {
			return fmt.Errorf("invalid agent role %q: %w", role, err)
		}
		if err := agent.Validate(role); err != nil {
			return err
		}
		m.Agents[role] = agent
	}

	return nil
}

func (a *AgentSpec) Validate(role string) error {
	if a.Image == "" {
		return fmt.Errorf("agent %q: image is required", role)
	}
	if len(a.Command) == 0 {
		return fmt.Errorf("agent %q: command is required", role)
	}
	if len(a.Capabilities) == 0 {
		return fmt.Errorf("agent %q: at least one capability is required", role)
	}
	if a.RuntimeID == "" {
		return fmt.Errorf("agent %q: runtime_id is required", role)
	}
	if a.Capacity == 0 {
		a.Capacity = 1
	}
	if a.Capacity < 0 {
		return fmt.Errorf("agent %q: capacity must be >= 0", role)
	}
	if a.Workspace != nil && a.Workspace.Mode != "" && a.Workspace.Mode != "ro" && a.Workspace.Mode != "rw" {
		return fmt.Errorf("agent %q: invalid workspace mode %q (must be 'ro' or 'rw')", role, a.Workspace.Mode)
	}
	return nil
}

func validateRoleName(role string) error {
	if role == "" {
		return fmt.Errorf("role cannot be empty")
	}
	if len(role) > 64 {
		return fmt.Errorf("role name too long (max 64 chars)")
	}
	for _, ch := range role {
		if !((ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') ||
			(ch >= '0' && ch <= '9') || ch == '-' || ch == '_') {
			return fmt.Errorf("role must be alphanumeric with optional hyphens/underscores")
		}
	}
	if role[0] < 'A' || role[0] > 'Z' {
		log.Printf("[Config] warning: role %q should start with an uppercase letter (PascalCase convention)", role)
	}
	return nil
}

// LoadManifest reads and validates a warren.yml fleet manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest YAML: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}
