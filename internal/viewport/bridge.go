// Package viewport defines the outbound-only bridge interface the
// orchestrator and agents invoke to report state; no implementation may
// ever propagate an error back into the core.
package viewport

import "github.com/dyluth/warren/pkg/fleet"

// Bridge is implemented by whatever renders a run for a human operator.
// Every method is fire-and-forget from the core's perspective.
type Bridge interface {
	PublishAgentSpawned(agentID string, visual fleet.AgentVisual)
	PublishAgentStateChanged(agentID, activity string)
	PublishAgentDespawned(agentID string)

	PublishTaskGraphSubmitted(graphID string, nodeCount, edgeCount int)
	PublishTaskNodeStatusChanged(graphID, taskID string, status fleet.TaskStatus, agentID string)
	PublishTaskGraphCompleted(graphID string, results fleet.GraphResults)

	PublishRuntimeStarted(agentID string)
	PublishRuntimeExited(agentID string, err error)
	PublishRuntimeOutput(agentID, line string)
}

// Noop is a Bridge that discards everything; the default for headless
// runs and for unit tests of components that require a Bridge but don't
// exercise it.
type Noop struct{}

func (Noop) PublishAgentSpawned(string, fleet.AgentVisual)                 {}
func (Noop) PublishAgentStateChanged(string, string)                       {}
func (Noop) PublishAgentDespawned(string)                                  {}
func (Noop) PublishTaskGraphSubmitted(string, int, int)                    {}
func (Noop) PublishTaskNodeStatusChanged(string, string, fleet.TaskStatus, string) {}
func (Noop) PublishTaskGraphCompleted(string, fleet.GraphResults)          {}
func (Noop) PublishRuntimeStarted(string)                                  {}
func (Noop) PublishRuntimeExited(string, error)                            {}
func (Noop) PublishRuntimeOutput(string, string)                           {}
