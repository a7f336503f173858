package taskgraph

import (
	"context"

	"github.com/dyluth/warren/pkg/fleet"
)

// cancelDependents cancels every non-terminal node reachable from a
// failed or otherwise-abandoned root, including the children of any
// WaitingForSubtasks descendant it passes through.
func (e *Engine) cancelDependents(ctx context.Context, gs *graphState, rootTaskID string) {
	for _, id := range gs.descendants(rootTaskID) {
		n := gs.nodes[id]
		if n.Status.Terminal() {
			continue
		}
		e.cancelNode(ctx, gs, n)
	}
}

// cancelNode marks a single node Cancelled, issuing a stop signal to its
// assigned agent if one is running, and cascades into any children it
// was waiting on.
func (e *Engine) cancelNode(ctx context.Context, gs *graphState, n *fleet.TaskNode) {
	if n.Status.Terminal() {
		return
	}

	agentID := n.AssignedAgentID
	n.Status = fleet.TaskCancelled
	e.bridge.PublishTaskNodeStatusChanged(gs.graphID, n.TaskID, n.Status, agentID)
	e.logEvent("task_cancelled", map[string]any{"graph_id": gs.graphID, "task_id": n.TaskID})

	if agentID != "" {
		e.notifier.NotifyStop(agentID, n.TaskID)
	}

	if children, ok := gs.siblings[n.TaskID]; ok {
		for _, childID := range children {
			child := gs.nodes[childID]
			if !child.Status.Terminal() {
				e.cancelNode(ctx, gs, child)
			}
		}
	}
}
