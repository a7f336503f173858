package taskgraph

import (
	"context"
	"fmt"

	"github.com/dyluth/warren/pkg/fleet"
)

// handleDecomposition ingests an agent-proposed subplan for a Dispatched
// node, checking the depth/fan-out/total-node preconditions in order
// before committing any change. A rejected proposal leaves the parent
// Dispatched and tells the proposing agent why, so it may retry or give
// up and complete the task directly.
func (e *Engine) handleDecomposition(ctx context.Context, gs *graphState, parent *fleet.TaskNode, plan *fleet.ProposedSubplan) {
	if err := plan.Validate(); err != nil {
		e.rejectDecomposition(parent, err)
		return
	}
	if err := e.checkDecompositionLimits(gs, parent, plan); err != nil {
		e.rejectDecomposition(parent, err)
		return
	}

	childIDs := make([]string, len(plan.Subtasks))
	for i, st := range plan.Subtasks {
		childID := fmt.Sprintf("%s/sub-%d", parent.TaskID, i)
		childIDs[i] = childID

		child := &fleet.TaskNode{
			TaskID:       childID,
			Description:  st.Description,
			Capabilities: st.Capabilities,
			Budget:       st.Budget,
			Status:       fleet.TaskPending,
			Depth:        parent.Depth + 1,
		}
		gs.nodes[childID] = child
		gs.order = append(gs.order, childID)
		gs.indegree[childID] = 0

		for _, depIdx := range st.DependsOn {
			depID := childIDs[depIdx]
			gs.outEdges[depID] = append(gs.outEdges[depID], childID)
			gs.inEdges[childID] = append(gs.inEdges[childID], depID)
			gs.indegree[childID]++
		}

		// Every subtask also feeds back into the parent: the parent only
		// leaves WaitingForSubtasks once every child reaches a terminal
		// status, which the synthesis stage checks directly rather than
		// through the indegree mechanism (the parent is not "ready" in
		// the DAG-scheduling sense - it's suspended on its own children).
	}

	gs.siblings[parent.TaskID] = childIDs
	for _, id := range childIDs {
		gs.parentOf[id] = parent.TaskID
	}

	parent.Status = fleet.TaskWaitingForSubtasks
	parent.StopCondition = plan.StopCondition
	parent.DecomposedBy = parent.AssignedAgentID
	e.bridge.PublishTaskNodeStatusChanged(gs.graphID, parent.TaskID, parent.Status, parent.AssignedAgentID)
	e.logEvent("task_decomposed", map[string]any{
		"graph_id": gs.graphID, "parent_task_id": parent.TaskID, "subtask_count": len(childIDs),
	})

	for _, id := range childIDs {
		n := gs.nodes[id]
		if gs.indegree[id] == 0 {
			n.Status = fleet.TaskReady
		}
	}
	for _, id := range childIDs {
		n := gs.nodes[id]
		if n.Status == fleet.TaskReady {
			e.bridge.PublishTaskNodeStatusChanged(gs.graphID, n.TaskID, n.Status, "")
			e.dispatch.OnTaskRequest(ctx, TaskRequest{
				GraphID: gs.graphID, TaskID: n.TaskID, Description: n.Description,
				Capabilities: n.Capabilities, Risk: riskOf(n.Budget), BidWindow: defaultBidWindow,
			})
		}
	}
}

func (e *Engine) rejectDecomposition(parent *fleet.TaskNode, err error) {
	e.logEvent("decomposition_rejected", map[string]any{"task_id": parent.TaskID, "reason": err.Error()})
	if parent.AssignedAgentID != "" {
		e.notifier.NotifyDecompositionRejected(parent.AssignedAgentID, parent.TaskID, err.Error())
	}
}

// checkDecompositionLimits enforces the depth/fan-out/total-node
// preconditions, checked in this order, against e.limits (falling back
// to the documented defaults for any unset field).
func (e *Engine) checkDecompositionLimits(gs *graphState, parent *fleet.TaskNode, plan *fleet.ProposedSubplan) error {
	maxDepth := e.limits.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	maxSubtasks := e.limits.MaxSubtasks
	if maxSubtasks <= 0 {
		maxSubtasks = 10
	}
	maxTotalNodes := e.limits.MaxTotalNodes
	if maxTotalNodes <= 0 {
		maxTotalNodes = 100
	}

	if parent.Depth+1 > maxDepth {
		return fmt.Errorf("decomposition would exceed max depth %d", maxDepth)
	}
	if len(plan.Subtasks) == 0 {
		return fmt.Errorf("subplan proposes no subtasks")
	}
	if len(plan.Subtasks) > maxSubtasks {
		return fmt.Errorf("decomposition proposes %d subtasks, exceeding max %d", len(plan.Subtasks), maxSubtasks)
	}
	if len(gs.nodes)+len(plan.Subtasks) > maxTotalNodes {
		return fmt.Errorf("decomposition would exceed max total nodes %d", maxTotalNodes)
	}
	return nil
}
