package taskgraph

import (
	"context"

	"github.com/dyluth/warren/pkg/fleet"
)

// maybeCompleteParent checks whether the just-finished taskID is a
// subtask of a WaitingForSubtasks parent, and if the parent's stop
// condition is now satisfied, notifies the decomposing agent and moves
// the parent into Synthesizing.
func (e *Engine) maybeCompleteParent(ctx context.Context, gs *graphState, taskID string) {
	parentID, ok := gs.parentOf[taskID]
	if !ok {
		return
	}
	parent := gs.nodes[parentID]
	if parent.Status != fleet.TaskWaitingForSubtasks {
		return
	}

	siblings := gs.siblings[parentID]
	if !stopConditionSatisfied(gs, parent.StopCondition, siblings) {
		return
	}

	// UserDecision requires an external OnUserDecision call; it never
	// auto-triggers here even once every sibling is terminal.
	if parent.StopCondition == fleet.StopUserDecision {
		return
	}

	e.triggerSynthesis(ctx, gs, parent, siblings)
}

// OnUserDecision lets an external caller (e.g. a CLI prompt or approval
// UI) resolve a UserDecision-gated decomposition once it decides enough
// siblings have reported in.
func (e *Engine) OnUserDecision(ctx context.Context, graphID, parentTaskID string, proceed bool) {
	e.do(ctx, func(ctx context.Context) {
		gs, ok := e.graphs[graphID]
		if !ok {
			return
		}
		parent, ok := gs.nodes[parentTaskID]
		if !ok || parent.Status != fleet.TaskWaitingForSubtasks || parent.StopCondition != fleet.StopUserDecision {
			return
		}
		if !proceed {
			return
		}
		e.triggerSynthesis(ctx, gs, parent, gs.siblings[parentTaskID])
	})
}

func stopConditionSatisfied(gs *graphState, cond fleet.StopCondition, siblings []string) bool {
	allTerminal := true
	anySucceeded := false
	for _, id := range siblings {
		n := gs.nodes[id]
		if !n.Status.Terminal() {
			allTerminal = false
		}
		if n.Status == fleet.TaskCompleted {
			anySucceeded = true
		}
	}
	switch cond {
	case fleet.StopFirstSuccess:
		return anySucceeded || allTerminal
	case fleet.StopUserDecision:
		return allTerminal
	default: // StopAllSubtasksComplete and unset default to waiting for all
		return allTerminal
	}
}

// triggerSynthesis cancels any subtasks left running (relevant for
// first-success), collates results, and hands them to the decomposing
// agent for synthesis.
func (e *Engine) triggerSynthesis(ctx context.Context, gs *graphState, parent *fleet.TaskNode, siblings []string) {
	for _, id := range siblings {
		n := gs.nodes[id]
		if !n.Status.Terminal() {
			e.cancelNode(ctx, gs, n)
		}
	}

	results := make([]SubtaskResult, 0, len(siblings))
	for _, id := range siblings {
		n := gs.nodes[id]
		results = append(results, SubtaskResult{
			TaskID:  id,
			Success: n.Status == fleet.TaskCompleted,
			Summary: n.Description,
		})
	}

	parent.Status = fleet.TaskSynthesizing
	e.bridge.PublishTaskNodeStatusChanged(gs.graphID, parent.TaskID, parent.Status, parent.DecomposedBy)
	e.logEvent("synthesis_triggered", map[string]any{"graph_id": gs.graphID, "parent_task_id": parent.TaskID})

	if parent.DecomposedBy != "" {
		e.notifier.NotifySubtasksCompleted(parent.DecomposedBy, SubtasksCompletedMsg{
			ParentTaskID: parent.TaskID,
			Results:      results,
		})
	}
}

// completeSynthesis handles the decomposing agent's second completion
// call for a parent: the one that finalizes the parent itself after it
// has digested its children's results.
func (e *Engine) completeSynthesis(ctx context.Context, gs *graphState, parent *fleet.TaskNode, success bool) {
	if success {
		parent.Status = fleet.TaskCompleted
	} else {
		parent.Status = fleet.TaskFailed
	}
	e.bridge.PublishTaskNodeStatusChanged(gs.graphID, parent.TaskID, parent.Status, parent.DecomposedBy)
	e.logEvent("task_completed", map[string]any{"graph_id": gs.graphID, "task_id": parent.TaskID, "success": success})

	if success {
		for _, promoted := range gs.promoteReadyDependents(parent.TaskID) {
			e.bridge.PublishTaskNodeStatusChanged(gs.graphID, promoted.TaskID, promoted.Status, "")
			e.dispatch.OnTaskRequest(ctx, TaskRequest{
				GraphID: gs.graphID, TaskID: promoted.TaskID, Description: promoted.Description,
				Capabilities: promoted.Capabilities, Risk: riskOf(promoted.Budget), BidWindow: defaultBidWindow,
			})
		}
	} else {
		e.cancelDependents(ctx, gs, parent.TaskID)
	}

	// The parent may itself be a subtask of a still-waiting grandparent;
	// its synthesis outcome is terminal either way.
	e.maybeCompleteParent(ctx, gs, parent.TaskID)

	e.checkTerminal(ctx, gs)
}
