package agentcore

import (
	"context"
	"log"

	"github.com/dyluth/warren/pkg/fleet"
)

// finishTask is the completion stage: it clears the task's
// active-execution bookkeeping, reports success/failure to the
// orchestrator, and fires the two post-write-back knowledge calls
// (StoreKnowledge "outcome", StoreMemory) fire-and-forget. failureReason
// non-empty means the runtime itself failed (spawn error, stream abort,
// cancellation); otherwise success/summary/artifactIDs/subplan carry the
// agent-reported TaskCompleted outcome, which may itself be success=false
// (an agent can complete unsuccessfully without the runtime erroring).
func (e *Engine) finishTask(ctx context.Context, graphID, taskID string, success bool, summary string, artifactIDs []string, subplan *fleet.ProposedSubplan, failureReason string) {
	e.do(ctx, func(ctx context.Context) {
		delete(e.active, taskID)
		// A decomposing completion keeps its scratchpad: synthesis still
		// needs it. Any final outcome drops it.
		if subplan == nil {
			delete(e.working, taskID)
		}
	})

	if failureReason != "" {
		if err := e.completion.SubmitFailure(ctx, graphID, taskID, failureReason); err != nil {
			log.Printf("[WARN] agentcore: failed to submit task failure task_id=%s: %v", taskID, err)
		}
		e.logEvent("task_failed", map[string]any{"graph_id": graphID, "task_id": taskID, "reason": failureReason})
		return
	}

	if err := e.completion.SubmitCompletion(ctx, graphID, taskID, success, summary, artifactIDs, subplan); err != nil {
		log.Printf("[WARN] agentcore: failed to submit task completion task_id=%s: %v", taskID, err)
	}
	e.logEvent("task_completed", map[string]any{"graph_id": graphID, "task_id": taskID, "success": success, "has_subplan": subplan != nil})

	if e.sidecar == nil || summary == "" {
		return
	}
	go e.sidecar.Store(context.Background(), summary, e.agentID, "outcome", map[string]string{"taskId": taskID})
	go e.sidecar.Store(context.Background(), summary, e.agentID, "memory", map[string]string{"taskId": taskID})
}
