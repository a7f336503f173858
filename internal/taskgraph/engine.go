package taskgraph

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/dyluth/warren/internal/viewport"
	"github.com/dyluth/warren/pkg/fleet"
)

// defaultBidWindow is how long the dispatcher waits for bids on a newly
// ready task before awarding (or failing) it.
const defaultBidWindow = 250 * time.Millisecond

// Limits are the decomposition bounds enforced when a task decomposes.
type Limits struct {
	MaxDepth      int
	MaxSubtasks   int
	MaxTotalNodes int
}

// TaskRequest is the message the orchestrator sends the dispatcher to
// announce a node is ready for bidding.
type TaskRequest struct {
	GraphID      string
	TaskID       string
	Description  string
	Capabilities []string
	Risk         fleet.RiskLevel
	BidWindow    time.Duration
}

// Dispatcher is the orchestrator's outbound view of the bid dispatcher.
type Dispatcher interface {
	OnTaskRequest(ctx context.Context, req TaskRequest)
}

// SubtasksCompletedMsg carries the collated child results back to the
// agent that produced a decomposition.
type SubtasksCompletedMsg struct {
	ParentTaskID string
	Results      []SubtaskResult
}

type SubtaskResult struct {
	TaskID  string
	Success bool
	Summary string
}

// AgentNotifier is the orchestrator's outbound view of the agents,
// routed by the supervisor: synthesis hand-back, decomposition rejection,
// and cancellation stop signals.
type AgentNotifier interface {
	NotifySubtasksCompleted(agentID string, msg SubtasksCompletedMsg)
	NotifyDecompositionRejected(agentID, taskID, reason string)
	NotifyStop(agentID, taskID string)
}

// SubmitResult is Submit's synchronous reply.
type SubmitResult struct {
	Accepted  bool
	GraphID   string
	NodeCount int
	EdgeCount int
	Reason    string
}

// Engine is the single-threaded mailbox actor implementing the
// Task-Graph Orchestrator. Every exported method enqueues a closure onto
// the actor's inbox and blocks for its processing to finish; the actor's
// own goroutine (driven by Run) is the only place graphState is ever
// touched, even though multiple goroutines may call these methods
// concurrently.
type Engine struct {
	instance string
	limits   Limits
	dispatch Dispatcher
	notifier AgentNotifier
	bridge   viewport.Bridge
	bus      *fleet.Bus // optional; nil is valid (no external event mirroring)

	inbox chan func(ctx context.Context)
	graphs map[string]*graphState
}

func NewEngine(instance string, limits Limits, dispatch Dispatcher, notifier AgentNotifier, bridge viewport.Bridge, bus *fleet.Bus) *Engine {
	if bridge == nil {
		bridge = viewport.Noop{}
	}
	return &Engine{
		instance: instance,
		limits:   limits,
		dispatch: dispatch,
		notifier: notifier,
		bridge:   bridge,
		bus:      bus,
		inbox:    make(chan func(ctx context.Context), 64),
		graphs:   map[string]*graphState{},
	}
}

// SetDispatcher wires the dispatcher this engine sends ready-task
// requests to. The engine and dispatcher construction is circular (the
// dispatcher also takes this engine as its Orchestrator), so callers
// construct both with a nil/placeholder counterpart and wire them
// together afterward, before either Run loop starts.
func (e *Engine) SetDispatcher(d Dispatcher) {
	e.dispatch = d
}

// Run processes the inbox until ctx is cancelled. It must be started in
// its own goroutine before any other method is called.
func (e *Engine) Run(ctx context.Context) {
	log.Printf("[INFO] taskgraph engine starting instance=%s", e.instance)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] taskgraph engine shutting down instance=%s", e.instance)
			return
		case action := <-e.inbox:
			action(ctx)
		}
	}
}

// do enqueues fn and blocks until it has run on the actor goroutine.
func (e *Engine) do(ctx context.Context, fn func(ctx context.Context)) {
	done := make(chan struct{})
	e.inbox <- func(ctx context.Context) {
		fn(ctx)
		close(done)
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (e *Engine) logEvent(eventType string, fields map[string]any) {
	entry := map[string]any{
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"component":  "taskgraph",
		"instance":   e.instance,
		"event_type": eventType,
	}
	for k, v := range fields {
		entry[k] = v
	}
	line, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[ERROR] taskgraph: failed to marshal log event: %v", err)
		return
	}
	log.Println(string(line))
}

// Submit validates and accepts or rejects a new graph.
func (e *Engine) Submit(ctx context.Context, g *fleet.Graph) SubmitResult {
	var result SubmitResult
	e.do(ctx, func(ctx context.Context) {
		result = e.submitLocked(ctx, g)
	})
	return result
}

func (e *Engine) submitLocked(ctx context.Context, g *fleet.Graph) SubmitResult {
	if g.GraphID == "" {
		g.GraphID = fleet.NewGraphID()
	}

	gs, err := buildGraphState(g)
	if err != nil {
		e.logEvent("graph_rejected", map[string]any{"graph_id": g.GraphID, "reason": err.Error()})
		return SubmitResult{Accepted: false, GraphID: g.GraphID, Reason: err.Error()}
	}

	e.graphs[g.GraphID] = gs
	e.bridge.PublishTaskGraphSubmitted(g.GraphID, len(gs.order), len(g.Edges))
	e.logEvent("graph_accepted", map[string]any{"graph_id": g.GraphID, "nodes": len(gs.order), "edges": len(g.Edges)})

	e.dispatchReady(ctx, gs)

	if gs.budget != nil && gs.budget.Deadline != nil {
		d := *gs.budget.Deadline
		graphID := g.GraphID
		time.AfterFunc(d, func() {
			e.OnGraphDeadline(context.Background(), graphID)
		})
	}

	// An empty graph is trivially, immediately terminal.
	e.checkTerminal(ctx, gs)

	return SubmitResult{Accepted: true, GraphID: g.GraphID, NodeCount: len(gs.order), EdgeCount: len(g.Edges)}
}

func (e *Engine) dispatchReady(ctx context.Context, gs *graphState) {
	for _, n := range gs.readyNodes() {
		e.bridge.PublishTaskNodeStatusChanged(gs.graphID, n.TaskID, n.Status, "")
		e.dispatch.OnTaskRequest(ctx, TaskRequest{
			GraphID:      gs.graphID,
			TaskID:       n.TaskID,
			Description:  n.Description,
			Capabilities: n.Capabilities,
			Risk:         riskOf(n.Budget),
			BidWindow:    defaultBidWindow,
		})
	}
}

func riskOf(b *fleet.TaskBudget) fleet.RiskLevel {
	if b == nil {
		return fleet.RiskNormal
	}
	if b.Risk == "" {
		return fleet.RiskNormal
	}
	return b.Risk
}

// OnTaskReadyForDispatch is the dispatcher's award notification: the node
// transitions Ready → Dispatched.
func (e *Engine) OnTaskReadyForDispatch(ctx context.Context, graphID, taskID, agentID string) {
	e.do(ctx, func(ctx context.Context) {
		gs, ok := e.graphs[graphID]
		if !ok {
			return
		}
		n, ok := gs.nodes[taskID]
		if !ok || n.Status != fleet.TaskReady {
			return
		}
		n.Status = fleet.TaskDispatched
		n.AssignedAgentID = agentID
		e.bridge.PublishTaskNodeStatusChanged(graphID, taskID, n.Status, agentID)
		e.logEvent("task_dispatched", map[string]any{"graph_id": graphID, "task_id": taskID, "agent_id": agentID})
	})
}

// OnTaskCompleted handles a completion message, optionally carrying a
// subplan (decomposition) or artifact ids.
func (e *Engine) OnTaskCompleted(ctx context.Context, graphID, taskID string, success bool, summary string, artifactIDs []string, subplan *fleet.ProposedSubplan) {
	e.do(ctx, func(ctx context.Context) {
		gs, ok := e.graphs[graphID]
		if !ok {
			return
		}
		n, ok := gs.nodes[taskID]
		if !ok || n.Status.Terminal() {
			return
		}

		if subplan != nil && n.Status == fleet.TaskDispatched {
			e.handleDecomposition(ctx, gs, n, subplan)
			return
		}

		if n.Status == fleet.TaskSynthesizing {
			e.completeSynthesis(ctx, gs, n, success)
			return
		}

		e.completeNode(ctx, gs, n, success)
	})
}

// completeNode finalizes a non-decomposing node's status, promotes newly
// ready dependents, and checks graph terminality.
func (e *Engine) completeNode(ctx context.Context, gs *graphState, n *fleet.TaskNode, success bool) {
	if success {
		n.Status = fleet.TaskCompleted
	} else {
		n.Status = fleet.TaskFailed
	}
	e.bridge.PublishTaskNodeStatusChanged(gs.graphID, n.TaskID, n.Status, n.AssignedAgentID)
	e.logEvent("task_completed", map[string]any{"graph_id": gs.graphID, "task_id": n.TaskID, "success": success})

	if success {
		for _, promoted := range gs.promoteReadyDependents(n.TaskID) {
			e.bridge.PublishTaskNodeStatusChanged(gs.graphID, promoted.TaskID, promoted.Status, "")
			e.dispatch.OnTaskRequest(ctx, TaskRequest{
				GraphID: gs.graphID, TaskID: promoted.TaskID, Description: promoted.Description,
				Capabilities: promoted.Capabilities, Risk: riskOf(promoted.Budget), BidWindow: defaultBidWindow,
			})
		}
	} else {
		e.cancelDependents(ctx, gs, n.TaskID)
	}

	// A failed subtask is still terminal: it can be the one that unblocks
	// its WaitingForSubtasks parent's AllSubtasksComplete stop condition
	// just as well as a successful one.
	e.maybeCompleteParent(ctx, gs, n.TaskID)

	e.checkTerminal(ctx, gs)
}

// OnTaskFailed marks a node Failed (e.g. runtime crash, bid-window
// exhaustion with no capable agent) and propagates cancellation.
func (e *Engine) OnTaskFailed(ctx context.Context, graphID, taskID, reason string) {
	e.do(ctx, func(ctx context.Context) {
		gs, ok := e.graphs[graphID]
		if !ok {
			return
		}
		n, ok := gs.nodes[taskID]
		if !ok || n.Status.Terminal() {
			return
		}
		n.Status = fleet.TaskFailed
		e.bridge.PublishTaskNodeStatusChanged(graphID, taskID, n.Status, n.AssignedAgentID)
		e.logEvent("task_failed", map[string]any{"graph_id": graphID, "task_id": taskID, "reason": reason})
		e.cancelDependents(ctx, gs, taskID)
		e.maybeCompleteParent(ctx, gs, taskID)
		e.checkTerminal(ctx, gs)
	})
}

// OnGraphDeadline fires the graph-wide timeout. Idempotent: a second call
// after the first is a no-op, so the timer fires exactly once per graph.
func (e *Engine) OnGraphDeadline(ctx context.Context, graphID string) {
	e.do(ctx, func(ctx context.Context) {
		gs, ok := e.graphs[graphID]
		if !ok || gs.deadlineFired {
			return
		}
		gs.deadlineFired = true
		e.logEvent("graph_deadline", map[string]any{"graph_id": graphID})

		for _, id := range gs.order {
			n := gs.nodes[id]
			switch n.Status {
			case fleet.TaskDispatched, fleet.TaskSynthesizing, fleet.TaskWaitingForSubtasks:
				if n.AssignedAgentID != "" {
					e.notifier.NotifyStop(n.AssignedAgentID, n.TaskID)
				}
				n.Status = fleet.TaskFailed
				e.bridge.PublishTaskNodeStatusChanged(graphID, n.TaskID, n.Status, n.AssignedAgentID)
			case fleet.TaskPending, fleet.TaskReady:
				n.Status = fleet.TaskCancelled
				e.bridge.PublishTaskNodeStatusChanged(graphID, n.TaskID, n.Status, "")
			}
		}
		e.emitGraphCompleted(gs)
	})
}

func (e *Engine) checkTerminal(ctx context.Context, gs *graphState) {
	if gs.isTerminal() {
		e.emitGraphCompleted(gs)
	}
}

func (e *Engine) emitGraphCompleted(gs *graphState) {
	if gs.completed {
		return
	}
	gs.completed = true
	results := gs.results()
	e.bridge.PublishTaskGraphCompleted(gs.graphID, results)
	e.logEvent("graph_completed", map[string]any{"graph_id": gs.graphID, "results": results})
	if e.bus != nil {
		raw, _ := json.Marshal(results)
		_ = e.bus.Publish(context.Background(), fleet.Event{Type: "TaskGraphCompleted", GraphID: gs.graphID, Detail: raw})
	}
}

// QueueDepth reports how many pending actions are waiting in the inbox,
// a cheap liveness signal for the health endpoint.
func (e *Engine) QueueDepth() int {
	return len(e.inbox)
}

// GraphSnapshot is a read-only view used by tests and `warren watch`-style
// consumers that don't have a live bus subscription.
type GraphSnapshot struct {
	GraphID string
	Nodes   map[string]fleet.TaskStatus
}

// Snapshot returns a point-in-time copy of a graph's node statuses.
func (e *Engine) Snapshot(ctx context.Context, graphID string) (GraphSnapshot, bool) {
	var snap GraphSnapshot
	found := false
	e.do(ctx, func(ctx context.Context) {
		gs, ok := e.graphs[graphID]
		if !ok {
			return
		}
		found = true
		snap = GraphSnapshot{GraphID: graphID, Nodes: map[string]fleet.TaskStatus{}}
		for id, n := range gs.nodes {
			snap.Nodes[id] = n.Status
		}
	})
	return snap, found
}
