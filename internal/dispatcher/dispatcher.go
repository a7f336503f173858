// Package dispatcher runs the per-task bid auction: it broadcasts ready tasks
// to capable agents, collects bids within a fixed window, ranks them,
// and gates Critical-risk awards behind an external approval before
// notifying the Task-Graph Orchestrator and the winning agent.
package dispatcher

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/dyluth/warren/internal/taskgraph"
	"github.com/dyluth/warren/internal/viewport"
	"github.com/dyluth/warren/pkg/fleet"
)

const defaultApprovalTimeout = 60 * time.Second

// Orchestrator is the dispatcher's outbound view of the Task-Graph
// Orchestrator.
type Orchestrator interface {
	OnTaskReadyForDispatch(ctx context.Context, graphID, taskID, agentID string)
	OnTaskFailed(ctx context.Context, graphID, taskID, reason string)
}

// AgentNotifier reaches the agents being offered or awarded work.
type AgentNotifier interface {
	NotifyTaskOffered(agentID, graphID, taskID, description string, capabilities []string)
	NotifyTaskAwarded(agentID, graphID, taskID string)
	NotifyTaskBidRejected(agentID, graphID, taskID string)
}

// CapabilityIndex resolves which agents can attempt a task, per the
// Skill Registry (component paired with the dispatcher).
type CapabilityIndex interface {
	FindCapable(capabilities []string) []string
}

// Approver requests out-of-band approval for a Critical-risk award and
// reports the decision back asynchronously via OnApprovalDecision.
type Approver interface {
	RequestApproval(ctx context.Context, graphID, taskID string, candidateAgentID string)
}

type pendingTask struct {
	req            taskgraph.TaskRequest
	offered        map[string]bool // agents the task was offered to; only they may bid
	bids           map[string]fleet.Bid
	awaiting       bool // true once a Critical award is waiting on approval
	approvalWinner string
}

// Dispatcher is the single-threaded mailbox actor running the auctions.
type Dispatcher struct {
	instance     string
	orchestrator Orchestrator
	notifier     AgentNotifier
	capabilities CapabilityIndex
	approver     Approver
	bridge       viewport.Bridge

	inbox   chan func(ctx context.Context)
	pending map[string]*pendingTask // key: graphID+"/"+taskID
}

// QueueDepth reports how many pending actions are waiting in the inbox.
func (d *Dispatcher) QueueDepth() int {
	return len(d.inbox)
}

func NewDispatcher(instance string, orchestrator Orchestrator, notifier AgentNotifier, capabilities CapabilityIndex, approver Approver, bridge viewport.Bridge) *Dispatcher {
	if bridge == nil {
		bridge = viewport.Noop{}
	}
	return &Dispatcher{
		instance:     instance,
		orchestrator: orchestrator,
		notifier:     notifier,
		capabilities: capabilities,
		approver:     approver,
		bridge:       bridge,
		inbox:        make(chan func(ctx context.Context), 64),
		pending:      map[string]*pendingTask{},
	}
}

func key(graphID, taskID string) string { return graphID + "/" + taskID }

func (d *Dispatcher) Run(ctx context.Context) {
	log.Printf("[INFO] dispatcher starting instance=%s", d.instance)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] dispatcher shutting down instance=%s", d.instance)
			return
		case action := <-d.inbox:
			action(ctx)
		}
	}
}

func (d *Dispatcher) do(ctx context.Context, fn func(ctx context.Context)) {
	done := make(chan struct{})
	d.inbox <- func(ctx context.Context) {
		fn(ctx)
		close(done)
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (d *Dispatcher) logEvent(eventType string, fields map[string]any) {
	entry := map[string]any{
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		"component":  "dispatcher",
		"instance":   d.instance,
		"event_type": eventType,
	}
	for k, v := range fields {
		entry[k] = v
	}
	line, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[ERROR] dispatcher: failed to marshal log event: %v", err)
		return
	}
	log.Println(string(line))
}

// OnTaskRequest announces a newly-ready task: it queries the skill
// registry for capable agents, offers the task to each, and arms the bid
// window.
func (d *Dispatcher) OnTaskRequest(ctx context.Context, req taskgraph.TaskRequest) {
	d.do(ctx, func(ctx context.Context) {
		k := key(req.GraphID, req.TaskID)
		pt := &pendingTask{req: req, offered: map[string]bool{}, bids: map[string]fleet.Bid{}}
		d.pending[k] = pt

		// A zero window is honored as-is: the timer fires immediately,
		// no bids can land, and the first-match fallback picks the agent.
		window := req.BidWindow
		if window < 0 {
			window = 250 * time.Millisecond
		}

		candidates := d.capabilities.FindCapable(req.Capabilities)
		if len(candidates) == 0 {
			d.logEvent("no_capable_agents", map[string]any{"graph_id": req.GraphID, "task_id": req.TaskID})
			delete(d.pending, k)
			d.orchestrator.OnTaskFailed(ctx, req.GraphID, req.TaskID, "no agent registered with required capabilities")
			return
		}

		for _, agentID := range candidates {
			pt.offered[agentID] = true
			d.notifier.NotifyTaskOffered(agentID, req.GraphID, req.TaskID, req.Description, req.Capabilities)
		}

		graphID, taskID := req.GraphID, req.TaskID
		time.AfterFunc(window, func() {
			d.OnBidWindowExpired(context.Background(), graphID, taskID)
		})
	})
}

// OnBid records a bid for a task still collecting them.
func (d *Dispatcher) OnBid(ctx context.Context, bid fleet.Bid, graphID string) {
	d.do(ctx, func(ctx context.Context) {
		if err := bid.Validate(); err != nil {
			d.logEvent("invalid_bid_rejected", map[string]any{"agent_id": bid.AgentID, "task_id": bid.TaskID, "reason": err.Error()})
			return
		}
		pt, ok := d.pending[key(graphID, bid.TaskID)]
		if !ok || pt.awaiting {
			return // window already closed
		}
		if !pt.offered[bid.AgentID] {
			d.logEvent("uninvited_bid_rejected", map[string]any{"agent_id": bid.AgentID, "task_id": bid.TaskID})
			return
		}
		if _, dup := pt.bids[bid.AgentID]; dup {
			d.logEvent("duplicate_bid_rejected", map[string]any{"agent_id": bid.AgentID, "task_id": bid.TaskID})
			return
		}
		pt.bids[bid.AgentID] = bid
	})
}

// OnBidWindowExpired ranks the collected bids and either awards the task
// directly or, for Critical risk, requests approval first.
func (d *Dispatcher) OnBidWindowExpired(ctx context.Context, graphID, taskID string) {
	d.do(ctx, func(ctx context.Context) {
		k := key(graphID, taskID)
		pt, ok := d.pending[k]
		if !ok || pt.awaiting {
			return
		}

		bids := make([]fleet.Bid, 0, len(pt.bids))
		for _, b := range pt.bids {
			bids = append(bids, b)
		}
		winner, found := SelectWinner(bids)
		var winnerAgentID string
		if found {
			winnerAgentID = winner.AgentID
		} else {
			// No bids arrived before the window closed: fall back to
			// first-match, picking any capable agent straight from the
			// skill registry rather than failing the task outright.
			candidates := d.capabilities.FindCapable(pt.req.Capabilities)
			if len(candidates) == 0 {
				delete(d.pending, k)
				d.logEvent("no_bids_no_capable_agents", map[string]any{"graph_id": graphID, "task_id": taskID})
				d.orchestrator.OnTaskFailed(ctx, graphID, taskID, "no capable agents")
				return
			}
			sort.Strings(candidates)
			winnerAgentID = candidates[0]
			d.logEvent("no_bids_first_match_fallback", map[string]any{"graph_id": graphID, "task_id": taskID, "agent_id": winnerAgentID})
		}

		if pt.req.Risk == fleet.RiskCritical {
			pt.awaiting = true
			pt.approvalWinner = winnerAgentID
			d.logEvent("risk_approval_requested", map[string]any{"graph_id": graphID, "task_id": taskID, "candidate": winnerAgentID})
			d.approver.RequestApproval(ctx, graphID, taskID, winnerAgentID)
			time.AfterFunc(defaultApprovalTimeout, func() {
				d.OnApprovalTimeout(context.Background(), graphID, taskID)
			})
			return
		}

		d.award(ctx, graphID, taskID, winnerAgentID, pt)
	})
}

// award finalizes a task's dispatch: it notifies the winner, notifies
// every other agent that bid on the task that it lost, and tells the
// orchestrator the task is ready to run. pt is the pendingTask being
// resolved, so losing bidders can be read out of pt.bids before the entry
// is deleted.
func (d *Dispatcher) award(ctx context.Context, graphID, taskID, agentID string, pt *pendingTask) {
	delete(d.pending, key(graphID, taskID))
	d.logEvent("task_awarded", map[string]any{"graph_id": graphID, "task_id": taskID, "agent_id": agentID})
	d.orchestrator.OnTaskReadyForDispatch(ctx, graphID, taskID, agentID)
	d.notifier.NotifyTaskAwarded(agentID, graphID, taskID)
	for bidderID := range pt.bids {
		if bidderID == agentID {
			continue
		}
		d.notifier.NotifyTaskBidRejected(bidderID, graphID, taskID)
	}
}

// OnApprovalDecision resolves a pending Critical-risk award.
func (d *Dispatcher) OnApprovalDecision(ctx context.Context, graphID, taskID string, approved bool) {
	d.do(ctx, func(ctx context.Context) {
		k := key(graphID, taskID)
		pt, ok := d.pending[k]
		if !ok || !pt.awaiting {
			return // already timed out or decided
		}
		if !approved {
			delete(d.pending, k)
			d.logEvent("risk_approval_denied", map[string]any{"graph_id": graphID, "task_id": taskID})
			d.orchestrator.OnTaskFailed(ctx, graphID, taskID, "risk approval denied")
			return
		}
		d.award(ctx, graphID, taskID, pt.approvalWinner, pt)
	})
}

// OnApprovalTimeout fails a Critical-risk task if no decision arrived in
// time.
func (d *Dispatcher) OnApprovalTimeout(ctx context.Context, graphID, taskID string) {
	d.do(ctx, func(ctx context.Context) {
		k := key(graphID, taskID)
		pt, ok := d.pending[k]
		if !ok || !pt.awaiting {
			return
		}
		delete(d.pending, k)
		d.logEvent("risk_approval_timed_out", map[string]any{"graph_id": graphID, "task_id": taskID})
		d.orchestrator.OnTaskFailed(ctx, graphID, taskID, "risk approval timed out")
	})
}
