// Package agentcore implements the per-agent
// state machine that bids for offered tasks, retrieves prior
// context from the knowledge sidecar, drives a runtime subprocess through
// the protocol adapter, and reports completion back to the orchestrator.
//
// Like every other actor in this codebase it is single-threaded over its
// own inbox (bidding decisions, stop signals, and bookkeeping are all
// serialized there); the one deliberate exception is that an awarded
// task's retrieval-and-execution pipeline runs on its own goroutine so a
// long-running runtime invocation never blocks the mailbox from handling
// a concurrent offer or a stop signal for a different task.
package agentcore

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/dyluth/warren/internal/protocol"
	"github.com/dyluth/warren/internal/runtime"
	"github.com/dyluth/warren/internal/sidecar"
	"github.com/dyluth/warren/internal/taskgraph"
	"github.com/dyluth/warren/internal/transport"
	"github.com/dyluth/warren/internal/viewport"
	"github.com/dyluth/warren/pkg/fleet"
)

// BidSubmitter is the agent's outbound path for bids, satisfied by
// internal/transport.KitLink.
type BidSubmitter interface {
	SubmitBid(ctx context.Context, graphID string, bid fleet.Bid) error
}

// CompletionSubmitter is the agent's outbound path for completions and
// failures, satisfied by internal/transport.KitLink.
type CompletionSubmitter interface {
	SubmitCompletion(ctx context.Context, graphID, taskID string, success bool, summary string, artifactIDs []string, subplan *fleet.ProposedSubplan) error
	SubmitFailure(ctx context.Context, graphID, taskID, reason string) error
}

// ArtifactRegistrar is where declared artifacts are registered, satisfied
// by pkg/fleet.ArtifactRegistry.
type ArtifactRegistrar interface {
	Register(ctx context.Context, art fleet.Artifact) (string, error)
}

// BiddingConfig configures how an agent evaluates task offers.
type BiddingConfig struct {
	Capacity          int
	AffinityThreshold float64
	DefaultDuration   time.Duration
	// BidScript, if set, names an external command that overrides the
	// statically computed fitness with its own [0,1] score.
	BidScript []string
}

type taskState struct {
	graphID string
	cancel  context.CancelFunc
}

// Engine is the single-threaded mailbox actor at the heart of a kit.
type Engine struct {
	agentID      string
	capabilities []string
	bidding      BiddingConfig

	driver     runtime.Driver
	adapter    *protocol.Adapter
	sidecar    *sidecar.Client
	bids       BidSubmitter
	completion CompletionSubmitter
	artifacts  ArtifactRegistrar
	bridge     viewport.Bridge
	classify   func(string) string

	// historicalDurations accumulates successful task durations per
	// canonicalized capability set; estimatedDuration takes the median.
	historicalDurations map[string][]time.Duration

	// offered caches each outstanding offer's description, keyed by
	// taskID: the TaskAwarded message that may follow only carries
	// graphId/taskId, so the description observed at offer time is what
	// OnTaskAwarded composes the execution prompt from.
	offered map[string]string

	// working is the per-task scratchpad: facts an agent sets aside
	// during one phase of a task that a later phase needs, like the
	// original description and first-phase summary a decomposed task's
	// synthesis prompt is rebuilt from. Cleared when the task reaches a
	// terminal outcome.
	working map[string]map[string]string

	inbox  chan func(ctx context.Context)
	active map[string]*taskState
}

func NewEngine(
	agentID string,
	capabilities []string,
	bidding BiddingConfig,
	driver runtime.Driver,
	adapter *protocol.Adapter,
	sidecarClient *sidecar.Client,
	bids BidSubmitter,
	completion CompletionSubmitter,
	artifacts ArtifactRegistrar,
	bridge viewport.Bridge,
	classify func(string) string,
) *Engine {
	if bridge == nil {
		bridge = viewport.Noop{}
	}
	if classify == nil {
		classify = func(string) string { return "Idle" }
	}
	if bidding.AffinityThreshold == 0 {
		bidding.AffinityThreshold = 1.0
	}
	if bidding.DefaultDuration == 0 {
		bidding.DefaultDuration = 30 * time.Second
	}
	return &Engine{
		agentID:             agentID,
		capabilities:        capabilities,
		bidding:             bidding,
		driver:              driver,
		adapter:             adapter,
		sidecar:             sidecarClient,
		bids:                bids,
		completion:          completion,
		artifacts:           artifacts,
		bridge:              bridge,
		classify:            classify,
		historicalDurations: map[string][]time.Duration{},
		offered:             map[string]string{},
		working:             map[string]map[string]string{},
		inbox:               make(chan func(ctx context.Context), 64),
		active:              map[string]*taskState{},
	}
}

// Run processes the inbox until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	log.Printf("[INFO] agentcore starting agent_id=%s", e.agentID)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] agentcore shutting down agent_id=%s", e.agentID)
			for _, t := range e.active {
				t.cancel()
			}
			return
		case action := <-e.inbox:
			action(ctx)
		}
	}
}

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
		"component":  "agentcore",
		"agent_id":   e.agentID,
		"event_type": eventType,
	}
	for k, v := range fields {
		entry[k] = v
	}
	line, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[ERROR] agentcore: failed to marshal log event: %v", err)
		return
	}
	log.Println(string(line))
}

func (e *Engine) activeTaskCount() int {
	return len(e.active)
}

// remember writes one entry into taskID's working-memory scratchpad.
// Safe from any goroutine: the write goes through the actor inbox.
func (e *Engine) remember(ctx context.Context, taskID, key, value string) {
	e.do(ctx, func(ctx context.Context) {
		m, ok := e.working[taskID]
		if !ok {
			m = map[string]string{}
			e.working[taskID] = m
		}
		m[key] = value
	})
}

// recall reads one scratchpad entry, empty if never remembered.
func (e *Engine) recall(ctx context.Context, taskID, key string) string {
	var out string
	e.do(ctx, func(ctx context.Context) {
		out = e.working[taskID][key]
	})
	return out
}

// OnTaskOffered satisfies transport.ControlHandler: evaluates a bid and
// submits it if eligible. Never blocks - bid evaluation is pure
// computation plus, at most, a short-lived bid-script subprocess.
func (e *Engine) OnTaskOffered(ctx context.Context, graphID, taskID, description string, capabilities []string) {
	e.do(ctx, func(ctx context.Context) {
		e.offered[taskID] = description

		bid, ok := e.evaluateBid(ctx, taskID, description, capabilities)
		if !ok {
			return
		}
		if err := e.bids.SubmitBid(ctx, graphID, bid); err != nil {
			log.Printf("[WARN] agentcore: failed to submit bid task_id=%s: %v", taskID, err)
			return
		}
		e.logEvent("bid_submitted", map[string]any{"graph_id": graphID, "task_id": taskID, "fitness": bid.Fitness})
	})
}

// OnTaskAwarded satisfies transport.ControlHandler: spawns the
// retrieval-and-execution pipeline for taskID on its own goroutine, the
// only asynchronous suspension point, so the mailbox stays responsive.
func (e *Engine) OnTaskAwarded(ctx context.Context, graphID, taskID string) {
	var description string
	e.do(ctx, func(ctx context.Context) {
		description = e.offered[taskID]
		delete(e.offered, taskID)
	})

	taskCtx, cancel := context.WithCancel(context.Background())
	e.do(ctx, func(ctx context.Context) {
		e.active[taskID] = &taskState{graphID: graphID, cancel: cancel}
		e.working[taskID] = map[string]string{"description": description, "graphId": graphID}
	})
	e.logEvent("task_assigned", map[string]any{"graph_id": graphID, "task_id": taskID})

	go e.executeTask(taskCtx, graphID, taskID, description)
}

// OnBidRejected satisfies transport.ControlHandler: the dispatcher awarded
// this task to a different agent. Clears the bookkeeping OnTaskOffered
// left behind so a task this agent never wins doesn't leak an entry in
// e.offered forever.
func (e *Engine) OnBidRejected(ctx context.Context, graphID, taskID string) {
	e.do(ctx, func(ctx context.Context) {
		delete(e.offered, taskID)
	})
	e.logEvent("bid_rejected", map[string]any{"graph_id": graphID, "task_id": taskID})
}

// OnSubtasksCompleted satisfies transport.ControlHandler: re-prompts the
// runtime with the collated child results and emits a second
// TaskCompleted carrying the synthesized result.
func (e *Engine) OnSubtasksCompleted(ctx context.Context, taskID string, results []taskgraph.SubtaskResult) {
	// The decomposing completion already cleared this task's active
	// entry, so the graph id comes from the scratchpad kept at award
	// time for exactly this hand-back.
	var graphID string
	e.do(ctx, func(ctx context.Context) {
		if t, ok := e.active[taskID]; ok {
			graphID = t.graphID
		} else {
			graphID = e.working[taskID]["graphId"]
		}
	})
	if graphID == "" {
		log.Printf("[WARN] agentcore: SubtasksCompleted for unknown task_id=%s", taskID)
		return
	}

	taskCtx, cancel := context.WithCancel(context.Background())
	e.do(ctx, func(ctx context.Context) {
		if t, ok := e.active[taskID]; ok {
			t.cancel()
		}
		e.active[taskID] = &taskState{graphID: graphID, cancel: cancel}
	})
	// The scratchpad carries the first phase's context into synthesis:
	// the original description from award time and the summary the agent
	// produced when it decomposed.
	original := e.recall(ctx, taskID, "description")
	phaseOne := e.recall(ctx, taskID, "summary")
	go e.executeTask(taskCtx, graphID, taskID, synthesisPrompt(original, phaseOne, results))
}

// OnDecompositionRejected satisfies transport.ControlHandler: the
// orchestrator rejected a proposed subplan (depth/fan-out/total-node cap
// exceeded). The agent cannot retry automatically - it has no mechanism
// to revise a subplan it already emitted - so this is logged for
// operator visibility only.
func (e *Engine) OnDecompositionRejected(ctx context.Context, taskID, reason string) {
	e.logEvent("decomposition_rejected", map[string]any{"task_id": taskID, "reason": reason})
}

// OnStop satisfies transport.ControlHandler: cancels any in-flight
// execution for taskID, which propagates to the runtime driver's
// cancellation token.
func (e *Engine) OnStop(ctx context.Context, taskID string) {
	e.do(ctx, func(ctx context.Context) {
		if t, ok := e.active[taskID]; ok {
			t.cancel()
			delete(e.active, taskID)
		}
		delete(e.working, taskID)
	})
	e.logEvent("task_stopped", map[string]any{"task_id": taskID})
}

var _ transport.ControlHandler = (*Engine)(nil)

func synthesisPrompt(original, phaseOne string, results []taskgraph.SubtaskResult) string {
	var b []byte
	if original != "" {
		b = append(b, []byte("Original task: "+original+"\n")...)
	}
	if phaseOne != "" {
		b = append(b, []byte("Decomposition notes: "+phaseOne+"\n")...)
	}
	b = append(b, "Synthesize the following subtask results into a final answer:\n"...)
	for _, r := range results {
		status := "failed"
		if r.Success {
			status = "succeeded"
		}
		b = append(b, []byte(r.TaskID+" ("+status+"): "+r.Summary+"\n")...)
	}
	return string(b)
}
