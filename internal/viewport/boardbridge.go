package viewport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dyluth/warren/internal/blackboard"
	"github.com/dyluth/warren/pkg/fleet"
)

// Signal key layout for run state mirrored onto the blackboard. Each key
// holds the most recent value only, so a consumer subscribing mid-run
// still sees current state without replaying the event bus.
const (
	boardPublisherID = "viewport"

	agentActivityPrefix  = "agent:"
	taskStatusPrefix     = "task:"
	graphStatusPrefix    = "graph:"
	agentActivitySuffix  = ":activity"
	agentLifecycleSuffix = ":lifecycle"
)

func AgentActivityKey(agentID string) string {
	return agentActivityPrefix + agentID + agentActivitySuffix
}

func AgentLifecycleKey(agentID string) string {
	return agentActivityPrefix + agentID + agentLifecycleSuffix
}

func TaskStatusKey(graphID, taskID string) string {
	return fmt.Sprintf("%s%s:%s", taskStatusPrefix, graphID, taskID)
}

func GraphStatusKey(graphID string) string {
	return graphStatusPrefix + graphID + ":status"
}

// TaskStatusPrefix is the subscribe prefix matching every task status
// signal, for consumers tracking per-task state across all graphs.
const TaskStatusPrefix = taskStatusPrefix

// TaskSignalValue is the JSON value stored under a task status key.
type TaskSignalValue struct {
	Status  fleet.TaskStatus `json:"status"`
	AgentID string           `json:"agentId,omitempty"`
}

// BoardBridge mirrors viewport notifications onto the in-process
// blackboard as last-value signals. Where BusBridge streams facts to
// external observers, BoardBridge keeps current state queryable (and
// subscribable, with replay of the latest value) for in-process
// consumers like the skill registry's load tracker and the health
// server's /signals listing.
type BoardBridge struct {
	board *blackboard.Board
	ctx   context.Context
}

func NewBoardBridge(ctx context.Context, board *blackboard.Board) *BoardBridge {
	return &BoardBridge{board: board, ctx: ctx}
}

func (b *BoardBridge) publish(key, value string) {
	b.board.Publish(b.ctx, blackboard.Signal{Key: key, Value: value, PublisherID: boardPublisherID})
}

func (b *BoardBridge) PublishAgentSpawned(agentID string, visual fleet.AgentVisual) {
	b.publish(AgentLifecycleKey(agentID), "spawned")
}

func (b *BoardBridge) PublishAgentStateChanged(agentID, activity string) {
	b.publish(AgentActivityKey(agentID), activity)
}

func (b *BoardBridge) PublishAgentDespawned(agentID string) {
	b.publish(AgentLifecycleKey(agentID), "despawned")
}

func (b *BoardBridge) PublishTaskGraphSubmitted(graphID string, nodeCount, edgeCount int) {
	b.publish(GraphStatusKey(graphID), "running")
}

func (b *BoardBridge) PublishTaskNodeStatusChanged(graphID, taskID string, status fleet.TaskStatus, agentID string) {
	raw, err := json.Marshal(TaskSignalValue{Status: status, AgentID: agentID})
	if err != nil {
		return
	}
	b.publish(TaskStatusKey(graphID, taskID), string(raw))
}

func (b *BoardBridge) PublishTaskGraphCompleted(graphID string, results fleet.GraphResults) {
	b.publish(GraphStatusKey(graphID), "completed")
}

func (b *BoardBridge) PublishRuntimeStarted(agentID string) {
	b.publish(AgentLifecycleKey(agentID), "runtime-started")
}

func (b *BoardBridge) PublishRuntimeExited(agentID string, err error) {
	b.publish(AgentLifecycleKey(agentID), "runtime-exited")
}

func (b *BoardBridge) PublishRuntimeOutput(agentID, line string) {
	// per-line output is stream data, not state; the bus carries it
}

// Multi fans every bridge call out to each member in order.
type Multi []Bridge

func (m Multi) PublishAgentSpawned(agentID string, visual fleet.AgentVisual) {
	for _, b := range m {
		b.PublishAgentSpawned(agentID, visual)
	}
}

func (m Multi) PublishAgentStateChanged(agentID, activity string) {
	for _, b := range m {
		b.PublishAgentStateChanged(agentID, activity)
	}
}

func (m Multi) PublishAgentDespawned(agentID string) {
	for _, b := range m {
		b.PublishAgentDespawned(agentID)
	}
}

func (m Multi) PublishTaskGraphSubmitted(graphID string, nodes, edges int) {
	for _, b := range m {
		b.PublishTaskGraphSubmitted(graphID, nodes, edges)
	}
}

func (m Multi) PublishTaskNodeStatusChanged(graphID, taskID string, status fleet.TaskStatus, agentID string) {
	for _, b := range m {
		b.PublishTaskNodeStatusChanged(graphID, taskID, status, agentID)
	}
}

func (m Multi) PublishTaskGraphCompleted(graphID string, results fleet.GraphResults) {
	for _, b := range m {
		b.PublishTaskGraphCompleted(graphID, results)
	}
}

func (m Multi) PublishRuntimeStarted(agentID string) {
	for _, b := range m {
		b.PublishRuntimeStarted(agentID)
	}
}

func (m Multi) PublishRuntimeExited(agentID string, err error) {
	for _, b := range m {
		b.PublishRuntimeExited(agentID, err)
	}
}

func (m Multi) PublishRuntimeOutput(agentID, line string) {
	for _, b := range m {
		b.PublishRuntimeOutput(agentID, line)
	}
}
