package viewport

import (
	"context"
	"encoding/json"
	"log"

	"github.com/dyluth/warren/pkg/fleet"
)

// BusBridge publishes viewport notifications onto the external event bus
// so `warren watch` (or any other outside observer) can render a run
// live. It never returns an error to its caller - no bridge method may
// throw back into the core - so publish failures are logged and
// swallowed.
type BusBridge struct {
	bus *fleet.Bus
	ctx context.Context
}

func NewBusBridge(ctx context.Context, bus *fleet.Bus) *BusBridge {
	return &BusBridge{bus: bus, ctx: ctx}
}

func (b *BusBridge) publish(evt fleet.Event) {
	if err := b.bus.Publish(b.ctx, evt); err != nil {
		log.Printf("[WARN] viewport: failed to publish event type=%s: %v", evt.Type, err)
	}
}

func detail(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

func (b *BusBridge) PublishAgentSpawned(agentID string, visual fleet.AgentVisual) {
	b.publish(fleet.Event{Type: "AgentSpawned", AgentID: agentID, Detail: detail(visual)})
}

func (b *BusBridge) PublishAgentStateChanged(agentID, activity string) {
	b.publish(fleet.Event{Type: "AgentStateChanged", AgentID: agentID, Detail: detail(map[string]string{"activity": activity})})
}

func (b *BusBridge) PublishAgentDespawned(agentID string) {
	b.publish(fleet.Event{Type: "AgentDespawned", AgentID: agentID})
}

func (b *BusBridge) PublishTaskGraphSubmitted(graphID string, nodeCount, edgeCount int) {
	b.publish(fleet.Event{Type: "TaskGraphSubmitted", GraphID: graphID, Detail: detail(map[string]int{"nodes": nodeCount, "edges": edgeCount})})
}

func (b *BusBridge) PublishTaskNodeStatusChanged(graphID, taskID string, status fleet.TaskStatus, agentID string) {
	b.publish(fleet.Event{Type: "TaskNodeStatusChanged", GraphID: graphID, TaskID: taskID, AgentID: agentID, Detail: detail(map[string]string{"status": string(status)})})
}

func (b *BusBridge) PublishTaskGraphCompleted(graphID string, results fleet.GraphResults) {
	b.publish(fleet.Event{Type: "TaskGraphCompleted", GraphID: graphID, Detail: detail(results)})
}

func (b *BusBridge) PublishRuntimeStarted(agentID string) {
	b.publish(fleet.Event{Type: "RuntimeStarted", AgentID: agentID})
}

func (b *BusBridge) PublishRuntimeExited(agentID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	b.publish(fleet.Event{Type: "RuntimeExited", AgentID: agentID, Detail: detail(map[string]string{"error": msg})})
}

func (b *BusBridge) PublishRuntimeOutput(agentID, line string) {
	b.publish(fleet.Event{Type: "RuntimeOutput", AgentID: agentID, Detail: detail(map[string]string{"line": line})})
}
