package transport

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/warren/internal/dispatcher"
	"github.com/dyluth/warren/internal/taskgraph"
	"github.com/dyluth/warren/pkg/fleet"
)

// AgentLink is the orchestrator process's view of every kit: it publishes
// offers, awards, and synthesis/stop notifications to each agent's own
// control channel, and it drains the shared inbox channel every kit
// publishes bids and completions onto. It satisfies dispatcher.AgentNotifier
// and taskgraph.AgentNotifier.
type AgentLink struct {
	rdb      *redis.Client
	instance string
}

func NewAgentLink(rdb *redis.Client, instance string) *AgentLink {
	return &AgentLink{rdb: rdb, instance: instance}
}

func (l *AgentLink) publish(ctx context.Context, agentID string, msg ControlMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ERROR] transport: failed to marshal control message type=%s: %v", msg.Type, err)
		return
	}
	if err := l.rdb.Publish(ctx, fleet.AgentControlChannel(l.instance, agentID), payload).Err(); err != nil {
		log.Printf("[WARN] transport: failed to publish control message type=%s agent_id=%s: %v", msg.Type, agentID, err)
	}
}

// NotifyTaskOffered satisfies dispatcher.AgentNotifier.
func (l *AgentLink) NotifyTaskOffered(agentID, graphID, taskID, description string, capabilities []string) {
	l.publish(context.Background(), agentID, ControlMessage{
		Type: MsgTaskOffered, GraphID: graphID, TaskID: taskID,
		Description: description, Capabilities: capabilities,
	})
}

// NotifyTaskAwarded satisfies dispatcher.AgentNotifier.
func (l *AgentLink) NotifyTaskAwarded(agentID, graphID, taskID string) {
	l.publish(context.Background(), agentID, ControlMessage{Type: MsgTaskAwarded, GraphID: graphID, TaskID: taskID})
}

// NotifyTaskBidRejected satisfies dispatcher.AgentNotifier. Sent to every
// agent that bid on a task but did not win the award.
func (l *AgentLink) NotifyTaskBidRejected(agentID, graphID, taskID string) {
	l.publish(context.Background(), agentID, ControlMessage{Type: MsgTaskBidRejected, GraphID: graphID, TaskID: taskID})
}

// NotifySubtasksCompleted satisfies taskgraph.AgentNotifier.
func (l *AgentLink) NotifySubtasksCompleted(agentID string, msg taskgraph.SubtasksCompletedMsg) {
	l.publish(context.Background(), agentID, ControlMessage{
		Type: MsgSubtasksCompleted, TaskID: msg.ParentTaskID, Subtasks: msg.Results,
	})
}

// NotifyDecompositionRejected satisfies taskgraph.AgentNotifier.
func (l *AgentLink) NotifyDecompositionRejected(agentID, taskID, reason string) {
	l.publish(context.Background(), agentID, ControlMessage{Type: MsgDecompositionReject, TaskID: taskID, Reason: reason})
}

// NotifyStop satisfies taskgraph.AgentNotifier.
func (l *AgentLink) NotifyStop(agentID, taskID string) {
	l.publish(context.Background(), agentID, ControlMessage{Type: MsgStop, TaskID: taskID})
}

// InboxHandlers routes a decoded InboxMessage back into the
// orchestrator's actors. Any nil handler silently drops matching messages.
type InboxHandlers struct {
	OnBid       func(ctx context.Context, bid fleet.Bid, graphID string)
	OnCompleted func(ctx context.Context, graphID, taskID string, success bool, summary string, artifactIDs []string, subplan *fleet.ProposedSubplan)
	OnFailed    func(ctx context.Context, graphID, taskID, reason string)
}

// ListenInbox subscribes to the shared orchestrator inbox channel and
// routes every message to h until ctx is cancelled or the subscription
// closes.
func (l *AgentLink) ListenInbox(ctx context.Context, h InboxHandlers) error {
	sub := l.rdb.Subscribe(ctx, fleet.OrchestratorInboxChannel(l.instance))
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			l.route(ctx, msg.Payload, h)
		}
	}
}

func (l *AgentLink) route(ctx context.Context, payload string, h InboxHandlers) {
	var in InboxMessage
	if err := json.Unmarshal([]byte(payload), &in); err != nil {
		log.Printf("[WARN] transport: malformed inbox message: %v", err)
		return
	}
	switch in.Type {
	case MsgBid:
		if in.Bid != nil && h.OnBid != nil {
			h.OnBid(ctx, *in.Bid, in.GraphID)
		}
	case MsgTaskCompleted:
		if h.OnCompleted != nil {
			h.OnCompleted(ctx, in.GraphID, in.TaskID, in.Success, in.Summary, in.ArtifactIDs, in.Subplan)
		}
	case MsgTaskFailed:
		if h.OnFailed != nil {
			h.OnFailed(ctx, in.GraphID, in.TaskID, in.Reason)
		}
	default:
		log.Printf("[WARN] transport: unknown inbox message type=%s", in.Type)
	}
}

var (
	_ dispatcher.AgentNotifier = (*AgentLink)(nil)
	_ taskgraph.AgentNotifier  = (*AgentLink)(nil)
)
