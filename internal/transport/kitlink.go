package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/warren/internal/taskgraph"
	"github.com/dyluth/warren/pkg/fleet"
)

// KitLink is a single kit process's transport adapter: it publishes this
// agent's bids, completions, and failures onto the shared orchestrator
// inbox, and delivers control messages addressed to this agent to a
// ControlHandler (internal/agentcore.Engine).
type KitLink struct {
	rdb      *redis.Client
	instance string
	agentID  string
}

func NewKitLink(rdb *redis.Client, instance, agentID string) *KitLink {
	return &KitLink{rdb: rdb, instance: instance, agentID: agentID}
}

func (l *KitLink) publish(ctx context.Context, msg InboxMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal inbox message: %w", err)
	}
	if err := l.rdb.Publish(ctx, fleet.OrchestratorInboxChannel(l.instance), payload).Err(); err != nil {
		return fmt.Errorf("publish inbox message: %w", err)
	}
	return nil
}

// SubmitBid satisfies internal/agentcore's BidSubmitter interface.
func (l *KitLink) SubmitBid(ctx context.Context, graphID string, bid fleet.Bid) error {
	return l.publish(ctx, InboxMessage{Type: MsgBid, GraphID: graphID, TaskID: bid.TaskID, Bid: &bid})
}

// SubmitCompletion satisfies internal/agentcore's CompletionSubmitter interface.
func (l *KitLink) SubmitCompletion(ctx context.Context, graphID, taskID string, success bool, summary string, artifactIDs []string, subplan *fleet.ProposedSubplan) error {
	return l.publish(ctx, InboxMessage{
		Type: MsgTaskCompleted, GraphID: graphID, TaskID: taskID,
		Success: success, Summary: summary, ArtifactIDs: artifactIDs, Subplan: subplan,
	})
}

// SubmitFailure satisfies internal/agentcore's CompletionSubmitter interface.
func (l *KitLink) SubmitFailure(ctx context.Context, graphID, taskID, reason string) error {
	return l.publish(ctx, InboxMessage{Type: MsgTaskFailed, GraphID: graphID, TaskID: taskID, Reason: reason})
}

// ControlHandler receives control messages addressed to this kit's agent.
// Implemented by internal/agentcore.Engine.
type ControlHandler interface {
	OnTaskOffered(ctx context.Context, graphID, taskID, description string, capabilities []string)
	OnTaskAwarded(ctx context.Context, graphID, taskID string)
	OnBidRejected(ctx context.Context, graphID, taskID string)
	OnSubtasksCompleted(ctx context.Context, taskID string, results []taskgraph.SubtaskResult)
	OnDecompositionRejected(ctx context.Context, taskID, reason string)
	OnStop(ctx context.Context, taskID string)
}

// Listen subscribes to this agent's own control channel and routes every
// message to h until ctx is cancelled or the subscription closes.
func (l *KitLink) Listen(ctx context.Context, h ControlHandler) error {
	sub := l.rdb.Subscribe(ctx, fleet.AgentControlChannel(l.instance, l.agentID))
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

func (l *KitLink) route(ctx context.Context, payload string, h ControlHandler) {
	var cm ControlMessage
	if err := json.Unmarshal([]byte(payload), &cm); err != nil {
		log.Printf("[WARN] transport: malformed control message: %v", err)
		return
	}
	switch cm.Type {
	case MsgTaskOffered:
		h.OnTaskOffered(ctx, cm.GraphID, cm.TaskID, cm.Description, cm.Capabilities)
	case MsgTaskAwarded:
		h.OnTaskAwarded(ctx, cm.GraphID, cm.TaskID)
	case MsgTaskBidRejected:
		h.OnBidRejected(ctx, cm.GraphID, cm.TaskID)
	case MsgSubtasksCompleted:
		h.OnSubtasksCompleted(ctx, cm.TaskID, cm.Subtasks)
	case MsgDecompositionReject:
		h.OnDecompositionRejected(ctx, cm.TaskID, cm.Reason)
	case MsgStop:
		h.OnStop(ctx, cm.TaskID)
	default:
		log.Printf("[WARN] transport: unknown control message type=%s", cm.Type)
	}
}
