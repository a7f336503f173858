package transport

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/warren/internal/dispatcher"
	"github.com/dyluth/warren/pkg/fleet"
)

// ApprovalRequest is published on the shared risk-approval channel when a
// Critical-risk award needs external sign-off.
type ApprovalRequest struct {
	Type        string `json:"type"`
	GraphID     string `json:"graphId"`
	TaskID      string `json:"taskId"`
	CandidateID string `json:"candidateAgentId"`
}

// ApprovalDecision is published back on the same channel by whatever
// approves or denies the request.
type ApprovalDecision struct {
	Type    string `json:"type"` // "RiskApproved" or "RiskDenied"
	GraphID string `json:"graphId"`
	TaskID  string `json:"taskId"`
}

// RedisApprover implements dispatcher.Approver over the shared approval
// channel. It is the dispatcher's only input for approval decisions, so a
// decision published anywhere else can never reach the dispatcher - a
// spoofed approval from another source is rejected structurally rather
// than by authenticating the sender.
type RedisApprover struct {
	rdb        *redis.Client
	instance   string
	dispatcher *dispatcher.Dispatcher
}

// NewRedisApprover constructs an approver with no dispatcher wired yet.
// Dispatcher construction itself takes an Approver, so the two have a
// construction cycle; call SetDispatcher once the dispatcher exists,
// before Listen is started.
func NewRedisApprover(rdb *redis.Client, instance string, d *dispatcher.Dispatcher) *RedisApprover {
	return &RedisApprover{rdb: rdb, instance: instance, dispatcher: d}
}

// SetDispatcher wires the dispatcher a Listen loop reports decisions
// back to, breaking the approver/dispatcher construction cycle.
func (a *RedisApprover) SetDispatcher(d *dispatcher.Dispatcher) {
	a.dispatcher = d
}

// RequestApproval satisfies dispatcher.Approver.
func (a *RedisApprover) RequestApproval(ctx context.Context, graphID, taskID, candidateAgentID string) {
	payload, err := json.Marshal(ApprovalRequest{
		Type: "RiskApprovalRequired", GraphID: graphID, TaskID: taskID, CandidateID: candidateAgentID,
	})
	if err != nil {
		log.Printf("[ERROR] transport: failed to marshal approval request: %v", err)
		return
	}
	if err := a.rdb.Publish(ctx, fleet.ApprovalChannel(a.instance), payload).Err(); err != nil {
		log.Printf("[WARN] transport: failed to publish approval request: %v", err)
	}
}

// Listen subscribes to the approval channel and forwards decisions to the
// dispatcher until ctx is cancelled.
func (a *RedisApprover) Listen(ctx context.Context) error {
	sub := a.rdb.Subscribe(ctx, fleet.ApprovalChannel(a.instance))
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
			var dec ApprovalDecision
			if err := json.Unmarshal([]byte(msg.Payload), &dec); err != nil {
				log.Printf("[WARN] transport: malformed approval decision: %v", err)
				continue
			}
			switch dec.Type {
			case "RiskApproved":
				a.dispatcher.OnApprovalDecision(ctx, dec.GraphID, dec.TaskID, true)
			case "RiskDenied":
				a.dispatcher.OnApprovalDecision(ctx, dec.GraphID, dec.TaskID, false)
			case "RiskApprovalRequired":
				// our own outbound request echoing back on the shared channel
			default:
				log.Printf("[WARN] transport: unknown approval decision type=%s", dec.Type)
			}
		}
	}
}

var _ dispatcher.Approver = (*RedisApprover)(nil)
