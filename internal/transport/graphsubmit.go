package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dyluth/warren/internal/taskgraph"
	"github.com/dyluth/warren/pkg/fleet"
)

// Graph-submission message types, published request/reply style between a
// warren CLI process and the orchestrator's taskgraph engine. Submit is
// synchronous - the caller gets Accepted or Rejected back -
// so this is the one transport round trip modeled as a
// request correlated to its own reply channel rather than a fire-and-forget
// control or inbox message.
const (
	MsgSubmitGraph = "SubmitGraph"
)

// SubmitGraphRequest is published on the shared submit channel.
type SubmitGraphRequest struct {
	Type      string       `json:"type"`
	RequestID string       `json:"requestId"`
	Graph     *fleet.Graph `json:"graph"`
}

// SubmitGraphReply is published back on a reply channel keyed by RequestID.
type SubmitGraphReply struct {
	RequestID string `json:"requestId"`
	Accepted  bool   `json:"accepted"`
	GraphID   string `json:"graphId"`
	NodeCount int    `json:"nodeCount,omitempty"`
	EdgeCount int    `json:"edgeCount,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// GraphSubmitter is satisfied by taskgraph.Engine.
type GraphSubmitter interface {
	Submit(ctx context.Context, g *fleet.Graph) taskgraph.SubmitResult
}

// GraphSubmitListener is the orchestrator-side adapter: it subscribes to
// the shared submit channel, hands each request to the engine, and
// replies on that request's own channel so concurrent submitters from
// separate CLI invocations never cross wires.
type GraphSubmitListener struct {
	rdb      *redis.Client
	instance string
	engine   GraphSubmitter
}

func NewGraphSubmitListener(rdb *redis.Client, instance string, engine GraphSubmitter) *GraphSubmitListener {
	return &GraphSubmitListener{rdb: rdb, instance: instance, engine: engine}
}

// Listen processes submit requests until ctx is cancelled. Each request is
// handled on its own goroutine so a slow reply publish never blocks
// subsequent submissions from other CLI processes.
func (l *GraphSubmitListener) Listen(ctx context.Context) error {
	sub := l.rdb.Subscribe(ctx, fleet.GraphSubmitChannel(l.instance))
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
			var req SubmitGraphRequest
			if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
				log.Printf("[WARN] transport: malformed graph submit request: %v", err)
				continue
			}
			go l.handle(ctx, req)
		}
	}
}

func (l *GraphSubmitListener) handle(ctx context.Context, req SubmitGraphRequest) {
	result := l.engine.Submit(ctx, req.Graph)
	reply := SubmitGraphReply{
		RequestID: req.RequestID,
		Accepted:  result.Accepted,
		GraphID:   result.GraphID,
		NodeCount: result.NodeCount,
		EdgeCount: result.EdgeCount,
		Reason:    result.Reason,
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		log.Printf("[ERROR] transport: failed to marshal submit reply: %v", err)
		return
	}
	if err := l.rdb.Publish(ctx, fleet.GraphSubmitReplyChannel(l.instance, req.RequestID), payload).Err(); err != nil {
		log.Printf("[WARN] transport: failed to publish submit reply: %v", err)
	}
}

// GraphClient is the CLI-side caller used by `warren submit`.
type GraphClient struct {
	rdb      *redis.Client
	instance string
}

func NewGraphClient(rdb *redis.Client, instance string) *GraphClient {
	return &GraphClient{rdb: rdb, instance: instance}
}

// SubmitGraph publishes g and blocks for the orchestrator's synchronous
// Accepted/Rejected reply, or returns an error if none arrives within
// timeout. The reply subscription is established before the request is
// published so the response can never be missed by a race.
func (c *GraphClient) SubmitGraph(ctx context.Context, g *fleet.Graph, timeout time.Duration) (SubmitGraphReply, error) {
	requestID := uuid.New().String()
	replyChannel := fleet.GraphSubmitReplyChannel(c.instance, requestID)

	sub := c.rdb.Subscribe(ctx, replyChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return SubmitGraphReply{}, fmt.Errorf("failed to subscribe to reply channel: %w", err)
	}
	ch := sub.Channel()

	payload, err := json.Marshal(SubmitGraphRequest{Type: MsgSubmitGraph, RequestID: requestID, Graph: g})
	if err != nil {
		return SubmitGraphReply{}, fmt.Errorf("failed to marshal submit request: %w", err)
	}
	if err := c.rdb.Publish(ctx, fleet.GraphSubmitChannel(c.instance), payload).Err(); err != nil {
		return SubmitGraphReply{}, fmt.Errorf("failed to publish submit request: %w", err)
	}

	timeoutCh := time.After(timeout)
	select {
	case <-ctx.Done():
		return SubmitGraphReply{}, ctx.Err()
	case <-timeoutCh:
		return SubmitGraphReply{}, fmt.Errorf("timed out waiting for orchestrator to accept graph")
	case msg, ok := <-ch:
		if !ok {
			return SubmitGraphReply{}, fmt.Errorf("reply channel closed before a response arrived")
		}
		var reply SubmitGraphReply
		if err := json.Unmarshal([]byte(msg.Payload), &reply); err != nil {
			return SubmitGraphReply{}, fmt.Errorf("malformed submit reply: %w", err)
		}
		return reply, nil
	}
}
