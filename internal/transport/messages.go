// Package transport bridges the single-process orchestrator (taskgraph
// engine, dispatcher, skill registry) to the one-kit-process-per-agent
// topology over Redis pub/sub. Cross-actor communication is exclusively
// by messages, and messages from one actor to another must arrive in
// send order; a per-recipient Redis channel gives that ordering for the
// orchestrator-to-kit direction, and the shared orchestrator inbox
// channel gives it for the many-kits-to-one-orchestrator direction.
package transport

import (
	"github.com/dyluth/warren/internal/taskgraph"
	"github.com/dyluth/warren/pkg/fleet"
)

// Control message types published on an agent's own control channel
// (fleet.AgentControlChannel), orchestrator → single agent.
const (
	MsgTaskOffered         = "TaskOffered"
	MsgTaskAwarded         = "TaskAwarded"
	MsgTaskBidRejected     = "TaskBidRejected"
	MsgSubtasksCompleted   = "SubtasksCompleted"
	MsgDecompositionReject = "DecompositionRejected"
	MsgStop                = "Stop"
)

// ControlMessage is the tagged envelope for every orchestrator → agent
// control message. Only the fields relevant to Type are populated.
type ControlMessage struct {
	Type         string                    `json:"type"`
	GraphID      string                    `json:"graphId,omitempty"`
	TaskID       string                    `json:"taskId,omitempty"`
	Description  string                    `json:"description,omitempty"`
	Capabilities []string                  `json:"capabilities,omitempty"`
	Reason       string                    `json:"reason,omitempty"`
	Subtasks     []taskgraph.SubtaskResult `json:"subtasks,omitempty"`
}

// Inbox message types published by every kit onto the shared
// orchestrator inbox channel (fleet.OrchestratorInboxChannel), many
// agents → orchestrator.
const (
	MsgBid           = "Bid"
	MsgTaskCompleted = "TaskCompleted"
	MsgTaskFailed    = "TaskFailed"
)

// InboxMessage is the tagged envelope for every agent → orchestrator
// message. Only the fields relevant to Type are populated.
type InboxMessage struct {
	Type        string                 `json:"type"`
	GraphID     string                 `json:"graphId,omitempty"`
	TaskID      string                 `json:"taskId,omitempty"`
	Bid         *fleet.Bid             `json:"bid,omitempty"`
	Success     bool                   `json:"success,omitempty"`
	Summary     string                 `json:"summary,omitempty"`
	ArtifactIDs []string               `json:"artifactIds,omitempty"`
	Subplan     *fleet.ProposedSubplan `json:"subplan,omitempty"`
	Reason      string                 `json:"reason,omitempty"`
}
