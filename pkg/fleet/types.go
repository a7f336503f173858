// Package fleet defines the wire-level data model shared by every component
// of a warren run: task graphs, bids, artifacts, agents and blackboard
// signals. Types here carry only plain data and Validate methods; behavior
// lives in the internal packages that own each component.
package fleet

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is a task node's position in its status lattice. Once a node
// reaches a terminal status it never transitions again.
type TaskStatus string

const (
	TaskPending            TaskStatus = "pending"
	TaskReady              TaskStatus = "ready"
	TaskDispatched         TaskStatus = "dispatched"
	TaskWaitingForSubtasks TaskStatus = "waiting_for_subtasks"
	TaskSynthesizing       TaskStatus = "synthesizing"
	TaskCompleted          TaskStatus = "completed"
	TaskFailed             TaskStatus = "failed"
	TaskCancelled          TaskStatus = "cancelled"
)

// Terminal reports whether s is one of the three statuses a node never
// leaves.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// RiskLevel gates whether a task requires external approval before award.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskNormal   RiskLevel = "normal"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

func (r RiskLevel) Validate() error {
	switch r {
	case RiskLow, RiskNormal, RiskHigh, RiskCritical, "":
		return nil
	default:
		return fmt.Errorf("invalid risk level: %s", r)
	}
}

// TaskBudget bounds a task's resource consumption and gates critical-risk
// awards on external approval.
type TaskBudget struct {
	Deadline *time.Duration `json:"deadline,omitempty"`
	TokenCap *int           `json:"tokenCap,omitempty"`
	Risk     RiskLevel      `json:"risk,omitempty"`
}

func (b *TaskBudget) Validate() error {
	if b == nil {
		return nil
	}
	if b.TokenCap != nil && *b.TokenCap < 0 {
		return fmt.Errorf("tokenCap must be >= 0")
	}
	return b.Risk.Validate()
}

// TaskNode is one unit of work in a graph.
type TaskNode struct {
	TaskID       string     `json:"taskId"`
	Description  string     `json:"description"`
	Capabilities []string   `json:"capabilities"`
	Budget       *TaskBudget `json:"budget,omitempty"`
	Status       TaskStatus `json:"status"`
	Depth        int        `json:"depth"`

	// AssignedAgentID is set once the dispatcher awards the task and is not
	// cleared afterwards, including on cancellation.
	AssignedAgentID string `json:"assignedAgentId,omitempty"`

	// StopCondition is set on a parent once it enters WaitingForSubtasks.
	StopCondition StopCondition `json:"stopCondition,omitempty"`

	// DecomposedBy records the agent that produced the subplan for this
	// node, so the orchestrator knows who to send SubtasksCompleted to.
	DecomposedBy string `json:"decomposedBy,omitempty"`
}

var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-/]{1,128}$`)

func ValidTaskID(id string) bool {
	return taskIDPattern.MatchString(id)
}

// TaskEdge is a directed dependency: To cannot become Ready until From is
// Completed.
type TaskEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// StopCondition governs how a decomposed parent's siblings behave when one
// of them reaches a terminal status.
type StopCondition string

const (
	StopAllSubtasksComplete StopCondition = "all_subtasks_complete"
	StopFirstSuccess        StopCondition = "first_success"
	StopUserDecision        StopCondition = "user_decision"
)

func (s StopCondition) Validate() error {
	switch s {
	case StopAllSubtasksComplete, StopFirstSuccess, StopUserDecision, "":
		return nil
	default:
		return fmt.Errorf("invalid stop condition: %s", s)
	}
}

// Graph is a DAG of tasks submitted as one unit.
type Graph struct {
	GraphID string      `json:"graphId"`
	Nodes   []*TaskNode `json:"nodes"`
	Edges   []TaskEdge  `json:"edges"`
	Budget  *TaskBudget `json:"budget,omitempty"`
}

// NewGraphID mints a fresh graph identifier.
func NewGraphID() string {
	return uuid.New().String()
}

// Bid is a per-task self-assessment submitted by an agent.
type Bid struct {
	TaskID            string        `json:"taskId"`
	AgentID           string        `json:"agentId"`
	Fitness           float64       `json:"fitness"`
	ActiveTaskCount   int           `json:"activeTaskCount"`
	EstimatedDuration time.Duration `json:"estimatedDuration"`
	EstimatedTokens   int           `json:"estimatedTokens"`
}

func (b Bid) Validate() error {
	if b.Fitness < 0 || b.Fitness > 1 {
		return fmt.Errorf("fitness must be in [0,1], got %f", b.Fitness)
	}
	if b.ActiveTaskCount < 0 {
		return fmt.Errorf("activeTaskCount must be >= 0")
	}
	return nil
}

// SubtaskProposal is one entry in a ProposedSubplan's ordered list.
type SubtaskProposal struct {
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	// DependsOn holds indices into the enclosing ProposedSubplan.Subtasks
	// slice, referencing earlier positions only.
	DependsOn []int       `json:"dependsOn,omitempty"`
	Budget    *TaskBudget `json:"budget,omitempty"`
}

// ProposedSubplan is an agent-driven runtime decomposition of a parent task.
type ProposedSubplan struct {
	ParentTaskID  string            `json:"parentTaskId"`
	Reason        string            `json:"reason"`
	Subtasks      []SubtaskProposal `json:"subtasks"`
	StopCondition StopCondition     `json:"stopCondition,omitempty"`
}

// Validate checks the proposal's internal dependency indices form a DAG
// over the proposal list (earlier-position-only references are
// acyclic by construction, but out-of-range or self/forward references are
// not).
func (p *ProposedSubplan) Validate() error {
	if err := p.StopCondition.Validate(); err != nil {
		return err
	}
	for i, st := range p.Subtasks {
		for _, dep := range st.DependsOn {
			if dep < 0 || dep >= i {
				return fmt.Errorf("subtask %d depends on index %d, which is not an earlier position", i, dep)
			}
		}
	}
	return nil
}

// ValidatorResult records the outcome of a single validator run against an
// artifact.
type ValidatorResult struct {
	Name    string    `json:"name"`
	Passed  bool      `json:"passed"`
	Detail  string    `json:"detail,omitempty"`
	CheckedAt time.Time `json:"checkedAt"`
}

// Provenance records who produced an artifact and from what inputs.
type Provenance struct {
	TaskID          string    `json:"taskId"`
	AgentID         string    `json:"agentId"`
	CreatedAt       time.Time `json:"createdAt"`
	InputArtifactIDs []string `json:"inputArtifactIds,omitempty"`
}

// Artifact is a content-addressable reference to a task's produced output.
type Artifact struct {
	ArtifactID  string            `json:"artifactId"`
	Type        string            `json:"type"`
	Format      string            `json:"format,omitempty"`
	URI         string            `json:"uri"`
	ContentHash string            `json:"contentHash,omitempty"`
	Provenance  Provenance        `json:"provenance"`
	Validators  []ValidatorResult `json:"validators,omitempty"`
}

// AgentVisual is viewport metadata for an agent, opaque to the core.
type AgentVisual struct {
	Label string `json:"label,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

// AgentDescriptor is the fleet-visible view of a running agent: identity,
// capability set, and current load. The runtime driver and working memory
// backing an agent live in the agent process itself (internal/agentcore)
// and are not part of the wire-level descriptor.
type AgentDescriptor struct {
	AgentID         string      `json:"agentId"`
	Capabilities    []string    `json:"capabilities"`
	ActiveTaskCount int         `json:"activeTaskCount"`
	Visual          AgentVisual `json:"visual,omitempty"`
	Capacity        int         `json:"capacity"`
}

// HasAllCapabilities reports whether every element of required is present
// in the agent's capability set.
func (a AgentDescriptor) HasAllCapabilities(required []string) bool {
	set := make(map[string]struct{}, len(a.Capabilities))
	for _, c := range a.Capabilities {
		set[c] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}

// BlackboardSignal is one keyed value published on the blackboard.
type BlackboardSignal struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	PublisherID string    `json:"publisherId,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// GraphResults maps TaskID to its boolean success, used in TaskGraphCompleted.
type GraphResults map[string]bool
