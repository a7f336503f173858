// Package taskgraph implements the task-graph orchestrator:
// DAG validation, ready-set scheduling, decomposition ingestion, synthesis
// triggering, and cancellation propagation.
package taskgraph

import (
	"fmt"

	"github.com/dyluth/warren/pkg/fleet"
)

// graphState is the orchestrator's exclusive, mutable view of one
// submitted graph. Only this package ever mutates it.
type graphState struct {
	graphID string
	budget  *fleet.TaskBudget

	nodes    map[string]*fleet.TaskNode
	order    []string // original submission order, for deterministic iteration
	outEdges map[string][]string
	inEdges  map[string][]string
	indegree map[string]int

	// siblings maps a WaitingForSubtasks parent to its subtask ids, in
	// the order they were inserted, for stop-condition evaluation.
	siblings map[string][]string

	// parentOf is the reverse of siblings: a subtask id maps back to the
	// parent that decomposed into it.
	parentOf map[string]string

	deadlineFired bool
	completed     bool
}

func newGraphState(graphID string, budget *fleet.TaskBudget) *graphState {
	return &graphState{
		graphID:  graphID,
		budget:   budget,
		nodes:    map[string]*fleet.TaskNode{},
		outEdges: map[string][]string{},
		inEdges:  map[string][]string{},
		indegree: map[string]int{},
		siblings: map[string][]string{},
		parentOf: map[string]string{},
	}
}

// buildGraphState validates a submitted graph and constructs its internal
// representation: duplicate ids, then cycle detection; unknown edge
// endpoints are rejected outright rather than silently dropped.
func buildGraphState(g *fleet.Graph) (*graphState, error) {
	gs := newGraphState(g.GraphID, g.Budget)

	for _, n := range g.Nodes {
		if !fleet.ValidTaskID(n.TaskID) {
			return nil, fmt.Errorf("invalid task id: %q", n.TaskID)
		}
		if _, exists := gs.nodes[n.TaskID]; exists {
			return nil, fmt.Errorf("duplicate id: %s", n.TaskID)
		}
		cp := *n
		cp.Status = fleet.TaskPending
		cp.Depth = 0
		gs.nodes[n.TaskID] = &cp
		gs.order = append(gs.order, n.TaskID)
		gs.indegree[n.TaskID] = 0
	}

	for _, e := range g.Edges {
		if _, ok := gs.nodes[e.From]; !ok {
			return nil, fmt.Errorf("edge references unknown task id: %s", e.From)
		}
		if _, ok := gs.nodes[e.To]; !ok {
			return nil, fmt.Errorf("edge references unknown task id: %s", e.To)
		}
		gs.outEdges[e.From] = append(gs.outEdges[e.From], e.To)
		gs.inEdges[e.To] = append(gs.inEdges[e.To], e.From)
		gs.indegree[e.To]++
	}

	if cyc := gs.findCycle(); cyc {
		return nil, fmt.Errorf("cycle detected")
	}

	for id, node := range gs.nodes {
		if gs.indegree[id] == 0 {
			node.Status = fleet.TaskReady
		}
	}

	return gs, nil
}

// ValidateGraph runs the same structural checks Submit applies (duplicate
// ids, dangling edge endpoints, cycles) without constructing a live engine
// or touching Redis. Used by `warren validate` to check a graph file
// offline before `warren submit` hands it to a running instance.
func ValidateGraph(g *fleet.Graph) error {
	_, err := buildGraphState(g)
	return err
}

// findCycle runs Kahn's algorithm over a copy of the indegree map; if
// fewer nodes than exist are ever consumed, a cycle exists.
func (gs *graphState) findCycle() bool {
	indeg := make(map[string]int, len(gs.indegree))
	for k, v := range gs.indegree {
		indeg[k] = v
	}
	var queue []string
	for _, id := range gs.order {
		if indeg[id] == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range gs.outEdges[id] {
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	return visited != len(gs.nodes)
}

// readyNodes returns every node currently in TaskReady status, in
// submission order.
func (gs *graphState) readyNodes() []*fleet.TaskNode {
	var ready []*fleet.TaskNode
	for _, id := range gs.order {
		n := gs.nodes[id]
		if n.Status == fleet.TaskReady {
			ready = append(ready, n)
		}
	}
	return ready
}

// promoteReadyDependents marks any Pending node whose every dependency is
// now Completed as Ready.
func (gs *graphState) promoteReadyDependents(completedTaskID string) []*fleet.TaskNode {
	var promoted []*fleet.TaskNode
	for _, dependent := range gs.outEdges[completedTaskID] {
		n, ok := gs.nodes[dependent]
		if !ok || n.Status != fleet.TaskPending {
			continue
		}
		if gs.allDepsCompleted(dependent) {
			n.Status = fleet.TaskReady
			promoted = append(promoted, n)
		}
	}
	return promoted
}

func (gs *graphState) allDepsCompleted(taskID string) bool {
	for _, dep := range gs.inEdges[taskID] {
		if gs.nodes[dep].Status != fleet.TaskCompleted {
			return false
		}
	}
	return true
}

// isTerminal reports whether every node in the graph holds a terminal
// status.
func (gs *graphState) isTerminal() bool {
	for _, id := range gs.order {
		if !gs.nodes[id].Status.Terminal() {
			return false
		}
	}
	return true
}

// results computes the TaskId -> success map for TaskGraphCompleted.
func (gs *graphState) results() fleet.GraphResults {
	out := make(fleet.GraphResults, len(gs.order))
	for _, id := range gs.order {
		out[id] = gs.nodes[id].Status == fleet.TaskCompleted
	}
	return out
}

// descendants performs the breadth-first outgoing-edge traversal
// cancelDependents needs, returning every reachable node id excluding
// rootTaskID itself.
func (gs *graphState) descendants(rootTaskID string) []string {
	seen := map[string]bool{rootTaskID: true}
	queue := append([]string{}, gs.outEdges[rootTaskID]...)
	var out []string
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		queue = append(queue, gs.outEdges[id]...)
	}
	return out
}
