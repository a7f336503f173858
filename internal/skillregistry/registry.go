// Package skillregistry implements the capability index the dispatcher
// queries to find agents worth offering a task to. It is a single-
// threaded mailbox actor: agents register/deregister their capability
// sets and activity count as they spawn, despawn, and take on work.
package skillregistry

import (
	"context"
	"log"

	"github.com/dyluth/warren/pkg/fleet"
)

type agentEntry struct {
	capabilities map[string]bool
	activeTasks  int
}

// Registry tracks which agents can attempt which capabilities.
type Registry struct {
	instance string
	inbox    chan func()
	agents   map[string]*agentEntry
}

func NewRegistry(instance string) *Registry {
	return &Registry{
		instance: instance,
		inbox:    make(chan func(), 64),
		agents:   map[string]*agentEntry{},
	}
}

// QueueDepth reports how many pending actions are waiting in the inbox.
func (r *Registry) QueueDepth() int {
	return len(r.inbox)
}

func (r *Registry) Run(ctx context.Context) {
	log.Printf("[INFO] skillregistry starting instance=%s", r.instance)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] skillregistry shutting down instance=%s", r.instance)
			return
		case action := <-r.inbox:
			action()
		}
	}
}

func (r *Registry) do(ctx context.Context, fn func()) {
	done := make(chan struct{})
	r.inbox <- func() {
		fn()
		close(done)
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Register adds or replaces an agent's advertised capability set.
func (r *Registry) Register(ctx context.Context, agentID string, capabilities []string) {
	r.do(ctx, func() {
		set := make(map[string]bool, len(capabilities))
		for _, c := range capabilities {
			set[c] = true
		}
		r.agents[agentID] = &agentEntry{capabilities: set}
		log.Printf("[INFO] skillregistry: registered agent_id=%s capabilities=%v", agentID, capabilities)
	})
}

// Deregister removes an agent entirely, e.g. on despawn.
func (r *Registry) Deregister(ctx context.Context, agentID string) {
	r.do(ctx, func() {
		delete(r.agents, agentID)
		log.Printf("[INFO] skillregistry: deregistered agent_id=%s", agentID)
	})
}

// SetActiveTaskCount lets the dispatcher rank agents by current load;
// the agent core reports this as it picks up and finishes work.
func (r *Registry) SetActiveTaskCount(ctx context.Context, agentID string, count int) {
	r.do(ctx, func() {
		if e, ok := r.agents[agentID]; ok {
			e.activeTasks = count
		}
	})
}

// FindCapable returns every registered agent id whose capability set is
// a superset of required, in no particular order. Satisfies
// dispatcher.CapabilityIndex.
func (r *Registry) FindCapable(required []string) []string {
	var out []string
	done := make(chan struct{})
	r.inbox <- func() {
		for agentID, e := range r.agents {
			if hasAll(e.capabilities, required) {
				out = append(out, agentID)
			}
		}
		close(done)
	}
	<-done
	return out
}

func hasAll(have map[string]bool, required []string) bool {
	for _, c := range required {
		if !have[c] {
			return false
		}
	}
	return true
}

// Descriptor returns a snapshot of a registered agent's capabilities, or
// ok=false if the agent is unknown.
func (r *Registry) Descriptor(ctx context.Context, agentID string) (fleet.AgentDescriptor, bool) {
	var out fleet.AgentDescriptor
	found := false
	r.do(ctx, func() {
		e, ok := r.agents[agentID]
		if !ok {
			return
		}
		found = true
		out = fleet.AgentDescriptor{AgentID: agentID, ActiveTaskCount: e.activeTasks}
		for c := range e.capabilities {
			out.Capabilities = append(out.Capabilities, c)
		}
	})
	return out, found
}
