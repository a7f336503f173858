// Package filter implements the match criteria `warren watch` applies to
// the external event bus: time range, event-type glob, and agent id.
package filter

import (
	"path/filepath"

	"github.com/dyluth/warren/pkg/fleet"
)

// Criteria defines filtering criteria for bus events. All filters are
// ANDed together - an event must match ALL criteria to pass.
type Criteria struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	TypeGlob         string // Glob pattern for event type, empty = no filter
	AgentID          string // Exact match for agentId, empty = no filter
}

// Matches returns true if evt matches all filter criteria. Zero/empty
// criteria values are treated as "match all" for that criterion.
func (c *Criteria) Matches(evt fleet.Event) bool {
	if c.SinceTimestampMs > 0 && evt.Timestamp < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && evt.Timestamp > c.UntilTimestampMs {
		return false
	}
	if c.TypeGlob != "" {
		matched, err := filepath.Match(c.TypeGlob, evt.Type)
		if err != nil || !matched {
			return false
		}
	}
	if c.AgentID != "" && evt.AgentID != c.AgentID {
		return false
	}
	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.TypeGlob != "" ||
		c.AgentID != ""
}
