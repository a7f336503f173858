package dispatcher

import (
	"sort"

	"github.com/dyluth/warren/pkg/fleet"
)

// SelectWinner picks the strongest bid for a task: highest fitness first,
// then fewest active tasks, then shortest estimated duration, then the
// alphabetically earliest agent id as a final deterministic tiebreak, so
// the same bid set always ranks the same winner regardless of arrival
// order. Returns ok=false if bids is empty.
func SelectWinner(bids []fleet.Bid) (fleet.Bid, bool) {
	if len(bids) == 0 {
		return fleet.Bid{}, false
	}
	sorted := make([]fleet.Bid, len(bids))
	copy(sorted, bids)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Fitness != b.Fitness {
			return a.Fitness > b.Fitness
		}
		if a.ActiveTaskCount != b.ActiveTaskCount {
			return a.ActiveTaskCount < b.ActiveTaskCount
		}
		if a.EstimatedDuration != b.EstimatedDuration {
			return a.EstimatedDuration < b.EstimatedDuration
		}
		return a.AgentID < b.AgentID
	})
	return sorted[0], true
}
