package agentcore

import (
	"context"
	"encoding/json"
	"log"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/warren/pkg/fleet"
)

// evaluateBid decides whether to bid on an offered task: reject if at capacity,
// compute capability-match fitness (must be exactly 1.0 - the required
// set must be fully covered), gate on an affinity threshold, then submit
// a single bid. Must run on the actor goroutine (called only from
// OnTaskOffered's do() closure).
func (e *Engine) evaluateBid(ctx context.Context, taskID, description string, required []string) (fleet.Bid, bool) {
	if e.bidding.Capacity > 0 && e.activeTaskCount() >= e.bidding.Capacity {
		return fleet.Bid{}, false
	}

	fit := capabilityFitness(required, e.capabilities)
	if fit < 1.0 {
		return fleet.Bid{}, false
	}

	if e.affinity(required) < e.bidding.AffinityThreshold {
		return fleet.Bid{}, false
	}

	if len(e.bidding.BidScript) > 0 {
		if overridden, ok := e.runBidScript(ctx, taskID, description, required); ok {
			fit = overridden
		}
	}

	return fleet.Bid{
		TaskID:            taskID,
		AgentID:           e.agentID,
		Fitness:           fit,
		ActiveTaskCount:   e.activeTaskCount(),
		EstimatedDuration: e.estimatedDuration(required),
	}, true
}

// capabilityFitness is |required ∩ have| / |required|, per spec. An empty
// requirement set is trivially fully satisfied.
func capabilityFitness(required, have []string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	haveSet := make(map[string]bool, len(have))
	for _, c := range have {
		haveSet[c] = true
	}
	matched := 0
	for _, r := range required {
		if haveSet[r] {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// affinity is the secondary gate on bidding, a hook for incorporating
// historical success rate per capability set; it starts as a constant
// 1.0 baseline.
func (e *Engine) affinity(required []string) float64 {
	return 1.0
}

// durationKey canonicalizes a capability set for the history table.
func durationKey(required []string) string {
	sorted := make([]string, len(required))
	copy(sorted, required)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// estimatedDuration is the median of prior successful task durations for
// this capability set, or the configured default absent any history.
// Must run on the actor goroutine.
func (e *Engine) estimatedDuration(required []string) time.Duration {
	history := e.historicalDurations[durationKey(required)]
	if len(history) == 0 {
		return e.bidding.DefaultDuration
	}
	sorted := make([]time.Duration, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// recordDuration feeds a successful task's wall-clock duration back into
// the history table so future bids for the same capability set estimate
// from it. Safe to call from any goroutine - the write is enqueued onto
// the actor's inbox.
func (e *Engine) recordDuration(ctx context.Context, required []string, d time.Duration) {
	key := durationKey(required)
	e.do(ctx, func(ctx context.Context) {
		e.historicalDurations[key] = append(e.historicalDurations[key], d)
	})
}

// runBidScript lets an operator-supplied subprocess override the
// statically computed fitness: the script receives the task as JSON on
// stdin and prints a [0,1] score on stdout. Any failure - spawn error,
// non-numeric output, or an out-of-range score - falls back to the
// static fitness rather than failing the bid.
func (e *Engine) runBidScript(ctx context.Context, taskID, description string, required []string) (float64, bool) {
	cmd := exec.CommandContext(ctx, e.bidding.BidScript[0], e.bidding.BidScript[1:]...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		log.Printf("[WARN] agentcore: bid script stdin pipe failed, falling back to static fitness: %v", err)
		return 0, false
	}
	go func() {
		defer stdin.Close()
		_ = json.NewEncoder(stdin).Encode(map[string]any{
			"taskId": taskID, "description": description, "capabilities": required,
		})
	}()

	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Printf("[WARN] agentcore: bid script execution failed, falling back to static fitness: %v", err)
		return 0, false
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil || score < 0 || score > 1 {
		log.Printf("[WARN] agentcore: bid script returned invalid score %q, falling back to static fitness", string(output))
		return 0, false
	}
	return score, true
}
