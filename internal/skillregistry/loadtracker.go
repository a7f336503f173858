package skillregistry

import (
	"context"
	"encoding/json"
	"log"

	"github.com/dyluth/warren/internal/blackboard"
	"github.com/dyluth/warren/internal/viewport"
	"github.com/dyluth/warren/pkg/fleet"
)

// TrackLoad subscribes to the blackboard's task status signals and keeps
// each registered agent's active-task count current: a task entering
// Dispatched counts against its assigned agent until it reaches a
// terminal status (or its WaitingForSubtasks/Synthesizing suspension).
// Blocks until ctx is cancelled; run it in its own goroutine.
//
// The subscribe-with-replay semantics of the board mean a tracker
// started mid-run still converges: the latest value per task key arrives
// first, and only Dispatched tasks observed there are counted.
func (r *Registry) TrackLoad(ctx context.Context, board *blackboard.Board) {
	sub := board.Subscribe(ctx, viewport.TaskStatusPrefix)
	defer sub.Close(context.Background())

	// taskAgent remembers which agent each currently-counted task is
	// charged to, so a terminal signal decrements the right agent even
	// though the signal itself may omit the assignment.
	taskAgent := map[string]string{}
	counts := map[string]int{}

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sub.Signals():
			if !ok {
				return
			}
			var val viewport.TaskSignalValue
			if err := json.Unmarshal([]byte(sig.Value), &val); err != nil {
				log.Printf("[WARN] skillregistry: malformed task signal key=%s: %v", sig.Key, err)
				continue
			}

			charged, wasCharged := taskAgent[sig.Key]
			switch {
			case val.Status == fleet.TaskDispatched && !wasCharged && val.AgentID != "":
				taskAgent[sig.Key] = val.AgentID
				counts[val.AgentID]++
				r.SetActiveTaskCount(ctx, val.AgentID, counts[val.AgentID])
			case val.Status != fleet.TaskDispatched && wasCharged:
				delete(taskAgent, sig.Key)
				counts[charged]--
				r.SetActiveTaskCount(ctx, charged, counts[charged])
			}
		}
	}
}
