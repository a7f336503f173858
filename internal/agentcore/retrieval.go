package agentcore

import (
	"context"

	"github.com/dyluth/warren/internal/sidecar"
)

// composePrompt is the pre-task retrieval stage: query the
// knowledge sidecar, bounded by its own 5-second timeout
// (sidecar.DefaultQueryTimeout), and concatenate any retrieved context as
// a structured preamble ahead of the task description. sidecar.Client is
// already loss-tolerant - Query returns an empty slice on timeout or
// failure - so there is nothing further to guard here; the agent simply
// proceeds with the raw description when retrieval yields nothing.
func (e *Engine) composePrompt(ctx context.Context, description string) string {
	if e.sidecar == nil {
		return description
	}
	entries := e.sidecar.Query(ctx, description, e.agentID, 5)
	preamble := sidecar.FormatPreamble(entries)
	if preamble == "" {
		return description
	}
	return preamble + "\n" + description
}
