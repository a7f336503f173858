package agentcore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dyluth/warren/internal/protocol"
	"github.com/dyluth/warren/pkg/fleet"
)

// Markers an agent's runtime may emit on stdout/stderr, checked
// independently of the protocol adapter's own line classification since
// they carry information the adapter's normalized event stream doesn't:
// a declared artifact, or the task's final structured result.
const (
	resultMarker   = "__task_result__"
	artifactMarker = "__artifact__"
)

// taskResultPayload is the JSON object following resultMarker on a line.
type taskResultPayload struct {
	Success bool                   `json:"success"`
	Summary string                 `json:"summary"`
	Subplan *fleet.ProposedSubplan `json:"subplan,omitempty"`
}

// artifactPayload is the JSON object following artifactMarker on a line.
type artifactPayload struct {
	Type        string `json:"type"`
	Format      string `json:"format,omitempty"`
	URI         string `json:"uri"`
	ContentHash string `json:"contentHash,omitempty"`
}

func parseMarkedJSON(line, marker string, out any) bool {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return false
	}
	rest := strings.TrimSpace(line[idx+len(marker):])
	return json.Unmarshal([]byte(rest), out) == nil
}

// executeTask runs an awarded task end to end: compose
// the prompt (retrieval), feed it to the runtime driver, stream lines
// through the protocol adapter while classifying activity state and
// notifying the viewport bridge, collect declared artifacts, and finish
// with a TaskCompleted or TaskFailed.
func (e *Engine) executeTask(ctx context.Context, graphID, taskID, description string) {
	prompt := e.composePrompt(ctx, description)
	started := time.Now()

	e.bridge.PublishRuntimeStarted(e.agentID)
	if err := e.driver.Send(prompt); err != nil {
		e.bridge.PublishRuntimeExited(e.agentID, err)
		e.finishTask(ctx, graphID, taskID, false, "", nil, nil, "failed to start runtime invocation: "+err.Error())
		return
	}

	var transcript strings.Builder
	var artifactIDs []string
	var result *taskResultPayload
	var runtimeErr error

drain:
	for {
		select {
		case <-ctx.Done():
			runtimeErr = ctx.Err()
			break drain
		case line, ok := <-e.driver.Events():
			if !ok {
				break drain
			}
			e.bridge.PublishRuntimeOutput(e.agentID, line.Text)
			e.bridge.PublishAgentStateChanged(e.agentID, e.classify(line.Text))

			var rp taskResultPayload
			if parseMarkedJSON(line.Text, resultMarker, &rp) {
				result = &rp
			}
			var ap artifactPayload
			if parseMarkedJSON(line.Text, artifactMarker, &ap) {
				if id, ok := e.registerArtifact(ctx, graphID, taskID, ap); ok {
					artifactIDs = append(artifactIDs, id)
				}
			}

			for _, evt := range e.adapter.Feed(line.Text) {
				if evt.Type == protocol.TextMessageContent {
					transcript.WriteString(evt.Delta)
					transcript.WriteByte('\n')
				}
			}
		case err := <-e.driver.Errs():
			if err != nil {
				runtimeErr = err
			}
		}
	}

	for _, evt := range e.adapter.Flush() {
		if evt.Type == protocol.TextMessageContent {
			transcript.WriteString(evt.Delta)
			transcript.WriteByte('\n')
		}
	}
	e.bridge.PublishRuntimeExited(e.agentID, runtimeErr)

	if runtimeErr != nil {
		e.finishTask(ctx, graphID, taskID, false, "", artifactIDs, nil, runtimeErr.Error())
		return
	}

	success := true
	summary := strings.TrimSpace(transcript.String())
	var subplan *fleet.ProposedSubplan
	if result != nil {
		success = result.Success
		if result.Summary != "" {
			summary = result.Summary
		}
		subplan = result.Subplan
	}

	if subplan != nil && summary != "" {
		e.remember(ctx, taskID, "summary", summary)
	}
	if subplan == nil && success {
		e.recordDuration(ctx, e.requiredCapabilitiesFor(taskID), time.Since(started))
	}
	e.finishTask(ctx, graphID, taskID, success, summary, artifactIDs, subplan, "")
}

func (e *Engine) registerArtifact(ctx context.Context, graphID, taskID string, ap artifactPayload) (string, bool) {
	if e.artifacts == nil {
		return "", false
	}
	id, err := e.artifacts.Register(ctx, fleet.Artifact{
		Type:        ap.Type,
		Format:      ap.Format,
		URI:         ap.URI,
		ContentHash: ap.ContentHash,
		Provenance: fleet.Provenance{
			TaskID:    taskID,
			AgentID:   e.agentID,
			CreatedAt: time.Now(),
		},
	})
	if err != nil {
		return "", false
	}
	return id, true
}

// requiredCapabilitiesFor is best-effort: the capability set a
// just-finished task was bid on isn't retained past OnTaskAwarded, so
// duration history is keyed by the agent's own full capability set as a
// reasonable proxy when a specific requirement can't be recovered.
func (e *Engine) requiredCapabilitiesFor(taskID string) []string {
	return e.capabilities
}
