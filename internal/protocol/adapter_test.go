package protocol

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func typesOf(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestAdapter_FirstLineStartsRun(t *testing.T) {
	a := NewAdapter("agentA")
	events := a.Feed("hello")
	require.Equal(t, []EventType{RunStarted, TextMessageStart, TextMessageContent}, typesOf(events))
	require.Equal(t, "agentA-run-1", events[0].RunID)
}

func TestAdapter_ToolUseEndsMessageAndStartsToolCall(t *testing.T) {
	a := NewAdapter("agentA")
	a.Feed("some text")
	events := a.Feed(`tool_use {"name": "bash"}`)
	require.Equal(t, []EventType{TextMessageEnd, ToolCallStart}, typesOf(events))
	require.Equal(t, "bash", events[1].ToolName)
}

func TestAdapter_ToolUseMissingNameDefaultsUnknown(t *testing.T) {
	a := NewAdapter("agentA")
	events := a.Feed(`tool_use {}`)
	require.Equal(t, "unknown_tool", events[len(events)-1].ToolName)
}

func TestAdapter_ToolResultEndsToolCall(t *testing.T) {
	a := NewAdapter("agentA")
	a.Feed(`tool_use {"name": "bash"}`)
	events := a.Feed("tool_result ok")
	require.Equal(t, []EventType{ToolCallEnd}, typesOf(events))
}

func TestAdapter_ToolResultIgnoredWithoutActiveCall(t *testing.T) {
	a := NewAdapter("agentA")
	events := a.Feed("tool_result ok")
	// no tool-call active, so this falls through to plain text handling
	require.Contains(t, typesOf(events), TextMessageContent)
}

func TestAdapter_ExitEndsEverythingAndFinishesRun(t *testing.T) {
	a := NewAdapter("agentA")
	a.Feed("some text")
	a.Feed(`tool_use {"name": "bash"}`)
	events := a.Feed("__runtime_exit__")
	require.Equal(t, []EventType{ToolCallEnd, RunFinished}, typesOf(events))
}

func TestAdapter_ThinkingAndBlankLinesSuppressed(t *testing.T) {
	a := NewAdapter("agentA")
	events := a.Feed("...thinking...")
	require.Equal(t, []EventType{RunStarted}, typesOf(events))

	events = a.Feed("   ")
	require.Empty(t, events)
}

func TestAdapter_ToolOutputSuppressedWhileToolCallActive(t *testing.T) {
	a := NewAdapter("agentA")
	a.Feed(`tool_use {"name": "bash"}`)
	events := a.Feed("some intermediate tool stdout line")
	require.Empty(t, events)
}

func TestAdapter_NewRunAfterFinish(t *testing.T) {
	a := NewAdapter("agentA")
	a.Feed("x")
	a.Feed("__runtime_exit__")
	events := a.Feed("y")
	require.Equal(t, RunStarted, events[0].Type)
	require.Equal(t, "agentA-run-2", events[0].RunID)
}

// TestAdapter_RoundTripReconstructsText verifies the round-trip law:
// concatenating TextMessageContent deltas between a matching
// TextMessageStart/End reconstructs the original non-suppressed,
// non-tool lines in order.
func TestAdapter_RoundTripReconstructsText(t *testing.T) {
	a := NewAdapter("agentA")
	lines := []string{"first line", "second line", "third line"}

	var deltas []string
	for _, l := range lines {
		for _, evt := range a.Feed(l) {
			if evt.Type == TextMessageContent {
				deltas = append(deltas, evt.Delta)
			}
		}
	}

	require.Equal(t, strings.Join(lines, ""), strings.Join(deltas, ""))
}
