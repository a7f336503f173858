package fleet

import "fmt"

// Redis key and channel naming conventions, namespaced by run instance.
// These mirror the "warren:{instance}:{entity}:{id}" convention used
// throughout this codebase for every Redis-backed concern.

func ArtifactKey(instance, artifactID string) string {
	return fmt.Sprintf("warren:%s:artifact:%s", instance, artifactID)
}

func ArtifactHashIndexKey(instance, contentHash string) string {
	return fmt.Sprintf("warren:%s:artifact-hash:%s", instance, contentHash)
}

func ArtifactsByTaskKey(instance, taskID string) string {
	return fmt.Sprintf("warren:%s:artifacts-by-task:%s", instance, taskID)
}

func ArtifactsByTypeKey(instance, artifactType string) string {
	return fmt.Sprintf("warren:%s:artifacts-by-type:%s", instance, artifactType)
}

func ArtifactEventsChannel(instance string) string {
	return fmt.Sprintf("warren:%s:events:artifact", instance)
}

func TaskEventsChannel(instance string) string {
	return fmt.Sprintf("warren:%s:events:task", instance)
}

func BidEventsChannel(instance, taskID string) string {
	return fmt.Sprintf("warren:%s:events:bid:%s", instance, taskID)
}

func GraphEventsChannel(instance string) string {
	return fmt.Sprintf("warren:%s:events:graph", instance)
}

func AgentControlChannel(instance, agentID string) string {
	return fmt.Sprintf("warren:%s:agent-control:%s", instance, agentID)
}

// OrchestratorInboxChannel is the single channel every kit process
// publishes bids, completions, and failures onto; the orchestrator-side
// transport adapter is its only subscriber.
func OrchestratorInboxChannel(instance string) string {
	return fmt.Sprintf("warren:%s:orchestrator-inbox", instance)
}

func ApprovalChannel(instance string) string {
	return fmt.Sprintf("warren:%s:risk-approval", instance)
}

// GraphSubmitChannel is the shared channel a warren CLI process publishes
// a graph submission request onto; the orchestrator's submit listener is
// its only subscriber.
func GraphSubmitChannel(instance string) string {
	return fmt.Sprintf("warren:%s:graph-submit", instance)
}

// GraphSubmitReplyChannel is a per-request reply channel the orchestrator
// publishes the synchronous Submit outcome onto, so concurrent CLI
// submitters never observe each other's replies.
func GraphSubmitReplyChannel(instance, requestID string) string {
	return fmt.Sprintf("warren:%s:graph-submit-reply:%s", instance, requestID)
}
