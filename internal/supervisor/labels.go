package supervisor

import "fmt"

// Label keys applied to every container a warren instance spawns, so a
// crashed daemon (or `docker ps`) can still identify and clean up
// orphaned agent containers.
const (
	LabelProject      = "warren.project"
	LabelInstanceName = "warren.instance.name"
	LabelRunID        = "warren.instance.run_id"
	LabelAgentID      = "warren.agent.id"
	LabelComponent    = "warren.component"
)

// BuildLabels returns the standard label set for an agent container.
func BuildLabels(instanceName, runID, agentID string) map[string]string {
	return map[string]string{
		LabelProject:      "true",
		LabelInstanceName: instanceName,
		LabelRunID:        runID,
		LabelAgentID:      agentID,
		LabelComponent:    "kit",
	}
}

// AgentContainerName returns the deterministic container name for an
// agent within an instance.
func AgentContainerName(instanceName, agentID string) string {
	return fmt.Sprintf("warren-%s-kit-%s", instanceName, agentID)
}

// NetworkName returns the Docker network name shared by one instance's
// containers.
func NetworkName(instanceName string) string {
	return fmt.Sprintf("warren-network-%s", instanceName)
}
