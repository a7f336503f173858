package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildLabels(t *testing.T) {
	labels := BuildLabels("prod", "run-123", "agent-a")

	assert.Equal(t, "true", labels[LabelProject])
	assert.Equal(t, "prod", labels[LabelInstanceName])
	assert.Equal(t, "run-123", labels[LabelRunID])
	assert.Equal(t, "agent-a", labels[LabelAgentID])
	assert.Equal(t, "kit", labels[LabelComponent])
}

func TestAgentContainerName(t *testing.T) {
	assert.Equal(t, "warren-prod-kit-agent-a", AgentContainerName("prod", "agent-a"))
}

func TestNetworkName(t *testing.T) {
	assert.Equal(t, "warren-network-prod", NetworkName("prod"))
}
