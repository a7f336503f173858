package instance

import (
	"github.com/docker/docker/api/types"

	dockerpkg "github.com/dyluth/warren/internal/docker"
	"github.com/dyluth/warren/internal/supervisor"
)

// Status represents the health status of a warren instance
type Status string

const (
	// StatusRunning indicates all containers are running
	StatusRunning Status = "Running"

	// StatusDegraded indicates some containers are stopped or missing
	StatusDegraded Status = "Degraded"

	// StatusStopped indicates all containers exist but are stopped
	StatusStopped Status = "Stopped"
)

// DetermineStatus analyzes a set of containers and determines the overall
// instance status. Kit containers are excluded from this calculation: a kit
// legitimately exits once its agent finishes the work it was spawned for, so
// a quiet fleet with zero kits running must not read as Degraded. Only the
// CLI-managed core (Redis, orchestrator) counts toward Running/Degraded/Stopped.
func DetermineStatus(containers []types.Container) Status {
	core := coreContainers(containers)
	if len(core) == 0 {
		return StatusStopped
	}

	runningCount := 0
	for _, c := range core {
		if c.State == "running" {
			runningCount++
		}
	}

	if runningCount == len(core) {
		return StatusRunning
	} else if runningCount > 0 {
		return StatusDegraded
	} else {
		return StatusStopped
	}
}

func coreContainers(containers []types.Container) []types.Container {
	var core []types.Container
	for _, c := range containers {
		if c.Labels[dockerpkg.LabelComponent] == "kit" {
			continue
		}
		core = append(core, c)
	}
	return core
}

// CountKits reports how many of an instance's agent kit containers are
// currently running out of how many exist, so callers can show fleet
// occupancy without conflating it with core instance health.
func CountKits(containers []types.Container) (running, total int) {
	for _, c := range containers {
		if c.Labels[supervisor.LabelComponent] != "kit" {
			continue
		}
		total++
		if c.State == "running" {
			running++
		}
	}
	return running, total
}

// InstanceInfo holds information about a warren instance
type InstanceInfo struct {
	Name          string `json:"name"`
	Status        Status `json:"status"`
	Workspace     string `json:"workspace"`
	Uptime        string `json:"uptime"`
	KitsRunning   int    `json:"kitsRunning"`
	KitsTotal     int    `json:"kitsTotal"`
}
