package hoard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/dyluth/warren/pkg/fleet"
)

// FormatTable writes artifacts as a formatted table to the provided
// writer. Columns: ID, TYPE, TASK, AGENT, AGE, URI.
func FormatTable(w io.Writer, artifacts []*fleet.Artifact, instanceName string) int {
	if len(artifacts) == 0 {
		fmt.Fprintf(w, "No artifacts found for instance '%s'\n", instanceName)
		return 0
	}

	fmt.Fprintf(w, "Artifacts for instance '%s':\n\n", instanceName)

	table := tablewriter.NewTable(w)
	table.Header([]string{"ID", "Type", "Task", "Agent", "Age", "URI"})
	for _, a := range artifacts {
		table.Append([]string{
			formatID(a.ArtifactID),
			formatType(a.Type),
			formatID(a.Provenance.TaskID),
			formatAgent(a.Provenance.AgentID),
			formatAge(a.Provenance.CreatedAt),
			a.URI,
		})
	}
	table.Render()

	countMsg := "artifact"
	if len(artifacts) != 1 {
		countMsg = "artifacts"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(artifacts), countMsg)

	return len(artifacts)
}

// FormatJSONL writes artifacts as line-delimited JSON, one object per
// line. Ideal for piping into jq.
func FormatJSONL(w io.Writer, artifacts []*fleet.Artifact) error {
	for _, art := range artifacts {
		data, err := json.Marshal(art)
		if err != nil {
			return fmt.Errorf("failed to marshal artifact to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes a single artifact as pretty-printed JSON.
func FormatSingleJSON(w io.Writer, artifact *fleet.Artifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal artifact to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

// formatID truncates an id to its first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatType truncates type names for compact display.
func formatType(typeName string) string {
	if len(typeName) > 20 {
		return typeName[:17] + "..."
	}
	return typeName
}

// formatAgent formats the provenance agent id. Empty values return "-".
func formatAgent(agentID string) string {
	if agentID == "" {
		return "-"
	}
	return agentID
}

// formatAge formats a creation timestamp as relative time, e.g. "2m ago".
func formatAge(createdAt time.Time) string {
	if createdAt.IsZero() {
		return "-"
	}
	diff := time.Since(createdAt)
	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
