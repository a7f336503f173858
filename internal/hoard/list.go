package hoard

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/dyluth/warren/pkg/fleet"
)

// OutputFormat specifies how to format the artifact list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated payloads.
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete artifacts as line-delimited JSON.
	OutputFormatJSONL OutputFormat = "jsonl"
)

// FilterCriteria defines filtering options for hoard list. All filters
// are ANDed together.
type FilterCriteria struct {
	TypeGlob         string // Glob pattern for artifact type, empty = no filter
	AgentID          string // Exact match for provenance.agentId, empty = no filter
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no lower bound
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no upper bound
}

func (fc *FilterCriteria) matches(art *fleet.Artifact) bool {
	if fc.TypeGlob != "" {
		matched, err := filepath.Match(fc.TypeGlob, art.Type)
		if err != nil || !matched {
			return false
		}
	}
	if fc.AgentID != "" && art.Provenance.AgentID != fc.AgentID {
		return false
	}
	createdMs := art.Provenance.CreatedAt.UnixMilli()
	if fc.SinceTimestampMs > 0 && createdMs < fc.SinceTimestampMs {
		return false
	}
	if fc.UntilTimestampMs > 0 && createdMs > fc.UntilTimestampMs {
		return false
	}
	return true
}

// ListArtifacts retrieves every artifact stored for an instance, applies
// filters, and writes the result to w in the requested format. Sorts by
// creation time for stable output.
func ListArtifacts(ctx context.Context, registry *fleet.ArtifactRegistry, instanceName string, format OutputFormat, filters *FilterCriteria, w io.Writer) error {
	artifacts, err := registry.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	var kept []*fleet.Artifact
	for _, art := range artifacts {
		if filters != nil && !filters.matches(art) {
			continue
		}
		kept = append(kept, art)
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Provenance.CreatedAt.Before(kept[j].Provenance.CreatedAt)
	})

	switch format {
	case OutputFormatDefault:
		FormatTable(w, kept, instanceName)
	case OutputFormatJSONL:
		if err := FormatJSONL(w, kept); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
