package hoard

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/dyluth/warren/pkg/fleet"
)

// GetArtifact retrieves a single artifact by ID and writes it as
// pretty-printed JSON to the writer. Returns an error if the artifact ID
// is invalid or the artifact does not exist.
func GetArtifact(ctx context.Context, registry *fleet.ArtifactRegistry, artifactID string, w io.Writer) error {
	if _, err := uuid.Parse(artifactID); err != nil {
		return fmt.Errorf("invalid artifact ID format: must be a valid UUID")
	}

	art, err := registry.Get(ctx, artifactID)
	if err != nil {
		if err == fleet.ErrArtifactNotFound {
			return &ArtifactNotFoundError{ArtifactID: artifactID}
		}
		return fmt.Errorf("failed to fetch artifact: %w", err)
	}

	if err := FormatSingleJSON(w, art); err != nil {
		return fmt.Errorf("failed to format artifact: %w", err)
	}

	return nil
}

// ArtifactNotFoundError represents a specific "artifact not found" error.
// This allows callers to distinguish not-found errors from other failures.
type ArtifactNotFoundError struct {
	ArtifactID string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("artifact with ID '%s' not found", e.ArtifactID)
}

// IsNotFound returns true if the error is an ArtifactNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*ArtifactNotFoundError)
	return ok
}
