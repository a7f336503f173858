package hoard

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/warren/pkg/fleet"
)

func TestFormatAgent(t *testing.T) {
	assert.Equal(t, "-", formatAgent(""))
	assert.Equal(t, "coder-0", formatAgent("coder-0"))
}

func TestFormatType(t *testing.T) {
	assert.Equal(t, "GoalDefined", formatType("GoalDefined"))
	assert.Equal(t, "ThisIsAReallyLong...", formatType("ThisIsAReallyLongArtifactTypeName"))
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "abc-123", formatID("abc-123"))
	assert.Equal(t, "550e8400", formatID("550e8400-e29b-41d4-a716-446655440000"))
}

func TestFormatAge(t *testing.T) {
	assert.Equal(t, "-", formatAge(time.Time{}))
	assert.Contains(t, formatAge(time.Now().Add(-5*time.Second)), "s ago")
}

func TestFormatTable(t *testing.T) {
	t.Run("empty artifacts", func(t *testing.T) {
		var buf bytes.Buffer
		count := FormatTable(&buf, []*fleet.Artifact{}, "test-instance")

		output := buf.String()
		assert.Contains(t, output, "No artifacts found for instance 'test-instance'")
		assert.Equal(t, 0, count)
	})

	t.Run("single artifact", func(t *testing.T) {
		artifacts := []*fleet.Artifact{
			{
				ArtifactID: "abc-123",
				Type:       "GoalDefined",
				URI:        "file:///hello.txt",
				Provenance: fleet.Provenance{TaskID: "t1", AgentID: "user"},
			},
		}

		var buf bytes.Buffer
		count := FormatTable(&buf, artifacts, "test-instance")

		output := buf.String()
		assert.Contains(t, output, "Artifacts for instance 'test-instance'")
		assert.Contains(t, output, "abc-123")
		assert.Contains(t, output, "GoalDefined")
		assert.Contains(t, output, "user")
		assert.Contains(t, output, "hello.txt")
		assert.Contains(t, output, "1 artifact found")
		assert.Equal(t, 1, count)
	})

	t.Run("multiple artifacts", func(t *testing.T) {
		artifacts := []*fleet.Artifact{
			{ArtifactID: "abc-123", Type: "GoalDefined", Provenance: fleet.Provenance{TaskID: "t1", AgentID: "user"}},
			{ArtifactID: "def-456", Type: "CodeCommit", Provenance: fleet.Provenance{TaskID: "t2", AgentID: "git-agent"}},
		}

		var buf bytes.Buffer
		count := FormatTable(&buf, artifacts, "test-instance")

		output := buf.String()
		assert.Contains(t, output, "abc-123")
		assert.Contains(t, output, "def-456")
		assert.Contains(t, output, "2 artifacts found")
		assert.Equal(t, 2, count)
	})

	t.Run("artifact with empty fields", func(t *testing.T) {
		artifacts := []*fleet.Artifact{
			{ArtifactID: "abc-123", Type: "Unknown"},
		}

		var buf bytes.Buffer
		FormatTable(&buf, artifacts, "test-instance")

		assert.Contains(t, buf.String(), "-")
	})
}

func TestFormatJSONL(t *testing.T) {
	t.Run("empty artifacts", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, FormatJSONL(&buf, []*fleet.Artifact{}))
		assert.Empty(t, buf.String())
	})

	t.Run("multiple artifacts", func(t *testing.T) {
		artifacts := []*fleet.Artifact{
			{ArtifactID: "abc-123", Type: "GoalDefined", Provenance: fleet.Provenance{TaskID: "t1"}},
			{ArtifactID: "def-456", Type: "CodeCommit", Provenance: fleet.Provenance{TaskID: "t2", InputArtifactIDs: []string{"abc-123"}}},
		}

		var buf bytes.Buffer
		require.NoError(t, FormatJSONL(&buf, artifacts))

		lines := splitNonEmptyLines(buf.String())
		require.Len(t, lines, 2)

		var first fleet.Artifact
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
		assert.Equal(t, "abc-123", first.ArtifactID)
	})
}

func TestFormatSingleJSON(t *testing.T) {
	t.Run("single artifact", func(t *testing.T) {
		art := &fleet.Artifact{
			ArtifactID: "abc-123",
			Type:       "GoalDefined",
			URI:        "file:///hello.txt",
			Provenance: fleet.Provenance{TaskID: "t1", AgentID: "user"},
		}

		var buf bytes.Buffer
		require.NoError(t, FormatSingleJSON(&buf, art))

		var result fleet.Artifact
		require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
		assert.Equal(t, "abc-123", result.ArtifactID)
		assert.Equal(t, "GoalDefined", result.Type)
	})

	t.Run("pretty printed with indentation", func(t *testing.T) {
		art := &fleet.Artifact{ArtifactID: "abc-123", Type: "Test"}

		var buf bytes.Buffer
		require.NoError(t, FormatSingleJSON(&buf, art))

		output := buf.String()
		assert.Contains(t, output, "\n")
		assert.Contains(t, output, "  ")
	})
}
