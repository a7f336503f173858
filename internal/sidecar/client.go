// Package sidecar implements the knowledge-sidecar client: a thin wrapper
// around invoking an external `memory-sidecar` command and parsing its
// JSON stdout. The sidecar itself (embedding/vector memory, episodic
// memory store) is a separate binary - this package only knows how to
// talk to it.
package sidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultQueryTimeout bounds how long a knowledge retrieval call may
// block before the caller proceeds without it.
const DefaultQueryTimeout = 5 * time.Second

// KnowledgeEntry is one result from a `query` or `search` call.
type KnowledgeEntry struct {
	Content    string            `json:"content"`
	Category   string            `json:"category,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	StoredAt   string            `json:"stored_at,omitempty"`
	Relevance  float64           `json:"relevance,omitempty"`
	Filename   string            `json:"filename,omitempty"`
	Location   string            `json:"location,omitempty"`
	Language   string            `json:"language,omitempty"`
	Code       string            `json:"code,omitempty"`
	Score      float64           `json:"score,omitempty"`
}

// storeResult is the `store` verb's JSON response.
type storeResult struct {
	ID string `json:"id"`
}

// Client invokes the memory-sidecar binary. Every method is loss-tolerant:
// a non-zero exit or invalid JSON is treated as an empty result for
// retrieval, or a silent no-op for storage - callers never need their own
// fallback logic.
type Client struct {
	binary string
	// Retries bounds the number of retries after the first attempt on transient exec failure
	// (e.g. the sidecar momentarily locked by a concurrent invocation)
	// before giving up and returning an empty result.
	Retries uint64
}

func NewClient(binary string) *Client {
	return &Client{binary: binary, Retries: 2}
}

func (c *Client) run(ctx context.Context, args ...string) ([]byte, error) {
	var stdout bytes.Buffer
	operation := func() error {
		cmd := exec.CommandContext(ctx, c.binary, args...)
		cmd.Stdout = &stdout
		stdout.Reset()
		return cmd.Run()
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.Retries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Query performs `memory-sidecar query <text> --agent <id> --top-k N --json-output`.
// On any failure (timeout, non-zero exit, invalid JSON) it returns an
// empty slice and no error - callers proceed with the raw task description.
func (c *Client) Query(ctx context.Context, text, agentID string, topK int) []KnowledgeEntry {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	out, err := c.run(ctx, "query", text, "--agent", agentID, "--top-k", fmt.Sprint(topK), "--json-output")
	if err != nil {
		return nil
	}
	var entries []KnowledgeEntry
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil
	}
	return entries
}

// Store performs `memory-sidecar store <content> --agent <id> --category <cat> [--tag k:v]*`.
// Fire-and-forget: errors are swallowed; knowledge storage tolerates
// loss.
func (c *Client) Store(ctx context.Context, content, agentID, category string, tags map[string]string) {
	args := []string{"store", content, "--agent", agentID, "--category", category}
	for k, v := range tags {
		args = append(args, "--tag", fmt.Sprintf("%s:%s", k, v))
	}
	_, _ = c.run(ctx, args...)
}

// Search performs `memory-sidecar search <text> --json-output`, returning
// an empty slice on any failure.
func (c *Client) Search(ctx context.Context, text string) []KnowledgeEntry {
	out, err := c.run(ctx, "search", text, "--json-output")
	if err != nil {
		return nil
	}
	var entries []KnowledgeEntry
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil
	}
	return entries
}

// FormatPreamble renders retrieved entries as the structured context
// preamble an agent concatenates with the task description.
func FormatPreamble(entries []KnowledgeEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b bytes.Buffer
	b.WriteString("Relevant prior context:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s\n", e.Content)
	}
	return b.String()
}
