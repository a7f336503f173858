// Package runtime starts, streams, and terminates the heterogeneous
// subprocesses backing each agent, with placeholder-resolved command
// lines.
package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/warren/internal/config"
)

// Line is one raw output line from a runtime, tagged by stream so the
// protocol adapter can, if it chooses, treat stderr differently (the
// default adapter interleaves both).
type Line struct {
	Text     string
	IsStderr bool
}

// Driver is the contract every runtime variant implements: Start, Stop,
// Send(prompt), Events(), IsRunning.
type Driver interface {
	// Start prepares the driver to accept prompts. It does not by itself
	// produce any output - a subprocess is only spawned by Send.
	Start(ctx context.Context) error

	// Send feeds prompt to the runtime, resolving any {placeholder}
	// tokens in the underlying command line and beginning a fresh
	// invocation. It returns once the invocation has started streaming,
	// not once it completes.
	Send(prompt string) error

	// Events returns the channel of output lines for the most recent
	// Send. The channel is closed when that invocation's process exits.
	Events() <-chan Line

	// Errs surfaces invocation-level errors (spawn failure, output-size
	// limit exceeded, timeout). The channel is never closed.
	Errs() <-chan error

	// IsRunning reports whether an invocation is currently in flight.
	IsRunning() bool

	// Stop cancels any in-flight invocation and releases driver
	// resources. Safe to call more than once.
	Stop() error
}

// ResolvePlaceholders performs a single-pass, case-insensitive
// {placeholder} substitution: a resolved value is never re-scanned for
// further placeholders, so replacement text containing literal braces
// cannot trigger a second substitution pass.
func ResolvePlaceholders(args []string, values map[string]string) []string {
	lowered := make(map[string]string, len(values))
	for k, v := range values {
		lowered[strings.ToLower(k)] = v
	}

	resolved := make([]string, len(args))
	for i, arg := range args {
		resolved[i] = resolveOne(arg, lowered)
	}
	return resolved
}

func resolveOne(arg string, lowered map[string]string) string {
	var b strings.Builder
	i := 0
	for i < len(arg) {
		if arg[i] == '{' {
			end := strings.IndexByte(arg[i:], '}')
			if end >= 0 {
				token := arg[i+1 : i+end]
				if val, ok := lowered[strings.ToLower(token)]; ok {
					b.WriteString(val)
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(arg[i])
		i++
	}
	return b.String()
}

// EffectivePlaceholders builds the substitution map for a subprocess
// invocation: {prompt} from Send, {provider}/{model} from the effective
// (merged) model spec, plus the runtime entry's literal defaults.
func EffectivePlaceholders(prompt string, model *config.ModelSpec, defaults map[string]string) map[string]string {
	values := map[string]string{"prompt": prompt}
	for k, v := range defaults {
		values[k] = v
	}
	if model != nil {
		if model.Provider != "" {
			values["provider"] = model.Provider
		}
		if model.ModelID != "" {
			values["model"] = model.ModelID
		}
	}
	return values
}

// NewDriver builds the driver variant named by entry.Type.
func NewDriver(entry config.RuntimeEntry, model *config.ModelSpec) (Driver, error) {
	switch entry.Type {
	case config.RuntimeTypeCLI:
		return NewSubprocessDriver(entry, model), nil
	case config.RuntimeTypeAPI, config.RuntimeTypeSDK:
		return nil, fmt.Errorf("runtime type %q is reserved and not yet implemented", entry.Type)
	default:
		return nil, fmt.Errorf("unknown runtime type %q", entry.Type)
	}
}
