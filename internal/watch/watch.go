// Package watch implements `warren watch`'s live streaming of the
// external event bus (pkg/fleet.Bus), with time/type/agent filtering and
// a default or JSONL output format. The bus only ever carries
// already-decided, append-only facts, so a single subscription over
// fleet.Event suffices - there is no historical state to scan on
// connect, and a dropped connection is retried rather than replayed.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/warren/internal/filter"
	"github.com/dyluth/warren/pkg/fleet"
)

// OutputFormat selects how streamed events are rendered.
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSONL   OutputFormat = "jsonl"
)

// terminalEventType is emitted once a submitted graph reaches a terminal
// state; StreamActivity watches for it when exitOnCompletion is set.
const terminalEventType = "TaskGraphCompleted"

// StreamActivity subscribes to the instance's event bus and writes every
// event to writer until ctx is cancelled, the bus connection closes
// permanently, or (if exitOnCompletion) a TaskGraphCompleted event is
// observed. Reconnects with a 2s retry interval for up to 60s on a
// transient subscription failure.
func StreamActivity(ctx context.Context, bus *fleet.Bus, format OutputFormat, filters *filter.Criteria, exitOnCompletion bool, writer io.Writer) error {
	var formatter eventFormatter
	switch format {
	case OutputFormatJSONL:
		formatter = &jsonlFormatter{writer: writer}
	default:
		formatter = &defaultFormatter{writer: writer}
	}

	for {
		done, err := streamOnce(ctx, bus, formatter, filters, exitOnCompletion)
		if done {
			return err
		}
		if err == context.Canceled || err == context.DeadlineExceeded {
			return nil
		}

		fmt.Fprintf(writer, "connection to event bus lost, reconnecting...\n")
		reconnectCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
		ok := reconnectWithRetry(reconnectCtx, bus, 2*time.Second)
		cancel()
		if !ok {
			return fmt.Errorf("failed to reconnect to event bus after 60s")
		}
		fmt.Fprintf(writer, "reconnected\n")
	}
}

// streamOnce runs one subscription to completion. done is true when the
// caller should stop retrying (context cancelled, or the terminal event
// was observed).
func streamOnce(ctx context.Context, bus *fleet.Bus, formatter eventFormatter, filters *filter.Criteria, exitOnCompletion bool) (done bool, err error) {
	sub, err := bus.Subscribe(ctx)
	if err != nil {
		return false, err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case evt, ok := <-sub.Events():
			if !ok {
				return false, fmt.Errorf("event subscription closed")
			}
			if filters != nil && !filters.Matches(evt) {
				continue
			}
			if err := formatter.Format(evt); err != nil {
				return true, err
			}
			if exitOnCompletion && evt.Type == terminalEventType {
				return true, nil
			}
		case e, ok := <-sub.Errors():
			if !ok {
				return false, fmt.Errorf("event subscription closed")
			}
			if e != nil {
				return false, e
			}
		}
	}
}

func reconnectWithRetry(ctx context.Context, bus *fleet.Bus, interval time.Duration) bool {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			sub, err := bus.Subscribe(ctx)
			if err == nil {
				sub.Close()
				return true
			}
		}
	}
}

type eventFormatter interface {
	Format(evt fleet.Event) error
}

// defaultFormatter is human-readable, one line per event.
type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) Format(evt fleet.Event) error {
	timestamp := time.UnixMilli(evt.Timestamp).UTC().Format(time.RFC3339)
	icon := "•"
	switch evt.Type {
	case "TaskGraphCompleted":
		icon = "done"
	case "TaskFailed", "DecompositionRejected":
		icon = "fail"
	case "TaskDispatched", "TaskAwarded":
		icon = "->"
	}
	_, err := fmt.Fprintf(f.writer, "[%s] %s %s graph=%s task=%s agent=%s\n",
		timestamp, icon, evt.Type, evt.GraphID, evt.TaskID, evt.AgentID)
	return err
}

// jsonlFormatter writes one JSON object per line, suitable for piping
// into jq.
type jsonlFormatter struct {
	writer io.Writer
}

func (f *jsonlFormatter) Format(evt fleet.Event) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", line)
	return err
}
