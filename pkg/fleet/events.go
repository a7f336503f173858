package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is a single entry on the external monitoring bus. It is a plain,
// already-decided fact (a task was dispatched, a bid arrived, a graph
// completed) - never a request the receiver is expected to act on. Nothing
// in the core subscribes to its own events; only `warren watch` and other
// external observers do.
type Event struct {
	Type      string          `json:"type"`
	Instance  string          `json:"instance"`
	Timestamp int64           `json:"timestampMs"`
	GraphID   string          `json:"graphId,omitempty"`
	TaskID    string          `json:"taskId,omitempty"`
	AgentID   string          `json:"agentId,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// Bus publishes and subscribes to the Redis-backed event stream that lets
// an operator watch a run from outside the orchestrator process. It is
// intentionally the only Redis usage in this codebase that carries
// at-most-once, no-replay semantics; anything needing replay to late
// joiners (the in-memory blackboard) does not use this transport.
type Bus struct {
	rdb      *redis.Client
	instance string
}

func NewBus(rdb *redis.Client, instance string) *Bus {
	return &Bus{rdb: rdb, instance: instance}
}

// Publish marshals evt and publishes it on the graph-wide event channel.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	evt.Instance = b.instance
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, GraphEventsChannel(b.instance), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscription wraps a Redis pub/sub subscription with a buffered Go
// channel and a Close that is safe to call more than once.
type Subscription struct {
	pubsub *redis.PubSub
	events chan Event
	errs   chan error
	once   sync.Once
}

func (s *Subscription) Events() <-chan Event { return s.events }
func (s *Subscription) Errors() <-chan error { return s.errs }

// Close tears down the underlying pub/sub connection. The events and
// errors channels are closed by the pump goroutine once it observes the
// connection gone, never here - closing them under a concurrently
// blocked sender would panic.
func (s *Subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.pubsub.Close()
	})
	return err
}

// Subscribe opens a subscription to the graph-wide event channel. The
// caller must Close the subscription when done; its goroutine exits when
// ctx is cancelled or the underlying pub/sub connection closes.
func (b *Bus) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, GraphEventsChannel(b.instance))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to event bus: %w", err)
	}

	sub := &Subscription{
		pubsub: pubsub,
		events: make(chan Event, 10),
		errs:   make(chan error, 10),
	}

	go func() {
		defer close(sub.events)
		defer close(sub.errs)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					select {
					case sub.errs <- fmt.Errorf("decode event: %w", err):
					default:
					}
					continue
				}
				select {
				case sub.events <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return sub, nil
}
