// Package blackboard implements a shared signal board that
// delivers, on Subscribe, the most recently published value for a key
// (if any) before any subsequent Publish is observed, and thereafter
// delivers every publish to that key exactly once per live subscriber.
//
// This is deliberately NOT built on the Redis pub/sub transport the rest
// of this module favors: Redis pub/sub is fire-and-forget with no
// replay to late joiners, which cannot express "last value on
// subscribe". A single mailbox goroutine guarding an in-process map and
// a per-key fan-out set gives both guarantees directly.
package blackboard

import (
	"context"
	"log"
	"strings"
)

// Signal is a published key/value pair with its publisher's identity.
// Publisher authorization is advisory only: the board does not reject a
// publish from a different agent than a prior one on the same key.
type Signal struct {
	Key         string
	Value       string
	PublisherID string
}

type subscriber struct {
	ch     chan Signal
	prefix string
}

// Board is the single-threaded mailbox actor owning all signal state.
type Board struct {
	instance string
	inbox    chan func()

	values      map[string]Signal
	subscribers map[int]*subscriber
	nextSubID   int
}

func NewBoard(instance string) *Board {
	return &Board{
		instance:    instance,
		inbox:       make(chan func(), 64),
		values:      map[string]Signal{},
		subscribers: map[int]*subscriber{},
	}
}

// QueueDepth reports how many pending actions are waiting in the inbox.
func (b *Board) QueueDepth() int {
	return len(b.inbox)
}

func (b *Board) Run(ctx context.Context) {
	log.Printf("[INFO] blackboard starting instance=%s", b.instance)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[INFO] blackboard shutting down instance=%s", b.instance)
			b.closeAll()
			return
		case action := <-b.inbox:
			action()
		}
	}
}

func (b *Board) do(ctx context.Context, fn func()) {
	done := make(chan struct{})
	b.inbox <- func() {
		fn()
		close(done)
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (b *Board) closeAll() {
	for _, s := range b.subscribers {
		close(s.ch)
	}
	b.subscribers = map[int]*subscriber{}
}

// Publish stores the signal as the key's current value and fans it out
// to every live subscriber whose prefix matches, synchronously with
// respect to the board's own processing order: a Subscribe call that
// returns before this Publish runs sees the prior value (or none); one
// that returns after sees this one as current.
func (b *Board) Publish(ctx context.Context, sig Signal) {
	b.do(ctx, func() {
		b.values[sig.Key] = sig
		for _, s := range b.subscribers {
			if strings.HasPrefix(sig.Key, s.prefix) {
				select {
				case s.ch <- sig:
				default:
					log.Printf("[WARN] blackboard: subscriber channel full, dropping signal key=%s", sig.Key)
				}
			}
		}
	})
}

// Subscription is returned by Subscribe; Signals() delivers the current
// value for the subscribed prefix (if any existed at subscribe time) as
// its first element, followed by every subsequent publish.
type Subscription struct {
	board *Board
	id    int
	ch    chan Signal
}

func (s *Subscription) Signals() <-chan Signal { return s.ch }

// Close unregisters the subscription. Idempotent.
func (s *Subscription) Close(ctx context.Context) {
	s.board.do(ctx, func() {
		if sub, ok := s.board.subscribers[s.id]; ok {
			close(sub.ch)
			delete(s.board.subscribers, s.id)
		}
	})
}

// Subscribe registers interest in every key with the given prefix
// (an exact key match is just a prefix equal to that key). If a value
// is already published for a key under that prefix, every such current
// value is delivered before the subscription returns ready for live
// updates - satisfying the last-value-on-subscribe invariant exactly
// once per key.
func (b *Board) Subscribe(ctx context.Context, prefix string) *Subscription {
	sub := &Subscription{board: b, ch: make(chan Signal, 16)}
	b.do(ctx, func() {
		b.nextSubID++
		sub.id = b.nextSubID
		b.subscribers[sub.id] = &subscriber{ch: sub.ch, prefix: prefix}
		for key, sig := range b.values {
			if strings.HasPrefix(key, prefix) {
				select {
				case sub.ch <- sig:
				default:
					log.Printf("[WARN] blackboard: subscriber channel full replaying initial value key=%s", key)
				}
			}
		}
	})
	return sub
}

// ListSignals returns every current signal whose key has the given
// prefix (empty prefix matches everything), for inspection tools like
// the health server's /signals endpoint.
func (b *Board) ListSignals(ctx context.Context, prefix string) []Signal {
	var out []Signal
	b.do(ctx, func() {
		for key, sig := range b.values {
			if strings.HasPrefix(key, prefix) {
				out = append(out, sig)
			}
		}
	})
	return out
}
