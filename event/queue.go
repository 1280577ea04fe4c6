package event

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"pipelined.dev/rtgraph/internal/ring"
)

var (
	// ErrClosed is returned when an event is pushed into a closed queue.
	ErrClosed = errors.New("event queue is closed")
	// ErrFull is returned when the queue is full and the policy doesn't
	// allow to wait.
	ErrFull = errors.New("event queue is full")
)

// Policy defines what the producer does when the queue is full. The
// consumer never waits regardless of the policy.
type Policy uint8

// Producer policies.
const (
	// Backpressure makes the producer retry until there is space or the
	// context is done. Nothing is dropped.
	Backpressure Policy = iota
	// DropNewest discards the event being pushed.
	DropNewest
	// DropOldest discards the oldest queued event to make room.
	DropOldest
	// Fail returns ErrFull to the producer.
	Fail
)

func (p Policy) String() string {
	switch p {
	case Backpressure:
		return "backpressure"
	case DropNewest:
		return "drop-newest"
	case DropOldest:
		return "drop-oldest"
	case Fail:
		return "fail"
	}
	return "unknown"
}

// ParsePolicy parses the policy name as returned by String.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range []Policy{Backpressure, DropNewest, DropOldest, Fail} {
		if p.String() == s {
			return p, nil
		}
	}
	return Backpressure, errors.New("unknown queue policy: " + s)
}

const (
	minBackoff = 50 * time.Microsecond
	maxBackoff = 5 * time.Millisecond
)

// Queue is a bounded FIFO of events for a single node. Push must be
// called from one control goroutine at a time, Drain from the audio
// callback only.
type Queue struct {
	ring    *ring.Ring[Event]
	policy  Policy
	closed  atomic.Bool
	dropped atomic.Uint64
}

// NewQueue returns a queue for at least capacity events.
func NewQueue(capacity int, policy Policy) *Queue {
	return &Queue{
		ring:   ring.New[Event](capacity),
		policy: policy,
	}
}

// TryPush pushes the event if there is space. It never waits and ignores
// the policy.
func (q *Queue) TryPush(e Event) bool {
	if q.closed.Load() {
		return false
	}
	return q.ring.Push(e)
}

// Push pushes the event applying the queue policy when it's full. With
// Backpressure policy Push waits until there is space or ctx is done.
// Events that are dropped are released.
func (q *Queue) Push(ctx context.Context, e Event) error {
	return q.PushUntil(ctx, e, nil)
}

// PushUntil is like Push, but with Backpressure policy it also stops
// waiting when stop returns an error. The error is returned as is. Stop
// is called between retries and may be nil.
func (q *Queue) PushUntil(ctx context.Context, e Event, stop func() error) error {
	if q.closed.Load() {
		return ErrClosed
	}
	if q.ring.Push(e) {
		return nil
	}

	switch q.policy {
	case DropNewest:
		q.dropped.Add(1)
		e.Release()
		return nil
	case DropOldest:
		for !q.ring.Push(e) {
			if old, ok := q.ring.Pop(); ok {
				q.dropped.Add(1)
				old.Release()
			}
		}
		return nil
	case Fail:
		return ErrFull
	}

	backoff := minBackoff
	timer := time.NewTimer(backoff)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if q.closed.Load() {
			return ErrClosed
		}
		if q.ring.Push(e) {
			return nil
		}
		if stop != nil {
			if err := stop(); err != nil {
				return err
			}
		}
		if backoff < maxBackoff {
			backoff *= 2
		}
		timer.Reset(backoff)
	}
}

// Drain moves all events available at this moment into dst, in the order
// they were pushed. Events left in dst from the previous block are
// released first. Drain never waits and never allocates.
func (q *Queue) Drain(dst *ProcEvents) {
	dst.Reset()
	for dst.n < len(dst.buf) {
		e, ok := q.ring.Pop()
		if !ok {
			return
		}
		dst.buf[dst.n] = e
		dst.n++
	}
}

// Discard releases all queued events. It must only be called when no
// consumer is running.
func (q *Queue) Discard() int {
	n := 0
	for {
		e, ok := q.ring.Pop()
		if !ok {
			return n
		}
		e.Release()
		n++
	}
}

// Close stops the queue from accepting new events. Queued events can
// still be drained.
func (q *Queue) Close() {
	q.closed.Store(true)
}

// Closed returns true if the queue was closed.
func (q *Queue) Closed() bool {
	return q.closed.Load()
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return q.ring.Len()
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return q.ring.Cap()
}

// Dropped returns the number of events dropped by the policy.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Policy returns the queue policy.
func (q *Queue) Policy() Policy {
	return q.policy
}
