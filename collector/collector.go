/*
Package collector provides reference counted handles whose teardown never
runs in the realtime domain.

ArcGc wraps a value shared between the control goroutine and the audio
callback. Clone and Release are allocation free and never block. When the
last reference is released, the handle is pushed to its Collector instead
of being torn down in place. The control goroutine periodically calls
Collect, which runs the teardown hooks of retired values:

	Release()  for values implementing Releaser;
	Close()    for values implementing io.Closer.

After the hook the value is dropped and the memory is left to the garbage
collector.
*/
package collector

import (
	"io"
	"sync/atomic"

	"pipelined.dev/rtgraph/internal/threadid"
)

type (
	// Releaser is implemented by shared values that own resources which
	// must be torn down outside of the realtime domain.
	Releaser interface {
		Release()
	}

	// Collector accumulates retired handles. Retiring is lock-free and
	// can be done from any goroutine. Collect must only be called from
	// one goroutine at a time.
	Collector struct {
		head      atomic.Pointer[entry]
		pending   atomic.Int64
		retired   atomic.Uint64
		reclaimed atomic.Uint64
		thread    atomic.Int64
		onError   func(error)
	}

	// entry is embedded into every handle allocation, so retiring a
	// handle never allocates.
	entry struct {
		next  *entry
		owner reclaimer
	}

	reclaimer interface {
		reclaim(c *Collector)
	}

	// Option configures the Collector.
	Option func(*Collector)
)

var global = New()

// Global returns the process wide collector. It is used by handles
// created with a nil collector.
func Global() *Collector {
	return global
}

// WithErrorHandler sets a function that receives errors returned by Close
// hooks during Collect.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Collector) {
		c.onError = fn
	}
}

// New returns a new collector.
func New(options ...Option) *Collector {
	c := &Collector{}
	for _, option := range options {
		option(c)
	}
	return c
}

// retire pushes the entry to the stack of retired entries.
func (c *Collector) retire(e *entry) {
	c.pending.Add(1)
	c.retired.Add(1)
	for {
		old := c.head.Load()
		e.next = old
		if c.head.CompareAndSwap(old, e) {
			return
		}
	}
}

// Collect tears down all retired values in the order they were retired
// and returns their number. It must not be called from the realtime
// domain.
func (c *Collector) Collect() int {
	e := c.head.Swap(nil)
	if e == nil {
		return 0
	}
	// stack is LIFO, reverse it to reclaim in retire order.
	var ordered *entry
	for e != nil {
		next := e.next
		e.next = ordered
		ordered = e
		e = next
	}

	c.thread.Store(int64(threadid.Get()))
	n := 0
	for ordered != nil {
		next := ordered.next
		ordered.next = nil
		ordered.owner.reclaim(c)
		ordered = next
		n++
	}
	c.pending.Add(int64(-n))
	c.reclaimed.Add(uint64(n))
	return n
}

// Pending returns the number of retired values waiting for Collect.
func (c *Collector) Pending() int {
	return int(c.pending.Load())
}

// Retired returns the total number of values retired to this collector.
func (c *Collector) Retired() uint64 {
	return c.retired.Load()
}

// Reclaimed returns the total number of values reclaimed by Collect.
func (c *Collector) Reclaimed() uint64 {
	return c.reclaimed.Load()
}

// Thread returns the OS thread id of the last Collect call.
func (c *Collector) Thread() int {
	return int(c.thread.Load())
}

func (c *Collector) teardown(v any) {
	switch r := v.(type) {
	case Releaser:
		r.Release()
	case io.Closer:
		if err := r.Close(); err != nil && c.onError != nil {
			c.onError(err)
		}
	}
}
