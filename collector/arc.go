package collector

import (
	"fmt"
	"sync/atomic"
)

type (
	// ArcGc is a shared handle to a value of type T. The zero value is a
	// nil handle. Handles are comparable: two handles are equal if they
	// point to the same allocation.
	//
	// Clone, Release and Get may be called from the realtime domain.
	ArcGc[T any] struct {
		p *arcInner[T]
	}

	arcInner[T any] struct {
		entry
		refs      atomic.Int64
		collector *Collector
		value     T
	}
)

// NewArc wraps v into a handle with a single reference. Retired handles go
// to c, or to the Global collector if c is nil. NewArc allocates and must
// be called from the control domain.
func NewArc[T any](c *Collector, v T) ArcGc[T] {
	if c == nil {
		c = global
	}
	in := &arcInner[T]{
		collector: c,
		value:     v,
	}
	in.owner = in
	in.refs.Store(1)
	return ArcGc[T]{p: in}
}

// Clone returns a new reference to the same value.
func (h ArcGc[T]) Clone() ArcGc[T] {
	if h.p != nil {
		h.p.refs.Add(1)
	}
	return h
}

// Release drops this reference. The handle must not be used after
// Release. If it was the last reference, the value is handed to the
// collector; nothing is torn down in place.
func (h ArcGc[T]) Release() {
	if h.p == nil {
		return
	}
	switch n := h.p.refs.Add(-1); {
	case n == 0:
		h.p.collector.retire(&h.p.entry)
	case n < 0:
		panic("collector: release of a released handle")
	}
}

// Get returns a pointer to the shared value. Nil is returned for a nil
// handle. The value must be treated as immutable.
func (h ArcGc[T]) Get() *T {
	if h.p == nil {
		return nil
	}
	return &h.p.value
}

// IsNil returns true for the zero handle.
func (h ArcGc[T]) IsNil() bool {
	return h.p == nil
}

// RefCount returns the current number of references.
func (h ArcGc[T]) RefCount() int {
	if h.p == nil {
		return 0
	}
	return int(h.p.refs.Load())
}

// String implements fmt.Stringer.
func (h ArcGc[T]) String() string {
	if h.p == nil {
		return "ArcGc(nil)"
	}
	return fmt.Sprintf("ArcGc(%p)", h.p)
}

func (in *arcInner[T]) reclaim(c *Collector) {
	c.teardown(any(in.value))
	var zero T
	in.value = zero
}
