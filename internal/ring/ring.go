// Package ring provides a bounded lock-free queue that is safe to use
// between the control goroutine and the realtime callback.
//
// Every cell carries a sequence number that tells whether the cell is
// ready to be written or read at the current position, so neither side
// ever waits for the other. All memory is allocated by New.
package ring

import (
	"sync/atomic"
)

// cacheLine is used to keep the positions of both sides apart.
const cacheLine = 64

type (
	cell[T any] struct {
		seq   atomic.Uint64
		value T
	}

	// Ring is a bounded queue of T. Push and Pop never block and never
	// allocate.
	Ring[T any] struct {
		mask  uint64
		cells []cell[T]
		_     [cacheLine]byte
		head  atomic.Uint64
		_     [cacheLine]byte
		tail  atomic.Uint64
	}
)

// New returns a ring that holds at least capacity values. Capacity is
// rounded up to the next power of two.
func New[T any](capacity int) *Ring[T] {
	size := uint64(2)
	for size < uint64(capacity) {
		size <<= 1
	}
	r := &Ring[T]{
		mask:  size - 1,
		cells: make([]cell[T], size),
	}
	for i := range r.cells {
		r.cells[i].seq.Store(uint64(i))
	}
	return r
}

// Push appends v to the ring. False is returned if the ring is full.
func (r *Ring[T]) Push(v T) bool {
	pos := r.tail.Load()
	for {
		c := &r.cells[pos&r.mask]
		seq := c.seq.Load()
		switch dif := int64(seq) - int64(pos); {
		case dif == 0:
			if r.tail.CompareAndSwap(pos, pos+1) {
				c.value = v
				c.seq.Store(pos + 1)
				return true
			}
			pos = r.tail.Load()
		case dif < 0:
			return false
		default:
			pos = r.tail.Load()
		}
	}
}

// Pop removes the oldest value from the ring. False is returned if the
// ring is empty.
func (r *Ring[T]) Pop() (T, bool) {
	var zero T
	pos := r.head.Load()
	for {
		c := &r.cells[pos&r.mask]
		seq := c.seq.Load()
		switch dif := int64(seq) - int64(pos+1); {
		case dif == 0:
			if r.head.CompareAndSwap(pos, pos+1) {
				v := c.value
				c.value = zero
				c.seq.Store(pos + r.mask + 1)
				return v, true
			}
			pos = r.head.Load()
		case dif < 0:
			return zero, false
		default:
			pos = r.head.Load()
		}
	}
}

// Len returns the number of values in the ring. The result is a snapshot
// and may be stale by the time it is used.
func (r *Ring[T]) Len() int {
	for {
		head := r.head.Load()
		tail := r.tail.Load()
		if head != r.head.Load() {
			continue
		}
		if tail < head {
			return 0
		}
		return int(tail - head)
	}
}

// Cap returns the capacity of the ring.
func (r *Ring[T]) Cap() int {
	return len(r.cells)
}
