package event

import "pipelined.dev/rtgraph/param"

// ProcEvents is the list of events drained for a node in the current
// block. It is allocated once per node and reused for every block.
// Taking an event out with Next, NextPatch or NextCustom moves ownership
// of its shared references to the caller; events that are not taken are
// released when the block ends.
type ProcEvents struct {
	buf []Event
	n   int
	pos int
}

// NewProcEvents returns a list that holds up to capacity events. It
// should be at least the capacity of the node queue.
func NewProcEvents(capacity int) *ProcEvents {
	return &ProcEvents{
		buf: make([]Event, capacity),
	}
}

// Len returns the number of events not yet taken.
func (p *ProcEvents) Len() int {
	return p.n - p.pos
}

// Next takes the next event.
func (p *ProcEvents) Next() (Event, bool) {
	if p.pos >= p.n {
		return Event{}, false
	}
	e := p.buf[p.pos]
	p.buf[p.pos] = Event{}
	p.pos++
	return e, true
}

// NextPatch takes the next param event. Custom events in between are
// released and skipped.
func (p *ProcEvents) NextPatch() (param.Patch, bool) {
	for {
		e, ok := p.Next()
		if !ok {
			return param.Patch{}, false
		}
		if e.Kind == KindParam {
			return e.Patch, true
		}
		e.Release()
	}
}

// NextCustom takes the next custom event. Param events in between are
// released and skipped.
func (p *ProcEvents) NextCustom() (any, bool) {
	for {
		e, ok := p.Next()
		if !ok {
			return nil, false
		}
		if e.Kind == KindCustom {
			return e.Custom, true
		}
		e.Release()
	}
}

// Reset releases all events that were not taken and empties the list.
func (p *ProcEvents) Reset() {
	for i := p.pos; i < p.n; i++ {
		p.buf[i].Release()
		p.buf[i] = Event{}
	}
	p.n, p.pos = 0, 0
}
