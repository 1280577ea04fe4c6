// Package event provides the per-node transport that carries patches and
// custom messages from the control goroutine to the audio callback.
package event

import (
	"fmt"

	"pipelined.dev/rtgraph/param"
)

// Kind identifies the event variant.
type Kind uint8

// Event kinds.
const (
	KindParam Kind = iota + 1
	KindCustom
)

// Event is an envelope queued for a single node.
type Event struct {
	Kind   Kind
	Patch  param.Patch
	Custom any
}

// Param returns an event that patches the field at path.
func Param(path param.Path, data param.Data) Event {
	return Event{Kind: KindParam, Patch: param.Patch{Path: path, Data: data}}
}

// FromPatch wraps a patch into an event.
func FromPatch(p param.Patch) Event {
	return Event{Kind: KindParam, Patch: p}
}

// Custom returns an event carrying a node-defined message. Messages that
// hold shared references should implement param.Releaser.
func Custom(v any) Event {
	return Event{Kind: KindCustom, Custom: v}
}

// Release drops shared references held by the event. It's called for
// events that are discarded without being consumed.
func (e Event) Release() {
	switch e.Kind {
	case KindParam:
		e.Patch.Data.Release()
	case KindCustom:
		if r, ok := e.Custom.(param.Releaser); ok {
			r.Release()
		}
	}
}

// String implements fmt.Stringer.
func (e Event) String() string {
	switch e.Kind {
	case KindParam:
		return fmt.Sprintf("event.Param(%v)", e.Patch)
	case KindCustom:
		return fmt.Sprintf("event.Custom(%v)", e.Custom)
	}
	return "event.None"
}
