package rtgraph

import (
	"github.com/rs/xid"
)

// NodeID identifies a node in the graph. Ids are never reused.
type NodeID struct {
	id xid.ID
}

func newNodeID() NodeID {
	return NodeID{id: xid.New()}
}

// IsNil returns true for the zero id.
func (id NodeID) IsNil() bool {
	return id.id.IsNil()
}

func (id NodeID) String() string {
	return id.id.String()
}

// NodeState identifies the lifecycle stage of a node.
type NodeState int

// Node states.
const (
	// NodeRegistered means the node was added, but its processor is not
	// constructed yet.
	NodeRegistered NodeState = iota
	// NodeConstructed means the processor was constructed and sent to
	// the audio callback.
	NodeConstructed
	// NodeActive means the audio callback processes the node.
	NodeActive
	// NodeDraining means the node was removed and waits for its queued
	// events to be consumed.
	NodeDraining
	// NodeDestroyed means the node is not processed anymore and its
	// processor is closed.
	NodeDestroyed
)

func (s NodeState) String() string {
	switch s {
	case NodeRegistered:
		return "registered"
	case NodeConstructed:
		return "constructed"
	case NodeActive:
		return "active"
	case NodeDraining:
		return "draining"
	case NodeDestroyed:
		return "destroyed"
	}
	return "unknown"
}

// StreamState identifies the state of the audio stream.
type StreamState int

// Stream states.
const (
	StreamNotStarted StreamState = iota
	StreamRunning
	StreamStopped
)

func (s StreamState) String() string {
	switch s {
	case StreamNotStarted:
		return "not started"
	case StreamRunning:
		return "running"
	case StreamStopped:
		return "stopped"
	}
	return "unknown"
}

type (
	// Edge connects an output channel of the source node to an input
	// channel of the destination node. Feedback edges deliver the most
	// recent output of the source and are not used for ordering.
	Edge struct {
		Src        NodeID
		SrcChannel int
		Dst        NodeID
		DstChannel int
		Feedback   bool
	}

	// ChannelPair maps a source output channel to a destination input
	// channel.
	ChannelPair struct {
		Src int
		Dst int
	}
)

var (
	// Mono connects the first channels.
	Mono = []ChannelPair{{0, 0}}
	// Stereo connects the first two channels.
	Stereo = []ChannelPair{{0, 0}, {1, 1}}
)
