package rtgraph

import (
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/internal/runtime"
	"pipelined.dev/rtgraph/log"
	"pipelined.dev/rtgraph/metric"
	"pipelined.dev/rtgraph/node"
)

const (
	defaultQueueCapacity = 128
	defaultGraphOutputs  = 2
	realtimeLogCapacity  = 32
	scratchBuffers       = 4
)

type (
	// Context owns the graph. All methods are called from the control
	// domain and are safe for concurrent use.
	Context struct {
		mu            sync.Mutex
		name          string
		logger        logrus.FieldLogger
		collector     *collector.Collector
		executor      *runtime.Executor
		queueCapacity int
		queuePolicy   event.Policy
		metrics       bool
		numInputs     int
		numOutputs    int

		graphIn   NodeID
		graphOut  NodeID
		nodes     map[NodeID]*entry
		order     []NodeID
		edges     []Edge
		destroyed map[NodeID]struct{}

		// version of the last compiled schedule.
		version uint64
		// pending schedule that didn't fit into the executor.
		pending *runtime.Schedule

		state      StreamState
		stream     backend.Stream
		streamInfo node.StreamInfo
		// streamDone is closed when the stream is stopped.
		streamDone chan struct{}
		// stopErr is kept until the next start.
		stopErr error
	}

	// entry is the control side record of a node.
	entry struct {
		id        NodeID
		kind      runtime.SlotKind
		info      node.Info
		state     NodeState
		processor node.Processor
		queue     *event.Queue
		events    *event.ProcEvents
		logger    *node.RealtimeLogger
		meter     *metric.Meter
		// slot in the last compiled schedule.
		slot *runtime.Slot
		// version of the schedule that added the node.
		addedAt uint64
		// unscheduled is set when the node is excluded from the schedule.
		unscheduled bool
		// version of the schedule that removed the node.
		removedAt uint64
		// serializes producers of the queue.
		push sync.Mutex
	}
)

// New returns a new graph with input and output nodes.
func New(options ...Option) *Context {
	cx := &Context{
		name:          "graph",
		collector:     collector.Global(),
		executor:      runtime.NewExecutor(),
		queueCapacity: defaultQueueCapacity,
		queuePolicy:   event.Backpressure,
		numOutputs:    defaultGraphOutputs,
		nodes:         make(map[NodeID]*entry),
		destroyed:     make(map[NodeID]struct{}),
	}
	for _, option := range options {
		option(cx)
	}
	if cx.logger == nil {
		cx.logger = log.GetLogger()
	}
	cx.logger = cx.logger.WithField("graph", cx.name)

	cx.graphIn = cx.addGraphNode(runtime.KindGraphIn, node.Info{
		DebugName: "graph_in",
		Channels:  node.ChannelConfig{NumOutputs: node.ChannelCount(cx.numInputs)},
	})
	cx.graphOut = cx.addGraphNode(runtime.KindGraphOut, node.Info{
		DebugName: "graph_out",
		Channels:  node.ChannelConfig{NumInputs: node.ChannelCount(cx.numOutputs)},
	})
	cx.commit()
	return cx
}

func (cx *Context) addGraphNode(kind runtime.SlotKind, info node.Info) NodeID {
	e := &entry{
		id:    newNodeID(),
		kind:  kind,
		info:  info,
		state: NodeActive,
	}
	cx.nodes[e.id] = e
	cx.order = append(cx.order, e.id)
	return e.id
}

// GraphInputNodeID returns the id of the node that outputs the stream
// input.
func (cx *Context) GraphInputNodeID() NodeID {
	return cx.graphIn
}

// GraphOutputNodeID returns the id of the node whose inputs are written
// to the stream output.
func (cx *Context) GraphOutputNodeID() NodeID {
	return cx.graphOut
}

// NodeState returns the lifecycle state of the node. False is returned
// if the node is unknown.
func (cx *Context) NodeState(id NodeID) (NodeState, bool) {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	if _, ok := cx.destroyed[id]; ok {
		return NodeDestroyed, true
	}
	e, ok := cx.nodes[id]
	if !ok {
		return NodeRegistered, false
	}
	cx.activate(e)
	return e.state, true
}

// NodeInfo returns the info of the node.
func (cx *Context) NodeInfo(id NodeID) (node.Info, bool) {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	e, ok := cx.nodes[id]
	if !ok {
		return node.Info{}, false
	}
	return e.info, true
}

// Nodes returns ids of nodes that are not destroyed, in the order they
// were added.
func (cx *Context) Nodes() []NodeID {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	ids := make([]NodeID, len(cx.order))
	copy(ids, cx.order)
	return ids
}

// Edges returns all connections of the graph.
func (cx *Context) Edges() []Edge {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	edges := make([]Edge, len(cx.edges))
	copy(edges, cx.edges)
	return edges
}

// StreamState returns the state of the stream.
func (cx *Context) StreamState() StreamState {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	return cx.state
}

// StreamInfo returns the parameters of the running or last stream.
func (cx *Context) StreamInfo() node.StreamInfo {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	return cx.streamInfo
}

// Collector returns the collector used by the graph.
func (cx *Context) Collector() *collector.Collector {
	return cx.collector
}

// Close stops the stream and destroys all nodes.
func (cx *Context) Close() error {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	var errs updateErrors
	if cx.state == StreamRunning {
		if err := cx.stopStream(); err != nil {
			errs = append(errs, err)
		}
	}
	ids := make([]NodeID, len(cx.order))
	copy(ids, cx.order)
	for _, id := range ids {
		e := cx.nodes[id]
		if e.kind != runtime.KindNode {
			continue
		}
		if err := cx.destroy(e); err != nil {
			errs = append(errs, err)
		}
	}
	cx.commit()
	cx.collector.Collect()
	return errs.ret()
}
