package rtgraph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/internal/runtime"
	"pipelined.dev/rtgraph/internal/schedule"
	"pipelined.dev/rtgraph/metric"
	"pipelined.dev/rtgraph/node"
	"pipelined.dev/rtgraph/param"
)

var validate = validator.New()

// AddNode adds a new node to the graph. Nil config means default config:
// the zero value or the result of Default method if C has one. The
// processor is constructed before AddNode returns. If the node fails to
// construct, the graph is not modified.
func AddNode[C any](cx *Context, n node.AudioNode[C], config *C) (NodeID, error) {
	var c C
	if config != nil {
		c = *config
	} else if d, ok := any(c).(interface{ Default() C }); ok {
		c = d.Default()
	}
	if err := validateConfig(c); err != nil {
		return NodeID{}, err
	}
	info := n.Info(c)
	if err := info.Channels.Validate(); err != nil {
		return NodeID{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	cx.mu.Lock()
	defer cx.mu.Unlock()
	e := &entry{
		id:    newNodeID(),
		kind:  runtime.KindNode,
		info:  info,
		state: NodeRegistered,
	}
	p, err := n.ConstructProcessor(c, node.NewConstructContext(cx.streamInfo, cx.collector, info.CustomState))
	if err != nil {
		releaseState(info)
		return NodeID{}, fmt.Errorf("error constructing %s processor: %w", info.DebugName, err)
	}
	if cx.state == StreamRunning {
		if starter, ok := p.(node.StreamStarter); ok {
			if err := starter.NewStream(cx.streamInfo); err != nil {
				closeProcessor(p)
				releaseState(info)
				return NodeID{}, fmt.Errorf("error starting %s processor: %w", info.DebugName, err)
			}
		}
	}

	e.processor = p
	e.queue = event.NewQueue(cx.queueCapacity, cx.queuePolicy)
	e.events = event.NewProcEvents(e.queue.Cap())
	e.logger = node.NewRealtimeLogger(realtimeLogCapacity)
	if cx.metrics {
		e.meter = metric.NewMeter(info.DebugName)
		e.meter.Reset(cx.streamInfo.SampleRate)
	}
	e.state = NodeConstructed
	cx.nodes[e.id] = e
	cx.order = append(cx.order, e.id)
	cx.commit()
	e.addedAt = cx.version
	cx.activate(e)

	cx.logger.WithFields(logrus.Fields{
		"node":     e.id,
		"name":     info.DebugName,
		"channels": info.Channels,
	}).Debug("node added")
	return e.id, nil
}

func validateConfig(c any) error {
	v := reflect.ValueOf(c)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Struct {
		if err := validate.Struct(v.Interface()); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if vc, ok := c.(interface{ Validate() error }); ok {
		if err := vc.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// RemoveNode removes the node from the graph. The node stops accepting
// events and is processed until its queued events are consumed. Then it's
// removed from the schedule with all its connections. The processor is
// closed during Update after the audio callback released it.
func (cx *Context) RemoveNode(id NodeID) error {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	e, ok := cx.nodes[id]
	if !ok {
		return fmt.Errorf("remove %v: %w", id, ErrNodeNotFound)
	}
	if e.kind != runtime.KindNode || e.state == NodeDraining {
		return fmt.Errorf("remove %s %v: %w", e.info.DebugName, id, ErrInvalidState)
	}
	e.state = NodeDraining
	e.queue.Close()
	cx.logger.WithField("node", id).Debug("node draining")
	cx.advance()
	return nil
}

// Connect connects output channels of src to input channels of dst. All
// pairs are connected or none. Connections that create a cycle are
// rejected unless allowFeedback is set, in which case they become
// feedback edges.
func (cx *Context) Connect(src, dst NodeID, pairs []ChannelPair, allowFeedback bool) error {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	s, d, err := cx.connectable(src, dst)
	if err != nil {
		return &ConnectError{Src: src, Dst: dst, Err: err}
	}

	added := make([]Edge, 0, len(pairs))
	for _, pair := range pairs {
		if pair.Src < 0 || pair.Src >= int(s.info.Channels.NumOutputs) ||
			pair.Dst < 0 || pair.Dst >= int(d.info.Channels.NumInputs) {
			return &ConnectError{Src: src, Dst: dst, Pair: pair, Err: ErrChannelOutOfRange}
		}
		edge := Edge{Src: src, SrcChannel: pair.Src, Dst: dst, DstChannel: pair.Dst}
		if containsEdge(cx.edges, edge) || containsEdge(added, edge) {
			return &ConnectError{Src: src, Dst: dst, Pair: pair, Err: ErrDuplicateEdge}
		}
		added = append(added, edge)
	}

	if schedule.WouldCycle(cx.order, cx.scheduleEdges(), schedule.Edge[NodeID]{From: src, To: dst}) {
		if !allowFeedback {
			return &ConnectError{Src: src, Dst: dst, Err: ErrCycle}
		}
		for i := range added {
			added[i].Feedback = true
		}
	}

	cx.edges = append(cx.edges, added...)
	cx.commit()
	cx.logger.WithFields(logrus.Fields{
		"src":   s.info.DebugName,
		"dst":   d.info.DebugName,
		"pairs": len(added),
	}).Debug("nodes connected")
	return nil
}

// ConnectChannel connects a single channel of src to a channel of dst.
func (cx *Context) ConnectChannel(src NodeID, srcChannel int, dst NodeID, dstChannel int, allowFeedback bool) error {
	return cx.Connect(src, dst, []ChannelPair{{Src: srcChannel, Dst: dstChannel}}, allowFeedback)
}

// Disconnect removes connections between src and dst. All pairs are
// removed or none.
func (cx *Context) Disconnect(src, dst NodeID, pairs []ChannelPair) error {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	if _, _, err := cx.connectable(src, dst); err != nil {
		return &ConnectError{Src: src, Dst: dst, Err: err}
	}
	for _, pair := range pairs {
		edge := Edge{Src: src, SrcChannel: pair.Src, Dst: dst, DstChannel: pair.Dst}
		if !containsEdge(cx.edges, edge) {
			return &ConnectError{Src: src, Dst: dst, Pair: pair, Err: ErrEdgeNotFound}
		}
	}
	edges := cx.edges[:0]
	for _, e := range cx.edges {
		if e.Src == src && e.Dst == dst && containsPair(pairs, e) {
			continue
		}
		edges = append(edges, e)
	}
	cx.edges = edges
	cx.commit()
	return nil
}

func (cx *Context) connectable(src, dst NodeID) (*entry, *entry, error) {
	s, ok := cx.nodes[src]
	if !ok {
		return nil, nil, ErrNodeNotFound
	}
	d, ok := cx.nodes[dst]
	if !ok {
		return nil, nil, ErrNodeNotFound
	}
	if s.state == NodeDraining || d.state == NodeDraining {
		return nil, nil, ErrInvalidState
	}
	return s, d, nil
}

func containsEdge(edges []Edge, edge Edge) bool {
	for _, e := range edges {
		if e.Src == edge.Src && e.Dst == edge.Dst && e.SrcChannel == edge.SrcChannel && e.DstChannel == edge.DstChannel {
			return true
		}
	}
	return false
}

func containsPair(pairs []ChannelPair, e Edge) bool {
	for _, pair := range pairs {
		if pair.Src == e.SrcChannel && pair.Dst == e.DstChannel {
			return true
		}
	}
	return false
}

// QueueEventFor queues the event for the node. Events for the same node
// are delivered in the order they were queued. The event is released if
// it can't be queued.
func (cx *Context) QueueEventFor(id NodeID, e event.Event) error {
	return cx.QueueEventForContext(context.Background(), id, e)
}

// QueueEventForContext is like QueueEventFor, but it stops waiting for
// space in the queue when ctx is done. If the stream is not running, a
// full queue can't be drained and ErrQueueFull is returned instead of
// waiting. A producer that waits while the stream stops or dies gets an
// error matching both ErrQueueFull and ErrNotRunning.
func (cx *Context) QueueEventForContext(ctx context.Context, id NodeID, e event.Event) error {
	cx.mu.Lock()
	n, ok := cx.nodes[id]
	running := cx.state == StreamRunning
	var alive func() error
	if running {
		alive = streamAlive(cx.stream, cx.streamDone)
	}
	cx.mu.Unlock()
	if !ok {
		e.Release()
		return fmt.Errorf("queue event for %v: %w", id, ErrNodeNotFound)
	}
	if n.queue == nil {
		e.Release()
		return fmt.Errorf("queue event for %s: %w", n.info.DebugName, ErrInvalidState)
	}

	n.push.Lock()
	defer n.push.Unlock()
	var err error
	if !running && n.queue.Policy() == event.Backpressure {
		if n.queue.Closed() {
			err = event.ErrClosed
		} else if !n.queue.TryPush(e) {
			err = ErrQueueFull
		}
	} else {
		err = n.queue.PushUntil(ctx, e, alive)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotRunning):
		err = fmt.Errorf("%w: %w", ErrQueueFull, err)
	case errors.Is(err, event.ErrClosed):
		err = ErrInvalidState
	case errors.Is(err, event.ErrFull):
		err = ErrQueueFull
	}
	e.Release()
	return fmt.Errorf("queue event for %s: %w", n.info.DebugName, err)
}

// SyncParams queues patches for all changes of the memo value since the
// last successful sync. The patches are applied by the processor in the
// order of the parameter fields. If a patch can't be queued, the memo
// baseline is kept and the same changes are sent again by the next sync.
func SyncParams[T param.Differ[T]](cx *Context, id NodeID, memo *param.Memo[T]) error {
	patches := memo.Pending()
	if len(patches) == 0 {
		return nil
	}
	if isDebug(cx.logger) {
		cx.logger.WithField("node", id).Debugf("sync params:\n%s", param.Describe(memo.Baseline(), memo.Value))
	}
	for i, p := range patches {
		if err := cx.QueueEventFor(id, event.FromPatch(p)); err != nil {
			for _, rest := range patches[i+1:] {
				rest.Data.Release()
			}
			return err
		}
	}
	memo.Commit()
	return nil
}

func isDebug(l logrus.FieldLogger) bool {
	switch l := l.(type) {
	case *logrus.Logger:
		return l.IsLevelEnabled(logrus.DebugLevel)
	case *logrus.Entry:
		return l.Logger.IsLevelEnabled(logrus.DebugLevel)
	}
	return false
}

func releaseState(info node.Info) {
	if r, ok := info.CustomState.(collector.Releaser); ok {
		r.Release()
	}
}

func closeProcessor(p node.Processor) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
