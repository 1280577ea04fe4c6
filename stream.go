package rtgraph

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/internal/runtime"
	"pipelined.dev/rtgraph/internal/schedule"
	"pipelined.dev/rtgraph/node"
)

// StartStream starts a new stream with the backend. Zero config values
// are set to defaults, the number of stream channels defaults to the
// number of graph inputs and outputs. Processors that implement
// node.StreamStarter are prepared before the stream starts.
func (cx *Context) StartStream(b backend.Backend, cfg backend.Config) error {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	if cx.state == StreamRunning {
		return &StreamStartError{Err: ErrAlreadyRunning}
	}
	if cfg.NumInputs == 0 && cfg.NumOutputs == 0 {
		cfg.NumInputs, cfg.NumOutputs = cx.numInputs, cx.numOutputs
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return &StreamStartError{Err: err}
	}

	info := cfg.StreamInfo()
	for _, id := range cx.order {
		e := cx.nodes[id]
		if starter, ok := e.processor.(node.StreamStarter); ok {
			if err := starter.NewStream(info); err != nil {
				return &StreamStartError{Err: fmt.Errorf("%s: %w", e.info.DebugName, err)}
			}
		}
	}
	cx.streamInfo = info
	cx.stopErr = nil
	// buffers are allocated for the new block size
	cx.commit()
	cx.executor.Reset(cfg.SampleRate)

	stream, err := b.Start(cfg, cx.executor.Process)
	if err != nil {
		return &StreamStartError{Err: err}
	}
	cx.stream = stream
	cx.streamDone = make(chan struct{})
	cx.state = StreamRunning
	if actual := stream.Info(); actual.MaxBlockFrames > info.MaxBlockFrames {
		cx.logger.WithFields(logrus.Fields{
			"requested": info.MaxBlockFrames,
			"actual":    actual.MaxBlockFrames,
		}).Warn("stream block is larger than requested")
		// the stream is running, so the schedule goes through the executor
		info.MaxBlockFrames = actual.MaxBlockFrames
		cx.streamInfo = info
		cx.commit()
	}
	cx.logger.WithFields(logrus.Fields{
		"sample_rate": info.SampleRate,
		"block":       info.MaxBlockFrames,
		"inputs":      info.NumStreamInputs,
		"outputs":     info.NumStreamOutputs,
	}).Info("stream started")
	return nil
}

// StopStream stops the running stream.
func (cx *Context) StopStream() error {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	if cx.state != StreamRunning {
		return ErrNotRunning
	}
	return cx.stopStream()
}

func (cx *Context) stopStream() error {
	err := cx.stream.Stop()
	close(cx.streamDone)
	cx.stream = nil
	cx.state = StreamStopped
	cx.executor.StreamStopped()
	cx.logger.Info("stream stopped")
	if err != nil {
		return fmt.Errorf("error stopping stream: %w", err)
	}
	return nil
}

// Update must be called periodically from the control goroutine. It
// checks the stream, reports processor faults, writes realtime logs,
// finalizes removed nodes and reclaims released handles. Update never
// waits for the audio callback.
//
// If the stream terminated by itself, the returned error matches
// ErrStreamStoppedUnexpectedly. It's returned by every Update until a new
// stream is started. Processor faults are returned as
// *ProcessorFaultError and don't stop the stream.
func (cx *Context) Update() error {
	cx.mu.Lock()
	defer cx.mu.Unlock()
	var errs updateErrors
	cx.pollStream()
	if cx.stopErr != nil {
		errs = append(errs, cx.stopErr)
	}

	for {
		f, ok := cx.executor.PollFault()
		if !ok {
			break
		}
		errs = append(errs, cx.faultError(f))
	}
	if lost := cx.executor.LostFaults(); lost > 0 {
		cx.logger.WithField("lost", lost).Warn("processor faults were not delivered")
	}
	cx.drainLogs()

	cx.submit()
	cx.advance()
	cx.collector.Collect()
	return errs.ret()
}

func (cx *Context) pollStream() {
	if cx.state != StreamRunning {
		return
	}
	err := cx.stream.Err()
	if err == nil {
		return
	}
	if stopErr := cx.stopStream(); stopErr != nil {
		cx.logger.WithError(stopErr).Debug("stream stopped with error")
	}
	if errors.Is(err, backend.ErrStreamFinished) {
		cx.logger.Info("stream finished")
		return
	}
	cx.stopErr = &StreamStoppedError{Err: err}
	cx.logger.WithError(err).Error("stream stopped unexpectedly")
}

func (cx *Context) faultError(f runtime.Fault) error {
	id, ok := f.Key.(NodeID)
	if !ok {
		return &ProcessorFaultError{Name: cx.name, Err: f.Err}
	}
	name := "unknown"
	if e, ok := cx.nodes[id]; ok {
		name = e.info.DebugName
	}
	return &ProcessorFaultError{Node: id, Name: name, Err: f.Err}
}

func (cx *Context) drainLogs() {
	for _, id := range cx.order {
		e := cx.nodes[id]
		if e.logger == nil {
			continue
		}
		e.logger.Drain(func(le node.LogEntry) {
			l := cx.logger.WithFields(logrus.Fields{
				"node": e.id,
				"name": e.info.DebugName,
			})
			if le.Err != nil {
				l = l.WithError(le.Err)
			}
			l.Log(le.Level, le.Message)
		})
	}
}

// advance moves nodes through the lifecycle.
func (cx *Context) advance() {
	applied := cx.executor.Applied()
	unschedule := false
	for _, id := range cx.order {
		e := cx.nodes[id]
		switch e.state {
		case NodeConstructed:
			cx.activate(e)
		case NodeDraining:
			if !e.unscheduled && (cx.state != StreamRunning || e.queue.Len() == 0) {
				e.unscheduled = true
				unschedule = true
			}
		}
	}
	if unschedule {
		cx.commit()
		applied = cx.executor.Applied()
		for _, id := range cx.order {
			e := cx.nodes[id]
			if e.unscheduled && e.removedAt == 0 {
				e.removedAt = cx.version
			}
		}
	}

	var released []*entry
	for _, id := range cx.order {
		e := cx.nodes[id]
		if e.removedAt != 0 && applied >= e.removedAt {
			released = append(released, e)
		}
	}
	for _, e := range released {
		if err := cx.destroy(e); err != nil {
			cx.logger.WithError(err).WithField("node", e.id).Error("error closing processor")
		}
	}
}

// activate marks the node active once the audio callback runs the
// schedule that contains it.
func (cx *Context) activate(e *entry) {
	if e.state == NodeConstructed && e.kind == runtime.KindNode && cx.executor.Applied() >= e.addedAt {
		e.state = NodeActive
	}
}

// destroy removes the node that is not referenced by the audio callback
// anymore.
func (cx *Context) destroy(e *entry) error {
	e.push.Lock()
	e.queue.Close()
	discarded := e.queue.Discard()
	e.events.Reset()
	e.push.Unlock()

	e.state = NodeDestroyed
	delete(cx.nodes, e.id)
	cx.destroyed[e.id] = struct{}{}
	for i, id := range cx.order {
		if id == e.id {
			cx.order = append(cx.order[:i], cx.order[i+1:]...)
			break
		}
	}
	edges := cx.edges[:0]
	for _, edge := range cx.edges {
		if edge.Src != e.id && edge.Dst != e.id {
			edges = append(edges, edge)
		}
	}
	cx.edges = edges
	e.meter.Close()
	releaseState(e.info)
	cx.logger.WithFields(logrus.Fields{
		"node":      e.id,
		"name":      e.info.DebugName,
		"discarded": discarded,
	}).Debug("node destroyed")
	return closeProcessor(e.processor)
}

// commit compiles a new schedule and submits it to the executor.
func (cx *Context) commit() {
	if cx.pending != nil {
		// the pending schedule is replaced and never runs
		for _, slot := range cx.pending.Slots {
			if e, ok := cx.nodes[slot.Key.(NodeID)]; ok {
				e.slot = slot.Prev
			}
		}
	}
	cx.pending = cx.compile()
	cx.submit()
}

// submit sends the pending schedule. If the stream is not running, the
// schedule is applied immediately.
func (cx *Context) submit() {
	if cx.pending == nil {
		return
	}
	if !cx.executor.Submit(cx.pending) {
		cx.logger.WithField("version", cx.pending.Version).Debug("schedule submit postponed")
		return
	}
	cx.pending = nil
	if cx.state != StreamRunning {
		cx.executor.Flush()
	}
}

func (cx *Context) scheduled() []NodeID {
	ids := make([]NodeID, 0, len(cx.order))
	for _, id := range cx.order {
		if !cx.nodes[id].unscheduled {
			ids = append(ids, id)
		}
	}
	return ids
}

func (cx *Context) scheduleEdges() []schedule.Edge[NodeID] {
	edges := make([]schedule.Edge[NodeID], 0, len(cx.edges))
	for _, e := range cx.edges {
		edges = append(edges, schedule.Edge[NodeID]{From: e.Src, To: e.Dst, Feedback: e.Feedback})
	}
	return edges
}

func (cx *Context) maxFrames() int {
	if cx.streamInfo.MaxBlockFrames > 0 {
		return cx.streamInfo.MaxBlockFrames
	}
	return backend.DefaultBlockFrames
}

// compile builds the schedule for scheduled nodes.
func (cx *Context) compile() *runtime.Schedule {
	order, err := schedule.Order(cx.scheduled(), cx.scheduleEdges())
	if err != nil {
		// connect rejects cycles, so this is a bug
		panic(fmt.Sprintf("rtgraph: %v", err))
	}
	maxFrames := cx.maxFrames()
	slots := make(map[NodeID]*runtime.Slot, len(order))
	s := &runtime.Schedule{
		Slots:     make([]*runtime.Slot, 0, len(order)),
		MaxFrames: maxFrames,
		Scratch:   runtime.NewScratch(scratchBuffers, maxFrames),
	}
	for _, id := range order {
		e := cx.nodes[id]
		slot := runtime.NewSlot(id, e.kind, e.info.Channels, maxFrames)
		slot.Processor = e.processor
		slot.Queue = e.queue
		slot.Events = e.events
		slot.Meter = e.meter
		slot.Logger = e.logger
		slot.Prev = e.slot
		e.slot = slot
		slots[id] = slot
		s.Slots = append(s.Slots, slot)
	}
	for _, edge := range cx.edges {
		src, ok := slots[edge.Src]
		if !ok {
			continue
		}
		dst, ok := slots[edge.Dst]
		if !ok {
			continue
		}
		dst.Connect(edge.DstChannel, runtime.Source{Slot: src, Channel: edge.SrcChannel})
		if edge.Feedback {
			src.KeepOutputs = true
		}
	}
	s.In = slots[cx.graphIn]
	s.Out = slots[cx.graphOut]
	cx.version++
	s.Version = cx.version
	return s
}

func clampChannels(n int) int {
	switch {
	case n < 0:
		return 0
	case n > int(node.MaxChannels):
		return int(node.MaxChannels)
	}
	return n
}

// streamAlive returns a check that fails once the stream is stopped or
// terminated by itself. Producers waiting for queue space use it, since
// nothing drains the queues of a dead stream.
func streamAlive(stream backend.Stream, done <-chan struct{}) func() error {
	return func() error {
		select {
		case <-done:
			return ErrNotRunning
		default:
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrNotRunning, err)
		}
		return nil
	}
}
