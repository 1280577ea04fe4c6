package nodes

import (
	"errors"
	"sync/atomic"

	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/node"
	"pipelined.dev/rtgraph/param"
)

// ErrMissingDummy is reported by the dummy processor when its handle was
// cleared.
var ErrMissingDummy = errors.New("dummy handle is not set")

// errNoDummyState is returned if the dummy processor is constructed
// without the state returned by Info.
var errNoDummyState = errors.New("dummy state is missing")

type (
	// DummyInner is the value shared through the dummy handle.
	DummyInner struct{}

	// SharedState is shared by the dummy node and its processor.
	SharedState struct {
		received uint64
		mirrored atomic.Pointer[DummyInner]
	}

	// DummyState is the custom state of the dummy node.
	DummyState struct {
		Shared collector.ArcGc[SharedState]
	}

	// DummyConfig is the dummy node config.
	DummyConfig struct{}

	// DummyParams holds an optional shared handle.
	DummyParams struct {
		Dummy param.Option[collector.ArcGc[DummyInner]]
	}

	// Dummy is a node without inputs and with stereo outputs that only
	// receives a shared handle. It exercises handle transport end to
	// end.
	Dummy struct {
		Params DummyParams
		// Collector receives released handles, Global is used if nil.
		Collector *collector.Collector
	}

	dummyProcessor struct {
		params DummyParams
		shared collector.ArcGc[SharedState]
	}
)

// Received returns the number of handles the processor received.
func (s *SharedState) Received() uint64 {
	return atomic.LoadUint64(&s.received)
}

// Mirrored returns the value of the handle the processor holds, nil if
// it holds none. It's used to compare handle identity.
func (s *SharedState) Mirrored() *DummyInner {
	return s.mirrored.Load()
}

// Release releases the shared state.
func (s *DummyState) Release() {
	s.Shared.Release()
}

// Diff implements param.Differ.
func (p DummyParams) Diff(baseline DummyParams, path param.Path, emit param.Emitter) {
	param.DiffAny(baseline.Dummy, p.Dummy, path.With(0), emit)
}

// Patch implements param.Patcher.
func (p *DummyParams) Patch(pt param.Patch) error {
	i, ok := pt.Path.Head()
	if !ok || i != 0 {
		return param.ErrInvalidPath
	}
	d, err := param.OptionOf[collector.ArcGc[DummyInner]](pt.Data)
	if err != nil {
		return err
	}
	p.Dummy.Replace(d)
	return nil
}

// SetDummy replaces the handle with a new one.
func (d *Dummy) SetDummy() {
	d.Params.Dummy.Replace(param.Some(collector.NewArc(d.Collector, DummyInner{})))
}

// SyncDummy returns the event that sends the current handle to the
// processor. The event owns its own reference.
func (d *Dummy) SyncDummy() event.Event {
	return event.Param(param.Single(0), param.Any(d.Params.Dummy.Clone()))
}

// Release drops the handle held by the node.
func (d *Dummy) Release() {
	d.Params.Dummy.Replace(param.None[collector.ArcGc[DummyInner]]())
}

// Info implements node.AudioNode.
func (d *Dummy) Info(DummyConfig) node.Info {
	return node.Info{
		DebugName: "dummy",
		Channels: node.ChannelConfig{
			NumInputs:  node.Zero,
			NumOutputs: node.Stereo,
		},
		CustomState: &DummyState{
			Shared: collector.NewArc(d.Collector, SharedState{}),
		},
	}
}

// ConstructProcessor implements node.AudioNode.
func (d *Dummy) ConstructProcessor(_ DummyConfig, cx node.ConstructContext) (node.Processor, error) {
	state, ok := node.CustomStateAs[*DummyState](cx)
	if !ok {
		return nil, errNoDummyState
	}
	return &dummyProcessor{
		params: DummyParams{Dummy: d.Params.Dummy.Clone()},
		shared: state.Shared.Clone(),
	}, nil
}

// Process implements node.Processor.
func (p *dummyProcessor) Process(_ *node.ProcInfo, _ node.ProcBuffers, events *event.ProcEvents, _ *node.ProcExtra) node.ProcessStatus {
	for {
		patch, ok := events.NextPatch()
		if !ok {
			break
		}
		param.MustApply(&p.params, patch)
		shared := p.shared.Get()
		h, ok := p.params.Dummy.Get()
		if !ok {
			shared.mirrored.Store(nil)
			return node.Fault(ErrMissingDummy)
		}
		shared.mirrored.Store(h.Get())
		atomic.AddUint64(&shared.received, 1)
	}
	return node.Bypass
}

// Close implements io.Closer.
func (p *dummyProcessor) Close() error {
	p.params.Dummy.Release()
	p.shared.Release()
	return nil
}
