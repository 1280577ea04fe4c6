// Package mock provides mocks for graph nodes and backends and allows to
// execute integration tests.
package mock

import (
	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/node"
	"pipelined.dev/rtgraph/param"
)

type (
	// Table is a shared buffer carried by mock params.
	Table = collector.ArcGc[[]float64]

	// Params of the mock node.
	Params struct {
		Value float64
		Table param.Option[Table]
	}

	// Config is the construction config of the mock node.
	Config struct {
		Channels node.ChannelConfig
		Label    string `validate:"omitempty,alphanum,max=32"`
	}

	// Node mocks a graph node. Its processor applies patches to the
	// mirror of Params and records what happened into the Probe.
	Node struct {
		Params Params
		// Status is returned by the processor if there is no error.
		// Produced status writes Value into all outputs.
		Status           node.ProcessStatus
		ErrorOnConstruct error
		ErrorOnCall      error
		ErrorOnNewStream error
		ErrorOnClose     error
		CustomState      any
		*Probe
	}

	// Probe records processor activity. It's not thread-safe, so should
	// not be checked while the stream is running.
	Probe struct {
		Constructed   int
		Calls         int
		Frames        int
		Events        int
		Values        []float64
		Customs       []any
		Mirror        Params
		LastInfo      node.ProcInfo
		Stream        node.StreamInfo
		StreamStopped bool
		Closed        bool
	}

	processor struct {
		params       Params
		status       node.ProcessStatus
		errorOnCall  error
		errorOnStart error
		errorOnClose error
		probe        *Probe
	}
)

// Diff implements param.Differ.
func (p Params) Diff(baseline Params, path param.Path, emit param.Emitter) {
	param.DiffFloat64(baseline.Value, p.Value, path.With(0), emit)
	param.DiffAny(baseline.Table, p.Table, path.With(1), emit)
}

// Patch implements param.Patcher.
func (p *Params) Patch(pt param.Patch) (err error) {
	i, ok := pt.Path.Head()
	if !ok {
		return param.ErrInvalidPath
	}
	switch i {
	case 0:
		p.Value, err = param.Float64Of(pt.Data)
	case 1:
		var t param.Option[Table]
		if t, err = param.OptionOf[Table](pt.Data); err == nil {
			p.Table.Replace(t)
		}
	default:
		err = param.ErrInvalidPath
	}
	return err
}

// Info implements node.AudioNode.
func (m *Node) Info(c Config) node.Info {
	name := "mock"
	if c.Label != "" {
		name = name + "." + c.Label
	}
	return node.Info{
		DebugName:   name,
		Channels:    c.Channels,
		CustomState: m.CustomState,
	}
}

// ConstructProcessor implements node.AudioNode.
func (m *Node) ConstructProcessor(c Config, cx node.ConstructContext) (node.Processor, error) {
	if m.ErrorOnConstruct != nil {
		return nil, m.ErrorOnConstruct
	}
	if m.Probe == nil {
		m.Probe = &Probe{}
	}
	m.Probe.Constructed++
	return &processor{
		params: Params{
			Value: m.Params.Value,
			Table: m.Params.Table.Clone(),
		},
		status:       m.Status,
		errorOnCall:  m.ErrorOnCall,
		errorOnStart: m.ErrorOnNewStream,
		errorOnClose: m.ErrorOnClose,
		probe:        m.Probe,
	}, nil
}

// Process implements node.Processor.
func (p *processor) Process(info *node.ProcInfo, buffers node.ProcBuffers, events *event.ProcEvents, extra *node.ProcExtra) node.ProcessStatus {
	p.probe.Calls++
	p.probe.Frames += info.Frames
	p.probe.LastInfo = *info
	for {
		e, ok := events.Next()
		if !ok {
			break
		}
		p.probe.Events++
		switch e.Kind {
		case event.KindParam:
			param.MustApply(&p.params, e.Patch)
			p.probe.Values = append(p.probe.Values, p.params.Value)
		case event.KindCustom:
			p.probe.Customs = append(p.probe.Customs, e.Custom)
		}
	}
	p.probe.Mirror = p.params
	if p.errorOnCall != nil {
		extra.Logger.Error("mock processor failed", p.errorOnCall)
		return node.Fault(p.errorOnCall)
	}
	if p.status.IsProduced() {
		for _, out := range buffers.Outputs {
			for i := range out {
				out[i] = p.params.Value
			}
		}
	}
	return p.status
}

// NewStream implements node.StreamStarter.
func (p *processor) NewStream(info node.StreamInfo) error {
	p.probe.Stream = info
	return p.errorOnStart
}

// StreamStopped implements node.StreamStopper.
func (p *processor) StreamStopped() {
	p.probe.StreamStopped = true
}

// Close releases the mirror and implements io.Closer.
func (p *processor) Close() error {
	p.params.Table.Release()
	p.probe.Closed = true
	return p.errorOnClose
}
