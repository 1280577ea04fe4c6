package nodes

import (
	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/node"
	"pipelined.dev/rtgraph/param"
)

type (
	// Table is a shared mono sample buffer.
	Table = collector.ArcGc[[]float64]

	// SampleConfig is the sample player config.
	SampleConfig struct{}

	// SampleParams select the table to play. Playback starts over when
	// the table is replaced.
	SampleParams struct {
		Table param.Option[Table]
		Loop  bool
	}

	// Sample plays a shared table to its mono output.
	Sample struct {
		Params SampleParams
	}

	sampleProcessor struct {
		params SampleParams
		pos    int
	}
)

// NewTable returns a table handle that can be sent to sample players.
func NewTable(c *collector.Collector, samples []float64) param.Option[Table] {
	return param.Some(collector.NewArc(c, samples))
}

// Diff implements param.Differ.
func (p SampleParams) Diff(baseline SampleParams, path param.Path, emit param.Emitter) {
	param.DiffAny(baseline.Table, p.Table, path.With(0), emit)
	param.DiffBool(baseline.Loop, p.Loop, path.With(1), emit)
}

// Patch implements param.Patcher.
func (p *SampleParams) Patch(pt param.Patch) (err error) {
	i, ok := pt.Path.Head()
	if !ok {
		return param.ErrInvalidPath
	}
	switch i {
	case 0:
		var t param.Option[Table]
		if t, err = param.OptionOf[Table](pt.Data); err == nil {
			p.Table.Replace(t)
		}
	case 1:
		p.Loop, err = param.BoolOf(pt.Data)
	default:
		err = param.ErrInvalidPath
	}
	return err
}

// Info implements node.AudioNode.
func (s Sample) Info(SampleConfig) node.Info {
	return node.Info{
		DebugName: "sample",
		Channels:  node.ChannelConfig{NumOutputs: node.Mono},
	}
}

// ConstructProcessor implements node.AudioNode.
func (s Sample) ConstructProcessor(SampleConfig, node.ConstructContext) (node.Processor, error) {
	return &sampleProcessor{
		params: SampleParams{
			Table: s.Params.Table.Clone(),
			Loop:  s.Params.Loop,
		},
	}, nil
}

func (p *sampleProcessor) Process(_ *node.ProcInfo, buffers node.ProcBuffers, events *event.ProcEvents, _ *node.ProcExtra) node.ProcessStatus {
	for {
		patch, ok := events.NextPatch()
		if !ok {
			break
		}
		param.MustApply(&p.params, patch)
		if i, _ := patch.Path.Head(); i == 0 {
			p.pos = 0
		}
	}

	t, ok := p.params.Table.Get()
	if !ok || len(*t.Get()) == 0 {
		return node.ClearAllOutputs
	}
	samples := *t.Get()
	if p.pos >= len(samples) && !p.params.Loop {
		return node.ClearAllOutputs
	}

	out := buffers.Outputs[0]
	for i := 0; i < len(out); {
		if p.pos >= len(samples) {
			if !p.params.Loop {
				clear(out[i:])
				break
			}
			p.pos = 0
		}
		n := copy(out[i:], samples[p.pos:])
		i += n
		p.pos += n
	}
	return node.Produced
}

// Close releases the table.
func (p *sampleProcessor) Close() error {
	p.params.Table.Release()
	return nil
}
