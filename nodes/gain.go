package nodes

import (
	"github.com/cwbudde/algo-vecmath"

	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/node"
	"pipelined.dev/rtgraph/param"
)

type (
	// GainConfig defines the number of channels. Input channel i is
	// written to output channel i.
	GainConfig struct {
		Channels node.ChannelCount `yaml:"channels" validate:"gte=1,lte=64"`
	}

	// GainParams holds the linear gain.
	GainParams struct {
		Gain float32 `yaml:"gain"`
	}

	// Gain scales its inputs.
	Gain struct {
		Params GainParams
	}

	gainProcessor struct {
		params GainParams
	}
)

// Default returns stereo config.
func (GainConfig) Default() GainConfig {
	return GainConfig{Channels: node.Stereo}
}

// Diff implements param.Differ.
func (p GainParams) Diff(baseline GainParams, path param.Path, emit param.Emitter) {
	param.DiffFloat32(baseline.Gain, p.Gain, path.With(0), emit)
}

// Patch implements param.Patcher.
func (p *GainParams) Patch(pt param.Patch) (err error) {
	if i, ok := pt.Path.Head(); !ok || i != 0 {
		return param.ErrInvalidPath
	}
	p.Gain, err = param.Float32Of(pt.Data)
	return err
}

// Info implements node.AudioNode.
func (g Gain) Info(c GainConfig) node.Info {
	return node.Info{
		DebugName: "gain",
		Channels:  node.ChannelConfig{NumInputs: c.Channels, NumOutputs: c.Channels},
	}
}

// ConstructProcessor implements node.AudioNode.
func (g Gain) ConstructProcessor(GainConfig, node.ConstructContext) (node.Processor, error) {
	return &gainProcessor{params: g.Params}, nil
}

func (p *gainProcessor) Process(info *node.ProcInfo, buffers node.ProcBuffers, events *event.ProcEvents, _ *node.ProcExtra) node.ProcessStatus {
	for {
		patch, ok := events.NextPatch()
		if !ok {
			break
		}
		param.MustApply(&p.params, patch)
	}
	switch {
	case p.params.Gain == 1:
		return node.Bypass
	case p.params.Gain == 0 || info.InSilence.AllSilent(len(buffers.Inputs)):
		return node.ClearAllOutputs
	}
	for ch, out := range buffers.Outputs {
		vecmath.ScaleBlock(out, buffers.Inputs[ch], float64(p.params.Gain))
	}
	return node.ProducedSilence(info.InSilence)
}
