package nodes

import (
	"math"

	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/node"
	"pipelined.dev/rtgraph/param"
)

type (
	// ToneConfig defines the number of tone outputs. All outputs carry
	// the same signal.
	ToneConfig struct {
		Channels node.ChannelCount `yaml:"channels" validate:"gte=1,lte=64"`
	}

	// ToneParams are parameters of the sine generator.
	ToneParams struct {
		Frequency float32 `yaml:"frequency"`
		Gain      float32 `yaml:"gain"`
		Enabled   bool    `yaml:"enabled"`
	}

	// Tone is a sine generator.
	Tone struct {
		Params ToneParams
	}

	toneProcessor struct {
		params ToneParams
		phase  float64
	}
)

// Default returns stereo config.
func (ToneConfig) Default() ToneConfig {
	return ToneConfig{Channels: node.Stereo}
}

// Diff implements param.Differ.
func (p ToneParams) Diff(baseline ToneParams, path param.Path, emit param.Emitter) {
	param.DiffFloat32(baseline.Frequency, p.Frequency, path.With(0), emit)
	param.DiffFloat32(baseline.Gain, p.Gain, path.With(1), emit)
	param.DiffBool(baseline.Enabled, p.Enabled, path.With(2), emit)
}

// Patch implements param.Patcher.
func (p *ToneParams) Patch(pt param.Patch) (err error) {
	i, ok := pt.Path.Head()
	if !ok {
		return param.ErrInvalidPath
	}
	switch i {
	case 0:
		p.Frequency, err = param.Float32Of(pt.Data)
	case 1:
		p.Gain, err = param.Float32Of(pt.Data)
	case 2:
		p.Enabled, err = param.BoolOf(pt.Data)
	default:
		err = param.ErrInvalidPath
	}
	return err
}

// Info implements node.AudioNode.
func (t Tone) Info(c ToneConfig) node.Info {
	return node.Info{
		DebugName: "tone",
		Channels:  node.ChannelConfig{NumOutputs: c.Channels},
	}
}

// ConstructProcessor implements node.AudioNode.
func (t Tone) ConstructProcessor(ToneConfig, node.ConstructContext) (node.Processor, error) {
	return &toneProcessor{params: t.Params}, nil
}

func (p *toneProcessor) Process(info *node.ProcInfo, buffers node.ProcBuffers, events *event.ProcEvents, _ *node.ProcExtra) node.ProcessStatus {
	for {
		patch, ok := events.NextPatch()
		if !ok {
			break
		}
		param.MustApply(&p.params, patch)
	}
	if !p.params.Enabled || p.params.Gain == 0 || info.SampleRate == 0 {
		return node.ClearAllOutputs
	}

	step := 2 * math.Pi * float64(p.params.Frequency) / float64(info.SampleRate)
	gain := float64(p.params.Gain)
	first := buffers.Outputs[0]
	for i := range first {
		first[i] = gain * math.Sin(p.phase)
		p.phase += step
		if p.phase >= 2*math.Pi {
			p.phase -= 2 * math.Pi
		}
	}
	for _, out := range buffers.Outputs[1:] {
		copy(out, first)
	}
	return node.Produced
}

// StreamStopped resets the phase.
func (p *toneProcessor) StreamStopped() {
	p.phase = 0
}
