package nodes

import (
	"errors"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"

	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/node"
	"pipelined.dev/rtgraph/param"
)

// ErrFilterOrder is reported when received coefficients don't match the
// filter order.
var ErrFilterOrder = errors.New("coefficients don't match filter order")

type (
	// Coefficients are biquad sections designed on the control side.
	Coefficients = collector.ArcGc[[]biquad.Coefficients]

	// FilterConfig defines the number of channels and the filter order.
	// The order can't be changed after construction.
	FilterConfig struct {
		Channels node.ChannelCount `yaml:"channels" validate:"gte=1,lte=64"`
		Order    int               `yaml:"order" validate:"gte=1,lte=16"`
	}

	// FilterParams carry filter coefficients. The filter passes its
	// inputs through until coefficients are set.
	FilterParams struct {
		Coefficients param.Option[Coefficients]
	}

	// Filter is a biquad cascade applied to every channel.
	Filter struct {
		Params FilterParams
	}

	filterProcessor struct {
		params   FilterParams
		sections int
		chains   []*biquad.Chain
	}
)

// Default returns stereo second order config.
func (FilterConfig) Default() FilterConfig {
	return FilterConfig{Channels: node.Stereo, Order: 2}
}

// Sections returns the number of biquad sections for the order.
func (c FilterConfig) Sections() int {
	return (c.Order + 1) / 2
}

// Lowpass designs Butterworth lowpass coefficients.
func Lowpass(c *collector.Collector, cutoff float64, order, sampleRate int) param.Option[Coefficients] {
	return param.Some(collector.NewArc(c, design.ButterworthLP(cutoff, order, float64(sampleRate))))
}

// Highpass designs Butterworth highpass coefficients.
func Highpass(c *collector.Collector, cutoff float64, order, sampleRate int) param.Option[Coefficients] {
	return param.Some(collector.NewArc(c, design.ButterworthHP(cutoff, order, float64(sampleRate))))
}

// Diff implements param.Differ.
func (p FilterParams) Diff(baseline FilterParams, path param.Path, emit param.Emitter) {
	param.DiffAny(baseline.Coefficients, p.Coefficients, path.With(0), emit)
}

// Patch implements param.Patcher.
func (p *FilterParams) Patch(pt param.Patch) error {
	if i, ok := pt.Path.Head(); !ok || i != 0 {
		return param.ErrInvalidPath
	}
	c, err := param.OptionOf[Coefficients](pt.Data)
	if err != nil {
		return err
	}
	p.Coefficients.Replace(c)
	return nil
}

// Info implements node.AudioNode.
func (f Filter) Info(c FilterConfig) node.Info {
	return node.Info{
		DebugName: "filter",
		Channels:  node.ChannelConfig{NumInputs: c.Channels, NumOutputs: c.Channels},
	}
}

// ConstructProcessor implements node.AudioNode.
func (f Filter) ConstructProcessor(c FilterConfig, _ node.ConstructContext) (node.Processor, error) {
	p := &filterProcessor{
		sections: c.Sections(),
		chains:   make([]*biquad.Chain, c.Channels),
	}
	for i := range p.chains {
		p.chains[i] = biquad.NewChain(make([]biquad.Coefficients, p.sections))
	}
	if !p.apply(f.Params.Coefficients.Clone()) {
		return nil, ErrFilterOrder
	}
	return p, nil
}

// apply takes ownership of the coefficients. Chains are updated in place,
// so the sections count must match.
func (p *filterProcessor) apply(c param.Option[Coefficients]) bool {
	if h, ok := c.Get(); ok && len(*h.Get()) != p.sections {
		c.Release()
		return false
	}
	p.params.Coefficients.Replace(c)
	h, ok := c.Get()
	if !ok {
		return true
	}
	for _, chain := range p.chains {
		chain.UpdateCoefficients(*h.Get(), 1)
	}
	return true
}

func (p *filterProcessor) Process(_ *node.ProcInfo, buffers node.ProcBuffers, events *event.ProcEvents, _ *node.ProcExtra) node.ProcessStatus {
	var status node.ProcessStatus
	for {
		patch, ok := events.NextPatch()
		if !ok {
			break
		}
		var next FilterParams
		param.MustApply(&next, patch)
		if !p.apply(next.Coefficients) {
			status = node.Fault(ErrFilterOrder)
		}
	}
	if status.IsFault() {
		return status
	}
	if !p.params.Coefficients.IsSome() {
		return node.Bypass
	}
	for ch, out := range buffers.Outputs {
		copy(out, buffers.Inputs[ch])
		p.chains[ch].ProcessBlock(out)
	}
	return node.Produced
}

// StreamStopped clears the filter state.
func (p *filterProcessor) StreamStopped() {
	for _, chain := range p.chains {
		chain.Reset()
	}
}

// Close releases the coefficients.
func (p *filterProcessor) Close() error {
	p.params.Coefficients.Release()
	return nil
}
