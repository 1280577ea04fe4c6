package nodes_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"pipelined.dev/rtgraph"
	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/log"
	"pipelined.dev/rtgraph/mock"
	"pipelined.dev/rtgraph/node"
	"pipelined.dev/rtgraph/nodes"
	"pipelined.dev/rtgraph/param"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newGraph(c *collector.Collector, options ...rtgraph.Option) *rtgraph.Context {
	options = append(options, rtgraph.WithCollector(c), rtgraph.WithLogger(log.Discard()))
	return rtgraph.New(options...)
}

func start(t *testing.T, cx *rtgraph.Context, frames int) *mock.Stream {
	t.Helper()
	b := &mock.Backend{}
	require.NoError(t, cx.StartStream(b, backend.Config{SampleRate: 48000, BlockFrames: frames}))
	return b.Stream()
}

func TestDummy(t *testing.T) {
	c := collector.New()
	cx := newGraph(c)
	d := &nodes.Dummy{Collector: c}
	id, err := rtgraph.AddNode[nodes.DummyConfig](cx, d, nil)
	require.NoError(t, err)
	require.NoError(t, cx.Connect(id, cx.GraphOutputNodeID(), rtgraph.Stereo, false))
	stream := start(t, cx, 64)
	edges := cx.Edges()
	require.Len(t, edges, 2)
	for ch, e := range edges {
		assert.Equal(t, ch, e.SrcChannel)
		assert.Equal(t, ch, e.DstChannel)
	}

	info, ok := cx.NodeInfo(id)
	require.True(t, ok)
	assert.Equal(t, node.ChannelConfig{NumInputs: node.Zero, NumOutputs: node.Stereo}, info.Channels)
	state := info.CustomState.(*nodes.DummyState)

	assert.False(t, d.Params.Dummy.IsSome())
	d.SetDummy()
	require.True(t, d.Params.Dummy.IsSome())
	require.NoError(t, cx.QueueEventFor(id, d.SyncDummy()))

	stream.Tick(1)
	assert.NoError(t, cx.Update())
	shared := state.Shared.Get()
	assert.Equal(t, uint64(1), shared.Received())
	first, ok := d.Params.Dummy.Get()
	require.True(t, ok)
	assert.Same(t, first.Get(), shared.Mirrored())
	assert.Equal(t, 2, first.RefCount())

	// the processor follows the replaced handle
	d.SetDummy()
	require.NoError(t, cx.QueueEventFor(id, d.SyncDummy()))
	stream.Tick(1)
	assert.NoError(t, cx.Update())
	second, ok := d.Params.Dummy.Get()
	require.True(t, ok)
	assert.Same(t, second.Get(), shared.Mirrored())
	assert.NotSame(t, first.Get(), shared.Mirrored())
	assert.Equal(t, uint64(2), shared.Received())
	for _, out := range stream.Output() {
		for _, v := range out {
			assert.Zero(t, v)
		}
	}

	// handle is required
	require.NoError(t, cx.QueueEventFor(id, event.Param(param.Single(0), param.Any(param.None[collector.ArcGc[nodes.DummyInner]]()))))
	stream.Tick(1)
	assert.ErrorIs(t, cx.Update(), nodes.ErrMissingDummy)
	assert.Nil(t, shared.Mirrored())

	d.Release()
	require.NoError(t, cx.Close())
	assert.Equal(t, uint64(3), c.Reclaimed())
	assert.Zero(t, c.Pending())
}

func TestTone(t *testing.T) {
	c := collector.New()
	cx := newGraph(c)
	defer cx.Close()
	tone := nodes.Tone{Params: nodes.ToneParams{Frequency: 1000, Gain: 0.5, Enabled: true}}
	id, err := rtgraph.AddNode[nodes.ToneConfig](cx, tone, nil)
	require.NoError(t, err)
	require.NoError(t, cx.Connect(id, cx.GraphOutputNodeID(), rtgraph.Stereo, false))
	stream := start(t, cx, 64)

	stream.Tick(1)
	output := stream.Output()
	assert.Equal(t, output[0], output[1])
	assert.Zero(t, output[0][0])
	assert.InDelta(t, 0.5*math.Sin(2*math.Pi*1000/48000), output[0][1], 1e-6)
	for _, v := range output[0] {
		assert.LessOrEqual(t, math.Abs(float64(v)), 0.5)
	}

	memo := param.NewMemo(tone.Params)
	memo.Value.Enabled = false
	require.NoError(t, rtgraph.SyncParams(cx, id, memo))
	stream.Tick(1)
	for _, v := range stream.Output()[0] {
		assert.Zero(t, v)
	}

	_, err = rtgraph.AddNode(cx, tone, &nodes.ToneConfig{})
	assert.ErrorIs(t, err, rtgraph.ErrInvalidConfig)
}

func TestGain(t *testing.T) {
	tests := []struct {
		name     string
		gain     float32
		expected float32
	}{
		{name: "unity", gain: 1, expected: 0.5},
		{name: "half", gain: 0.5, expected: 0.25},
		{name: "mute", gain: 0, expected: 0},
		{name: "invert", gain: -2, expected: -1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := collector.New()
			cx := newGraph(c, rtgraph.WithGraphInputs(2))
			defer cx.Close()
			id, err := rtgraph.AddNode[nodes.GainConfig](cx, nodes.Gain{Params: nodes.GainParams{Gain: test.gain}}, nil)
			require.NoError(t, err)
			require.NoError(t, cx.Connect(cx.GraphInputNodeID(), id, rtgraph.Stereo, false))
			require.NoError(t, cx.Connect(id, cx.GraphOutputNodeID(), rtgraph.Stereo, false))
			stream := start(t, cx, 16)
			stream.Input = 0.5

			stream.Tick(1)
			for _, out := range stream.Output() {
				for _, v := range out {
					assert.Equal(t, test.expected, v)
				}
			}
		})
	}
}

func TestSample(t *testing.T) {
	c := collector.New()
	cx := newGraph(c)
	defer cx.Close()
	memo := param.NewMemo(nodes.SampleParams{Table: nodes.NewTable(c, []float64{1, 2, 3})})
	id, err := rtgraph.AddNode[nodes.SampleConfig](cx, nodes.Sample{Params: memo.Value}, nil)
	require.NoError(t, err)
	require.NoError(t, cx.Connect(id, cx.GraphOutputNodeID(), rtgraph.Mono, false))
	stream := start(t, cx, 4)

	tick := func() []float32 {
		stream.Tick(1)
		require.NoError(t, cx.Update())
		out := make([]float32, 4)
		copy(out, stream.Output()[0])
		return out
	}
	assert.Equal(t, []float32{1, 2, 3, 0}, tick())
	assert.Equal(t, []float32{0, 0, 0, 0}, tick())

	memo.Value.Loop = true
	require.NoError(t, rtgraph.SyncParams(cx, id, memo))
	assert.Equal(t, []float32{1, 2, 3, 1}, tick())

	memo.Value.Table.Replace(nodes.NewTable(c, []float64{5}))
	require.NoError(t, rtgraph.SyncParams(cx, id, memo))
	assert.Equal(t, []float32{5, 5, 5, 5}, tick())
	assert.Equal(t, uint64(1), c.Reclaimed())

	memo.Value.Table.Release()
}

func TestFilter(t *testing.T) {
	const sampleRate = 48000
	c := collector.New()
	cx := newGraph(c, rtgraph.WithGraphInputs(1), rtgraph.WithGraphOutputs(1))
	defer cx.Close()

	_, err := rtgraph.AddNode(cx, nodes.Filter{
		Params: nodes.FilterParams{Coefficients: nodes.Lowpass(c, 1000, 4, sampleRate)},
	}, &nodes.FilterConfig{Channels: node.Mono, Order: 2})
	assert.ErrorIs(t, err, nodes.ErrFilterOrder)

	id, err := rtgraph.AddNode(cx, nodes.Filter{}, &nodes.FilterConfig{Channels: node.Mono, Order: 2})
	require.NoError(t, err)
	require.NoError(t, cx.Connect(cx.GraphInputNodeID(), id, rtgraph.Mono, false))
	require.NoError(t, cx.Connect(id, cx.GraphOutputNodeID(), rtgraph.Mono, false))
	stream := start(t, cx, 64)
	stream.Input = 1

	// no coefficients
	stream.Tick(1)
	assert.Equal(t, float32(1), stream.Output()[0][63])

	memo := param.NewMemo(nodes.FilterParams{})
	memo.Value.Coefficients = nodes.Highpass(c, 1000, 2, sampleRate)
	require.NoError(t, rtgraph.SyncParams(cx, id, memo))
	stream.Tick(50)
	assert.InDelta(t, 0, stream.Output()[0][63], 0.01)

	memo.Value.Coefficients.Replace(nodes.Lowpass(c, 1000, 2, sampleRate))
	require.NoError(t, rtgraph.SyncParams(cx, id, memo))
	stream.Tick(50)
	assert.InDelta(t, 1, stream.Output()[0][63], 0.01)

	memo.Value.Coefficients.Replace(nodes.Lowpass(c, 1000, 4, sampleRate))
	require.NoError(t, rtgraph.SyncParams(cx, id, memo))
	stream.Tick(1)
	assert.ErrorIs(t, cx.Update(), nodes.ErrFilterOrder)
	memo.Value.Coefficients.Release()
}

func TestProcessDoesNotAllocate(t *testing.T) {
	c := collector.New()
	tests := []struct {
		name      string
		processor func() (node.Processor, error)
		channels  node.ChannelConfig
	}{
		{
			name: "tone",
			processor: func() (node.Processor, error) {
				tone := nodes.Tone{Params: nodes.ToneParams{Frequency: 440, Gain: 1, Enabled: true}}
				return tone.ConstructProcessor(nodes.ToneConfig{}.Default(), node.ConstructContext{})
			},
			channels: node.ChannelConfig{NumOutputs: node.Stereo},
		},
		{
			name: "gain",
			processor: func() (node.Processor, error) {
				return nodes.Gain{Params: nodes.GainParams{Gain: 0.5}}.ConstructProcessor(nodes.GainConfig{}.Default(), node.ConstructContext{})
			},
			channels: node.ChannelConfig{NumInputs: node.Stereo, NumOutputs: node.Stereo},
		},
		{
			name: "filter",
			processor: func() (node.Processor, error) {
				f := nodes.Filter{Params: nodes.FilterParams{Coefficients: nodes.Lowpass(c, 500, 2, 48000)}}
				return f.ConstructProcessor(nodes.FilterConfig{}.Default(), node.ConstructContext{})
			},
			channels: node.ChannelConfig{NumInputs: node.Stereo, NumOutputs: node.Stereo},
		},
		{
			name: "sample",
			processor: func() (node.Processor, error) {
				s := nodes.Sample{Params: nodes.SampleParams{Table: nodes.NewTable(c, make([]float64, 100)), Loop: true}}
				return s.ConstructProcessor(nodes.SampleConfig{}, node.ConstructContext{})
			},
			channels: node.ChannelConfig{NumOutputs: node.Mono},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := test.processor()
			require.NoError(t, err)
			buffers := node.ProcBuffers{
				Inputs:  buffers(int(test.channels.NumInputs), 64),
				Outputs: buffers(int(test.channels.NumOutputs), 64),
			}
			info := &node.ProcInfo{Frames: 64, SampleRate: 48000}
			events := event.NewProcEvents(4)
			extra := &node.ProcExtra{}
			allocs := testing.AllocsPerRun(100, func() {
				p.Process(info, buffers, events, extra)
			})
			assert.Zero(t, allocs)
		})
	}
}

func buffers(channels, frames int) [][]float64 {
	b := make([][]float64, channels)
	for i := range b {
		b[i] = make([]float64, frames)
	}
	return b
}
