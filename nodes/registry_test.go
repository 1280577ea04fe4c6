package nodes_test

import (
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/rtgraph"
	"pipelined.dev/rtgraph/backend"
	wavbackend "pipelined.dev/rtgraph/backend/wav"
	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/config"
	"pipelined.dev/rtgraph/mock"
	"pipelined.dev/rtgraph/nodes"
)

const patch = `
stream: {sample_rate: 48000, block_frames: 4}
graph: {inputs: 1, outputs: 1}
nodes:
  - name: table
    type: sample
    params: {samples: [0.5, 0.5, 0.5, 0.5], loop: true}
  - name: amp
    type: gain
    config: {channels: 1}
    params: {gain: 1}
connections:
  - from: table
    to: amp
  - from: amp
    to: output
`

func TestRegistry(t *testing.T) {
	r := nodes.DefaultRegistry()
	var names []string
	for _, typ := range r.Types() {
		names = append(names, typ.Name)
		assert.NotEmpty(t, typ.Description)
	}
	assert.Equal(t, []string{"filter", "gain", "sample", "tone"}, names)
	assert.NotNil(t, r.Lookup("tone"))
	assert.Nil(t, r.Lookup("vst"))

	assert.Error(t, r.Register(nodes.Type{Name: "tone"}, r.Lookup("tone")))
	assert.Error(t, r.Register(nodes.Type{}, r.Lookup("tone")))
	assert.Error(t, r.Register(nodes.Type{Name: "empty"}, nil))
	assert.Panics(t, func() {
		r.MustRegister(nodes.Type{Name: "gain"}, r.Lookup("gain"))
	})
}

func TestBuild(t *testing.T) {
	c := collector.New()
	cfg, err := config.Parse([]byte(patch))
	require.NoError(t, err)
	options, err := cfg.Options()
	require.NoError(t, err)
	cx := newGraph(c, options...)

	set, err := nodes.DefaultRegistry().Build(cx, cfg)
	require.NoError(t, err)
	amp, ok := set.ID("amp")
	require.True(t, ok)
	out, ok := set.ID(config.Output)
	require.True(t, ok)
	assert.Equal(t, cx.GraphOutputNodeID(), out)
	_, ok = set.ID("missing")
	assert.False(t, ok)
	assert.Len(t, cx.Edges(), 2)

	b := &mock.Backend{}
	require.NoError(t, cx.StartStream(b, cfg.Stream))
	stream := b.Stream()
	stream.Tick(1)
	require.NoError(t, cx.Update())
	assert.Equal(t, []float32{0.5, 0.5, 0.5, 0.5}, stream.Output()[0])

	reload, err := config.Parse([]byte(strings.Replace(patch, "{gain: 1}", "{gain: 0.5}", 1)))
	require.NoError(t, err)
	require.NoError(t, set.Sync(reload))
	stream.Tick(1)
	require.NoError(t, cx.Update())
	assert.Equal(t, []float32{0.25, 0.25, 0.25, 0.25}, stream.Output()[0])
	_, ok = cx.NodeInfo(amp)
	assert.True(t, ok)

	reload.Nodes = append(reload.Nodes, config.Node{Name: "new", Type: "tone"})
	assert.ErrorIs(t, set.Sync(reload), nodes.ErrNotBuilt)

	set.Release()
	require.NoError(t, cx.Close())
	assert.Zero(t, c.Pending())
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		expected error
	}{
		{
			name:     "unknown type",
			data:     "nodes: [{name: a, type: vst}]",
			expected: nodes.ErrUnknownType,
		},
		{
			name:     "invalid config",
			data:     "nodes: [{name: a, type: tone, config: {channels: 0}}]",
			expected: rtgraph.ErrInvalidConfig,
		},
		{
			name: "invalid params",
			data: "nodes: [{name: a, type: filter, params: {type: bandpass, cutoff: 100}}]",
		},
		{
			name: "cutoff above nyquist",
			data: "nodes: [{name: a, type: filter, params: {type: lowpass, cutoff: 30000}}]",
		},
		{
			name: "samples and file",
			data: "nodes: [{name: a, type: sample, params: {samples: [1], file: a.wav}}]",
		},
		{
			name:     "channel out of range",
			data:     "nodes: [{name: a, type: tone}]\nconnections: [{from: a, to: output, channels: [{src: 5, dst: 0}]}]",
			expected: rtgraph.ErrChannelOutOfRange,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := collector.New()
			cx := newGraph(c)
			cfg, err := config.Parse([]byte(test.data))
			require.NoError(t, err)
			_, err = nodes.DefaultRegistry().Build(cx, cfg)
			require.Error(t, err)
			if test.expected != nil {
				assert.ErrorIs(t, err, test.expected)
			}
			require.NoError(t, cx.Close())
			assert.Zero(t, c.Pending())
		})
	}
}

const filterPatch = `
nodes:
  - name: lp
    type: filter
    config: {channels: 1, order: 2}
    params: {type: highpass, cutoff: 1000}
connections:
  - {from: input, to: lp}
  - {from: lp, to: output}
`

func TestFilterParams(t *testing.T) {
	c := collector.New()
	cx := newGraph(c, rtgraph.WithGraphInputs(1), rtgraph.WithGraphOutputs(1))
	cfg, err := config.Parse([]byte(filterPatch))
	require.NoError(t, err)
	set, err := nodes.DefaultRegistry().Build(cx, cfg)
	require.NoError(t, err)

	b := &mock.Backend{}
	require.NoError(t, cx.StartStream(b, backend.Config{BlockFrames: 64}))
	stream := b.Stream()
	stream.Input = 1
	stream.Tick(50)
	require.NoError(t, cx.Update())
	assert.InDelta(t, 0, stream.Output()[0][63], 0.01)

	// unchanged params are not sent again
	retired := c.Retired()
	require.NoError(t, set.Sync(cfg))
	assert.Equal(t, retired+1, c.Retired())

	cfg, err = config.Parse([]byte(strings.Replace(filterPatch, "highpass", "lowpass", 1)))
	require.NoError(t, err)
	require.NoError(t, set.Sync(cfg))
	stream.Tick(50)
	require.NoError(t, cx.Update())
	assert.InDelta(t, 1, stream.Output()[0][63], 0.01)

	set.Release()
	require.NoError(t, cx.Close())
	assert.Zero(t, c.Pending())
}

func TestReadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.wav")
	cx := newGraph(collector.New(), rtgraph.WithGraphOutputs(1))
	id, err := rtgraph.AddNode[nodes.ToneConfig](cx, nodes.Tone{Params: nodes.ToneParams{Frequency: 1000, Gain: 0.5, Enabled: true}}, &nodes.ToneConfig{Channels: 1})
	require.NoError(t, err)
	require.NoError(t, cx.Connect(id, cx.GraphOutputNodeID(), rtgraph.Mono, false))
	require.NoError(t, cx.StartStream(&wavbackend.Backend{Path: path, Frames: 480}, backend.Config{SampleRate: 48000, BlockFrames: 48}))
	for cx.StreamState() == rtgraph.StreamRunning {
		require.NoError(t, cx.Update())
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, cx.Close())

	table, err := nodes.ReadTable(path, 48000)
	require.NoError(t, err)
	require.Len(t, table, 480)
	assert.InDelta(t, 0.5*math.Sin(2*math.Pi*1000/48000), table[1], 1e-3)

	_, err = nodes.ReadTable(path, 44100)
	assert.ErrorIs(t, err, nodes.ErrSampleRate)
}
