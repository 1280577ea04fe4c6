package node_test

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/rtgraph/collector"
	"pipelined.dev/rtgraph/node"
)

func TestChannelConfig(t *testing.T) {
	tests := []struct {
		config   node.ChannelConfig
		expected error
	}{
		{
			config: node.ChannelConfig{NumOutputs: node.Stereo},
		},
		{
			config: node.ChannelConfig{NumInputs: node.MaxChannels, NumOutputs: node.MaxChannels},
		},
		{
			config:   node.ChannelConfig{NumInputs: node.MaxChannels + 1},
			expected: node.ErrInvalidChannels,
		},
		{
			config:   node.ChannelConfig{NumOutputs: 100},
			expected: node.ErrInvalidChannels,
		},
	}
	for _, test := range tests {
		err := test.config.Validate()
		if test.expected != nil {
			assert.ErrorIs(t, err, test.expected, test.config.String())
		} else {
			assert.NoError(t, err, test.config.String())
		}
	}
}

func TestSilenceMask(t *testing.T) {
	m := node.AllSilent(2)
	assert.True(t, m.IsSilent(0))
	assert.True(t, m.IsSilent(1))
	assert.False(t, m.IsSilent(2))
	assert.True(t, m.AllSilent(2))

	m = m.Clear(1)
	assert.False(t, m.IsSilent(1))
	assert.False(t, m.AllSilent(2))
	assert.True(t, m.Set(1).AllSilent(2))
	assert.True(t, node.AllSilent(64).AllSilent(64))
}

func TestProcessStatus(t *testing.T) {
	errBroken := errors.New("broken")
	var zero node.ProcessStatus
	assert.True(t, zero.IsBypass())
	assert.Equal(t, "bypass", node.Bypass.String())
	assert.True(t, node.ClearAllOutputs.IsClear())
	assert.True(t, node.Produced.IsProduced())
	assert.Equal(t, node.SilenceMask(1), node.ProducedSilence(1).Silence())

	f := node.Fault(errBroken)
	assert.True(t, f.IsFault())
	assert.ErrorIs(t, f.Err(), errBroken)
	assert.Equal(t, "fault: broken", f.String())
}

func TestStreamFlags(t *testing.T) {
	assert.Equal(t, "none", node.StreamFlags(0).String())
	assert.Equal(t, "input-underflow|output-overflow", (node.InputUnderflow | node.OutputOverflow).String())
}

func TestConstructContext(t *testing.T) {
	type shared struct{ counter int }
	s := &shared{}
	cx := node.NewConstructContext(node.StreamInfo{SampleRate: 48000}, collector.Global(), s)
	v, ok := node.CustomStateAs[*shared](cx)
	assert.True(t, ok)
	assert.Same(t, s, v)
	_, ok = node.CustomStateAs[string](cx)
	assert.False(t, ok)
	assert.Equal(t, 48000, cx.Stream.SampleRate)
}

func TestRealtimeLogger(t *testing.T) {
	errBroken := errors.New("broken")
	l := node.NewRealtimeLogger(2)
	l.Info("started")
	l.Error("failed", errBroken)
	l.Warn("dropped")
	assert.Equal(t, uint64(1), l.Dropped())

	var entries []node.LogEntry
	assert.Equal(t, 2, l.Drain(func(e node.LogEntry) {
		entries = append(entries, e)
	}))
	assert.Equal(t, []node.LogEntry{
		{Level: logrus.InfoLevel, Message: "started"},
		{Level: logrus.ErrorLevel, Message: "failed", Err: errBroken},
	}, entries)

	var nilLogger *node.RealtimeLogger
	assert.NotPanics(t, func() {
		nilLogger.Debug("ignored")
	})

	allocs := testing.AllocsPerRun(100, func() {
		l.Debug("tick")
		l.Drain(func(node.LogEntry) {})
	})
	assert.Zero(t, allocs)
}
