package runtime_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/internal/runtime"
	"pipelined.dev/rtgraph/node"
	"pipelined.dev/rtgraph/param"
)

var errMock = errors.New("mock error")

const maxFrames = 8

// constant writes its value into all outputs and returns the status. The
// value is patched with path 0.
type constant struct {
	value  float64
	status node.ProcessStatus
	calls  int
	info   node.ProcInfo
}

func (c *constant) Process(info *node.ProcInfo, buffers node.ProcBuffers, events *event.ProcEvents, extra *node.ProcExtra) node.ProcessStatus {
	c.calls++
	c.info = *info
	for {
		p, ok := events.NextPatch()
		if !ok {
			break
		}
		c.value, _ = p.Data.Float64()
	}
	for _, out := range buffers.Outputs {
		for i := range out {
			out[i] = c.value
		}
	}
	return c.status
}

func produce(v float64) *constant {
	return &constant{value: v, status: node.Produced}
}

type stopper struct {
	constant
	stopped bool
}

func (s *stopper) StreamStopped() {
	s.stopped = true
}

func nodeSlot(key string, p node.Processor, channels node.ChannelConfig) *runtime.Slot {
	s := runtime.NewSlot(key, runtime.KindNode, channels, maxFrames)
	s.Processor = p
	s.Queue = event.NewQueue(4, event.Backpressure)
	s.Events = event.NewProcEvents(s.Queue.Cap())
	return s
}

// chain returns in -> a -> b -> out schedule where a and b are stereo.
func chain(version uint64, a, b node.Processor) *runtime.Schedule {
	in := runtime.NewSlot("in", runtime.KindGraphIn, node.ChannelConfig{NumOutputs: node.Stereo}, maxFrames)
	out := runtime.NewSlot("out", runtime.KindGraphOut, node.ChannelConfig{NumInputs: node.Stereo}, maxFrames)
	sa := nodeSlot("a", a, node.ChannelConfig{NumInputs: node.Stereo, NumOutputs: node.Stereo})
	sb := nodeSlot("b", b, node.ChannelConfig{NumInputs: node.Stereo, NumOutputs: node.Stereo})
	for ch := 0; ch < 2; ch++ {
		sa.Connect(ch, runtime.Source{Slot: in, Channel: ch})
		sb.Connect(ch, runtime.Source{Slot: sa, Channel: ch})
		out.Connect(ch, runtime.Source{Slot: sb, Channel: ch})
	}
	return &runtime.Schedule{
		Version:   version,
		Slots:     []*runtime.Slot{in, sa, sb, out},
		In:        in,
		Out:       out,
		MaxFrames: maxFrames,
		Scratch:   runtime.NewScratch(1, maxFrames),
	}
}

func buffers(channels, frames int, value float32) [][]float32 {
	b := make([][]float32, channels)
	for i := range b {
		b[i] = make([]float32, frames)
		for j := range b[i] {
			b[i][j] = value
		}
	}
	return b
}

func TestProcessStatus(t *testing.T) {
	tests := []struct {
		description string
		a           node.ProcessStatus
		b           node.ProcessStatus
		expected    float32
		faults      int
	}{
		{
			description: "produced",
			a:           node.Produced,
			b:           node.Produced,
			expected:    2,
		},
		{
			description: "bypass copies input",
			a:           node.Bypass,
			b:           node.Bypass,
			expected:    0.5,
		},
		{
			description: "clear",
			a:           node.Produced,
			b:           node.ClearAllOutputs,
			expected:    0,
		},
		{
			description: "fault silences",
			a:           node.Produced,
			b:           node.Fault(errMock),
			expected:    0,
			faults:      1,
		},
		{
			description: "fault propagates silence through bypass",
			a:           node.Fault(errMock),
			b:           node.Bypass,
			expected:    0,
			faults:      1,
		},
	}
	for _, test := range tests {
		a := &constant{value: 1, status: test.a}
		b := &constant{value: 2, status: test.b}
		e := runtime.NewExecutor()
		require.True(t, e.Submit(chain(1, a, b)))
		e.Reset(44100)

		in := buffers(2, maxFrames, 0.5)
		out := buffers(2, maxFrames, 7)
		// faults are reported only once for consecutive blocks
		e.Process(in, out, maxFrames, 0)
		e.Process(in, out, maxFrames, 0)
		for _, ch := range out {
			for _, v := range ch {
				assert.Equal(t, test.expected, v, test.description)
			}
		}
		faults := 0
		for {
			f, ok := e.PollFault()
			if !ok {
				break
			}
			assert.ErrorIs(t, f.Err, errMock, test.description)
			faults++
		}
		assert.Equal(t, test.faults, faults, test.description)
		assert.Equal(t, 2, b.calls, test.description)
	}
}

func TestEventsDelivered(t *testing.T) {
	a := produce(1)
	b := &constant{status: node.Bypass}
	s := chain(1, a, b)
	e := runtime.NewExecutor()
	e.Submit(s)
	e.Reset(48000)

	for _, v := range []float64{1, 2, 3} {
		require.True(t, s.Slots[1].Queue.TryPush(event.Param(param.Single(0), param.Float64(v))))
	}
	out := buffers(2, 4, 0)
	e.Process(nil, out, 4, node.OutputUnderflow)
	assert.Equal(t, float64(3), a.value)
	assert.Equal(t, float32(3), out[1][3])
	assert.Equal(t, 4, a.info.Frames)
	assert.Equal(t, 48000, a.info.SampleRate)
	assert.Equal(t, node.OutputUnderflow, a.info.Flags)
	assert.True(t, a.info.InSilence.AllSilent(2))

	e.Process(nil, out, 4, 0)
	assert.Equal(t, uint64(4), a.info.FrameClock)
	assert.InDelta(t, 4.0/48000, a.info.StreamTime, 1e-12)
}

func TestSwapSchedule(t *testing.T) {
	a1, b1 := produce(1), produce(2)
	a2, b2 := produce(3), produce(4)
	e := runtime.NewExecutor()
	assert.Equal(t, uint64(0), e.Applied())
	e.Submit(chain(1, a1, b1))
	e.Flush()
	assert.Equal(t, uint64(1), e.Applied())
	e.Reset(44100)

	out := buffers(2, maxFrames, 0)
	e.Process(nil, out, maxFrames, 0)
	assert.Equal(t, float32(2), out[0][0])

	e.Submit(chain(2, a2, b2))
	e.Process(nil, out, maxFrames, 0)
	assert.Equal(t, float32(4), out[0][0])
	assert.Equal(t, uint64(2), e.Applied())
	assert.Equal(t, 1, b1.calls)
	assert.Equal(t, 1, b2.calls)
}

// feedback returns b -> a (feedback), a -> out schedule. Slots are linked
// to the slots of prev.
func feedback(version uint64, a, b node.Processor, prev *runtime.Schedule) *runtime.Schedule {
	mono := node.ChannelConfig{NumInputs: node.Mono, NumOutputs: node.Mono}
	sa := nodeSlot("a", a, mono)
	sb := nodeSlot("b", b, mono)
	out := runtime.NewSlot("out", runtime.KindGraphOut, node.ChannelConfig{NumInputs: node.Mono}, maxFrames)
	sa.Connect(0, runtime.Source{Slot: sb})
	sb.KeepOutputs = true
	out.Connect(0, runtime.Source{Slot: sa})
	s := &runtime.Schedule{
		Version:   version,
		Slots:     []*runtime.Slot{sa, sb, out},
		Out:       out,
		MaxFrames: maxFrames,
	}
	if prev != nil {
		for i, slot := range s.Slots {
			slot.Prev = prev.Slots[i]
		}
	}
	return s
}

func TestCarryOver(t *testing.T) {
	a, b := &constant{status: node.Bypass}, produce(1)
	e := runtime.NewExecutor()
	s1 := feedback(1, a, b, nil)
	e.Submit(s1)
	e.Reset(44100)
	out := buffers(1, maxFrames, 0)
	e.Process(nil, out, maxFrames, 0)
	assert.Equal(t, float32(0), out[0][0])

	// intermediate schedules pass the state along
	s2 := feedback(2, a, b, s1)
	e.Submit(s2)
	e.Submit(feedback(3, a, b, s2))
	e.Process(nil, out, maxFrames, 0)
	assert.Equal(t, float32(1), out[0][0])
	assert.Equal(t, uint64(3), e.Applied())

	// without the link the history is lost
	e.Submit(feedback(4, a, b, nil))
	e.Process(nil, out, maxFrames, 0)
	assert.Equal(t, float32(0), out[0][0])
}

func TestFaultCarryOver(t *testing.T) {
	a, b := &constant{status: node.Fault(errMock)}, produce(1)
	e := runtime.NewExecutor()
	s1 := feedback(1, a, b, nil)
	e.Submit(s1)
	e.Reset(44100)
	out := buffers(1, maxFrames, 0)
	e.Process(nil, out, maxFrames, 0)
	_, ok := e.PollFault()
	assert.True(t, ok)

	s2 := feedback(2, a, b, s1)
	e.Submit(s2)
	e.Process(nil, out, maxFrames, 0)
	_, ok = e.PollFault()
	assert.False(t, ok)
	assert.True(t, s2.Slots[0].Faulted())
	assert.Nil(t, s2.Slots[0].Prev)

	e.Submit(feedback(3, a, b, nil))
	e.Process(nil, out, maxFrames, 0)
	_, ok = e.PollFault()
	assert.True(t, ok)
}

func TestBlockTooLarge(t *testing.T) {
	e := runtime.NewExecutor()
	a, b := produce(1), produce(1)
	e.Submit(chain(1, a, b))
	e.Reset(44100)

	out := buffers(2, maxFrames*2, 1)
	e.Process(nil, out, maxFrames*2, 0)
	for _, ch := range out {
		for _, v := range ch {
			assert.Zero(t, v)
		}
	}
	f, ok := e.PollFault()
	assert.True(t, ok)
	assert.ErrorIs(t, f.Err, runtime.ErrBlockTooLarge)
	assert.Zero(t, a.calls)
}

func TestNoSchedule(t *testing.T) {
	e := runtime.NewExecutor()
	out := buffers(2, 4, 1)
	e.Process(nil, out, 4, 0)
	assert.Equal(t, float32(0), out[1][3])
	assert.NotPanics(t, e.StreamStopped)
}

func TestSumInputs(t *testing.T) {
	a, b := produce(1), produce(2)
	out := runtime.NewSlot("out", runtime.KindGraphOut, node.ChannelConfig{NumInputs: node.Mono}, maxFrames)
	sa := nodeSlot("a", a, node.ChannelConfig{NumOutputs: node.Mono})
	sb := nodeSlot("b", b, node.ChannelConfig{NumOutputs: node.Mono})
	out.Connect(0, runtime.Source{Slot: sa})
	out.Connect(0, runtime.Source{Slot: sb})

	e := runtime.NewExecutor()
	e.Submit(&runtime.Schedule{
		Version:   1,
		Slots:     []*runtime.Slot{sa, sb, out},
		Out:       out,
		MaxFrames: maxFrames,
	})
	e.Reset(44100)
	// the second device channel has no graph output
	device := buffers(2, maxFrames, 5)
	e.Process(nil, device, maxFrames, 0)
	assert.Equal(t, float32(3), device[0][0])
	assert.Equal(t, float32(0), device[1][0])
}

func TestStreamStopped(t *testing.T) {
	a := &stopper{constant: constant{status: node.Produced}}
	b := produce(0)
	e := runtime.NewExecutor()
	e.Submit(chain(1, a, b))
	e.StreamStopped()
	assert.True(t, a.stopped)
}

func TestProcessDoesNotAllocate(t *testing.T) {
	a, b := produce(1), &constant{status: node.Bypass}
	s := chain(1, a, b)
	e := runtime.NewExecutor()
	e.Submit(s)
	e.Reset(44100)
	in := buffers(2, maxFrames, 1)
	out := buffers(2, maxFrames, 0)
	patch := event.Param(param.Single(0), param.Float64(2))
	allocs := testing.AllocsPerRun(100, func() {
		s.Slots[1].Queue.TryPush(patch)
		e.Process(in, out, maxFrames, 0)
	})
	assert.Zero(t, allocs)
}
