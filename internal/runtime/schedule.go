package runtime

import (
	"pipelined.dev/rtgraph/event"
	"pipelined.dev/rtgraph/metric"
	"pipelined.dev/rtgraph/node"
)

// SlotKind defines how the slot is processed.
type SlotKind uint8

// Slot kinds.
const (
	// KindNode slot calls its processor.
	KindNode SlotKind = iota
	// KindGraphIn slot outputs the stream input.
	KindGraphIn
	// KindGraphOut slot inputs are written to the stream output.
	KindGraphOut
)

type (
	// Schedule is the compiled graph. It's built on the control side and
	// then owned by the executor. Schedules are never modified after
	// submit, a new schedule is compiled for every graph change.
	Schedule struct {
		Version   uint64
		Slots     []*Slot
		In        *Slot
		Out       *Slot
		MaxFrames int
		Scratch   [][]float64
	}

	// Slot is a node in the schedule.
	Slot struct {
		// Key identifies the node in faults.
		Key       any
		Kind      SlotKind
		Processor node.Processor
		Queue     *event.Queue
		Events    *event.ProcEvents
		Meter     *metric.Meter
		Logger    *node.RealtimeLogger
		// Inputs and Outputs are MaxFrames long.
		Inputs  [][]float64
		Outputs [][]float64
		// Incoming lists sources of every input channel.
		Incoming [][]Source
		// Prev is the slot of the same node in the previous schedule. Its
		// fault state is carried over when the schedule is applied.
		Prev *Slot
		// KeepOutputs carries the outputs of Prev over as well. It's set
		// for sources of feedback edges that read the previous block.
		KeepOutputs bool

		inView     [][]float64
		outView    [][]float64
		inSilence  node.SilenceMask
		outSilence node.SilenceMask
		faulted    bool
	}

	// Source is an output channel of another slot.
	Source struct {
		Slot    *Slot
		Channel int
	}
)

// NewSlot allocates slot buffers for the channel config.
func NewSlot(key any, kind SlotKind, channels node.ChannelConfig, maxFrames int) *Slot {
	numIn, numOut := int(channels.NumInputs), int(channels.NumOutputs)
	return &Slot{
		Key:        key,
		Kind:       kind,
		Inputs:     buffers(numIn, maxFrames),
		Outputs:    buffers(numOut, maxFrames),
		Incoming:   make([][]Source, numIn),
		inView:     make([][]float64, numIn),
		outView:    make([][]float64, numOut),
		inSilence:  node.AllSilent(numIn),
		outSilence: node.AllSilent(numOut),
	}
}

// Connect adds the source to the input channel.
func (s *Slot) Connect(ch int, src Source) {
	s.Incoming[ch] = append(s.Incoming[ch], src)
}

// inherit takes the state of the previous slot of the same node. It's
// called by the executor when the schedule is applied.
func (s *Slot) inherit() {
	p := s.Prev
	if p == nil {
		return
	}
	s.Prev = nil
	s.faulted = p.faulted
	if !s.KeepOutputs {
		return
	}
	for ch := range s.Outputs {
		if ch < len(p.Outputs) {
			copy(s.Outputs[ch], p.Outputs[ch])
		}
	}
	s.outSilence = p.outSilence & node.AllSilent(len(s.Outputs))
}

// Faulted returns true if the last processed block faulted.
func (s *Slot) Faulted() bool {
	return s.faulted
}

// NewScratch allocates scratch buffers shared by processors.
func NewScratch(n, maxFrames int) [][]float64 {
	return buffers(n, maxFrames)
}

func buffers(channels, frames int) [][]float64 {
	b := make([][]float64, channels)
	for i := range b {
		b[i] = make([]float64, frames)
	}
	return b
}
