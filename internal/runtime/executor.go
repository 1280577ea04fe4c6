// Package runtime executes compiled schedules in the audio callback.
package runtime

import (
	"errors"
	"sync/atomic"

	"github.com/cwbudde/algo-vecmath"

	"pipelined.dev/rtgraph/internal/ring"
	"pipelined.dev/rtgraph/node"
)

// ErrBlockTooLarge is reported when the backend calls with more frames
// than the stream was configured for. The whole block is silenced.
var ErrBlockTooLarge = errors.New("block exceeds max block frames")

const (
	commandsCapacity = 16
	faultsCapacity   = 256
)

type (
	// Executor runs schedules. Submit and the control methods are called
	// from a single control goroutine, Process from the audio callback.
	Executor struct {
		commands *ring.Ring[*Schedule]
		faults   *ring.Ring[Fault]
		applied  atomic.Uint64
		lost     atomic.Uint64

		// owned by the audio callback while the stream is running
		current    *Schedule
		frameClock uint64
		sampleRate int
		info       node.ProcInfo
		extra      node.ProcExtra
	}

	// Fault is a processor error delivered to the control side.
	Fault struct {
		Key any
		Err error
	}
)

// NewExecutor returns a new executor.
func NewExecutor() *Executor {
	return &Executor{
		commands: ring.New[*Schedule](commandsCapacity),
		faults:   ring.New[Fault](faultsCapacity),
	}
}

// Submit sends the schedule to the executor. False is returned if there
// is no room for the schedule and it should be submitted later.
func (e *Executor) Submit(s *Schedule) bool {
	return e.commands.Push(s)
}

// Applied returns the version of the schedule that is currently executed.
func (e *Executor) Applied() uint64 {
	return e.applied.Load()
}

// PollFault returns the next fault reported by the audio callback.
func (e *Executor) PollFault() (Fault, bool) {
	return e.faults.Pop()
}

// LostFaults returns the number of faults that didn't fit in the fault
// ring.
func (e *Executor) LostFaults() uint64 {
	return e.lost.Load()
}

// Flush applies submitted schedules. It must only be called when the
// stream is not running.
func (e *Executor) Flush() {
	e.applyCommands()
}

// Current returns the current schedule. It must only be called when the
// stream is not running.
func (e *Executor) Current() *Schedule {
	return e.current
}

// Reset prepares the executor for a new stream. It must only be called
// when the stream is not running.
func (e *Executor) Reset(sampleRate int) {
	e.applyCommands()
	e.sampleRate = sampleRate
	e.frameClock = 0
	if e.current == nil {
		return
	}
	e.extra.Scratch = e.current.Scratch
	for _, s := range e.current.Slots {
		s.Meter.Reset(sampleRate)
		s.faulted = false
	}
}

// StreamStopped notifies processors that the stream has stopped. It must
// only be called when the stream is not running.
func (e *Executor) StreamStopped() {
	e.applyCommands()
	if e.current == nil {
		return
	}
	for _, s := range e.current.Slots {
		if stopper, ok := s.Processor.(node.StreamStopper); ok {
			stopper.StreamStopped()
		}
	}
}

func (e *Executor) applyCommands() {
	for {
		s, ok := e.commands.Pop()
		if !ok {
			return
		}
		for _, slot := range s.Slots {
			slot.inherit()
		}
		e.current = s
		e.extra.Scratch = s.Scratch
		e.applied.Store(s.Version)
	}
}

func (e *Executor) fault(key any, err error) {
	if !e.faults.Push(Fault{Key: key, Err: err}) {
		e.lost.Add(1)
	}
}

// Process executes the current schedule for a single block. It's the
// body of the backend callback and doesn't allocate.
func (e *Executor) Process(in, out [][]float32, frames int, flags node.StreamFlags) {
	e.applyCommands()
	s := e.current
	if s == nil {
		silence32(out, frames)
		return
	}
	if frames > s.MaxFrames {
		silence32(out, frames)
		e.fault(nil, ErrBlockTooLarge)
		return
	}

	e.info.Frames = frames
	e.info.SampleRate = e.sampleRate
	e.info.FrameClock = e.frameClock
	if e.sampleRate > 0 {
		e.info.StreamTime = float64(e.frameClock) / float64(e.sampleRate)
	}
	e.info.Flags = flags
	for _, slot := range s.Slots {
		switch slot.Kind {
		case KindGraphIn:
			readInput(slot, in, frames)
		case KindGraphOut:
			sumInputs(slot, frames)
		default:
			e.process(slot, frames)
		}
	}
	if s.Out != nil {
		writeOutput(s.Out, out, frames)
	} else {
		silence32(out, frames)
	}
	e.frameClock += uint64(frames)
}

func (e *Executor) process(slot *Slot, frames int) {
	sumInputs(slot, frames)
	for ch := range slot.Outputs {
		slot.outView[ch] = slot.Outputs[ch][:frames]
	}
	events := 0
	if slot.Queue != nil {
		slot.Queue.Drain(slot.Events)
		events = slot.Events.Len()
	}

	e.info.InSilence = slot.inSilence
	e.info.OutSilence = slot.outSilence
	e.extra.Logger = slot.Logger
	start := slot.Meter.Begin()
	status := slot.Processor.Process(
		&e.info,
		node.ProcBuffers{Inputs: slot.inView, Outputs: slot.outView},
		slot.Events,
		&e.extra,
	)
	slot.Meter.End(start, frames, events)

	switch {
	case status.IsBypass():
		slot.Meter.Bypass()
		bypass(slot)
	case status.IsClear():
		silence(slot.outView)
		slot.outSilence = node.AllSilent(len(slot.outView))
	case status.IsFault():
		slot.Meter.Fault()
		silence(slot.outView)
		slot.outSilence = node.AllSilent(len(slot.outView))
		// report only the first block of consecutive faults
		if !slot.faulted {
			e.fault(slot.Key, status.Err())
		}
	default:
		slot.outSilence = status.Silence()
	}
	slot.faulted = status.IsFault()
}

// sumInputs mixes sources of every input channel into the slot inputs.
func sumInputs(slot *Slot, frames int) {
	var mask node.SilenceMask
	for ch, sources := range slot.Incoming {
		dst := slot.Inputs[ch][:frames]
		slot.inView[ch] = dst
		if len(sources) == 0 {
			clear(dst)
			mask = mask.Set(ch)
			continue
		}
		silent := true
		for i, src := range sources {
			if i == 0 {
				copy(dst, src.Slot.Outputs[src.Channel][:frames])
			} else {
				vecmath.AddBlockInPlace(dst, src.Slot.Outputs[src.Channel][:frames])
			}
			silent = silent && src.Slot.outSilence.IsSilent(src.Channel)
		}
		if silent {
			mask = mask.Set(ch)
		}
	}
	slot.inSilence = mask
}

// bypass copies inputs to outputs with the same index and silences the
// rest.
func bypass(slot *Slot) {
	var mask node.SilenceMask
	for ch, out := range slot.outView {
		if ch < len(slot.inView) {
			copy(out, slot.inView[ch])
			if slot.inSilence.IsSilent(ch) {
				mask = mask.Set(ch)
			}
			continue
		}
		clear(out)
		mask = mask.Set(ch)
	}
	slot.outSilence = mask
}

func readInput(slot *Slot, in [][]float32, frames int) {
	var mask node.SilenceMask
	for ch := range slot.Outputs {
		dst := slot.Outputs[ch][:frames]
		if ch >= len(in) {
			clear(dst)
			mask = mask.Set(ch)
			continue
		}
		src := in[ch][:frames]
		for i := range dst {
			dst[i] = float64(src[i])
		}
	}
	slot.outSilence = mask
}

func writeOutput(slot *Slot, out [][]float32, frames int) {
	for ch := range out {
		dst := out[ch][:frames]
		if ch >= len(slot.inView) || slot.inView[ch] == nil {
			clear(dst)
			continue
		}
		src := slot.inView[ch]
		for i := range dst {
			dst[i] = float32(src[i])
		}
	}
}

func silence(buffers [][]float64) {
	for _, b := range buffers {
		clear(b)
	}
}

func silence32(buffers [][]float32, frames int) {
	for _, b := range buffers {
		clear(b[:frames])
	}
}
