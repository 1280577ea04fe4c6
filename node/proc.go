package node

import (
	"fmt"
	"strings"
)

// StreamFlags are reported by the backend for every block.
type StreamFlags uint8

// Stream flags.
const (
	InputUnderflow StreamFlags = 1 << iota
	InputOverflow
	OutputUnderflow
	OutputOverflow
	PrimingOutput
)

func (f StreamFlags) String() string {
	if f == 0 {
		return "none"
	}
	var s []string
	for _, v := range []struct {
		flag StreamFlags
		name string
	}{
		{InputUnderflow, "input-underflow"},
		{InputOverflow, "input-overflow"},
		{OutputUnderflow, "output-underflow"},
		{OutputOverflow, "output-overflow"},
		{PrimingOutput, "priming-output"},
	} {
		if f&v.flag != 0 {
			s = append(s, v.name)
		}
	}
	return strings.Join(s, "|")
}

type (
	// ProcInfo describes the current block.
	ProcInfo struct {
		// Frames is the number of frames in every buffer of the block.
		Frames     int
		SampleRate int
		// FrameClock is the number of frames processed since the stream
		// start.
		FrameClock uint64
		// StreamTime is the time of the first frame of the block since the
		// stream start, in seconds.
		StreamTime float64
		Flags      StreamFlags
		// InSilence has a bit set for every input channel that carries
		// silence in this block.
		InSilence SilenceMask
		// OutSilence has a bit set for every output channel that was
		// silent after the previous block.
		OutSilence SilenceMask
	}

	// ProcBuffers are the audio buffers of the block, one per channel,
	// each Frames long.
	ProcBuffers struct {
		Inputs  [][]float64
		Outputs [][]float64
	}

	// ProcExtra contains additional resources for the processor.
	ProcExtra struct {
		// Scratch buffers are MaxBlockFrames long and shared between all
		// processors. Their content is undefined at the start of Process.
		Scratch [][]float64
		Logger  *RealtimeLogger
	}
)

type statusKind uint8

const (
	statusBypass statusKind = iota
	statusProduced
	statusClear
	statusFault
)

// ProcessStatus tells the graph what the processor did with its outputs.
// The zero value is Bypass.
type ProcessStatus struct {
	kind    statusKind
	silence SilenceMask
	err     error
}

var (
	// Bypass means the outputs were not touched. Inputs are copied to
	// outputs with the same index and the remaining outputs are silenced.
	Bypass = ProcessStatus{kind: statusBypass}
	// Produced means the processor wrote all of its outputs.
	Produced = ProcessStatus{kind: statusProduced}
	// ClearAllOutputs means all outputs must be silenced.
	ClearAllOutputs = ProcessStatus{kind: statusClear}
)

// ProducedSilence means the processor wrote all of its outputs and the
// channels in the mask are silent.
func ProducedSilence(mask SilenceMask) ProcessStatus {
	return ProcessStatus{kind: statusProduced, silence: mask}
}

// Fault reports a recoverable processor error. The outputs are silenced
// and the error is delivered to the control side. Processors should use
// pre-allocated errors.
func Fault(err error) ProcessStatus {
	return ProcessStatus{kind: statusFault, err: err}
}

// IsBypass returns true for the Bypass status.
func (s ProcessStatus) IsBypass() bool {
	return s.kind == statusBypass
}

// IsProduced returns true if the processor wrote its outputs.
func (s ProcessStatus) IsProduced() bool {
	return s.kind == statusProduced
}

// IsClear returns true for ClearAllOutputs status.
func (s ProcessStatus) IsClear() bool {
	return s.kind == statusClear
}

// IsFault returns true for Fault status.
func (s ProcessStatus) IsFault() bool {
	return s.kind == statusFault
}

// Err returns the fault error.
func (s ProcessStatus) Err() error {
	return s.err
}

// Silence returns the silence mask of the produced outputs.
func (s ProcessStatus) Silence() SilenceMask {
	return s.silence
}

func (s ProcessStatus) String() string {
	switch s.kind {
	case statusBypass:
		return "bypass"
	case statusProduced:
		return "produced"
	case statusClear:
		return "clear"
	case statusFault:
		return fmt.Sprintf("fault: %v", s.err)
	}
	return "unknown"
}
