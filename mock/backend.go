package mock

import (
	"fmt"
	"sync"

	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/node"
)

type (
	// Backend mocks an audio backend. Streams are driven manually with
	// Tick, which calls the graph on the caller goroutine.
	Backend struct {
		ErrorOnStart error
		// BlockFrames overrides the requested block size, like a device
		// that can't provide it.
		BlockFrames int
		mu           sync.Mutex
		streams      []*Stream
	}

	// Stream is a stream of the mock backend.
	Stream struct {
		mu      sync.Mutex
		config  backend.Config
		cb      backend.Callback
		in      [][]float32
		out     [][]float32
		err     error
		stopped bool
		// Blocks is the number of processed blocks.
		Blocks int
		// Flags are passed to the next callback.
		Flags node.StreamFlags
		// Input is copied into the stream input for every block.
		Input float32
	}
)

// Start implements backend.Backend.
func (b *Backend) Start(cfg backend.Config, cb backend.Callback) (backend.Stream, error) {
	if b.ErrorOnStart != nil {
		return nil, b.ErrorOnStart
	}
	if b.BlockFrames > 0 {
		cfg.BlockFrames = b.BlockFrames
	}
	s := &Stream{
		config: cfg,
		cb:     cb,
		in:     backend.Buffers(cfg.NumInputs, cfg.BlockFrames),
		out:    backend.Buffers(cfg.NumOutputs, cfg.BlockFrames),
	}
	b.mu.Lock()
	b.streams = append(b.streams, s)
	b.mu.Unlock()
	return s, nil
}

// Stream returns the last started stream.
func (b *Backend) Stream() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

// Tick processes n full blocks. Blocks are not processed if the stream was
// stopped or killed. Returns the number of processed blocks.
func (s *Stream) Tick(n int) int {
	return s.TickFrames(n, s.config.BlockFrames)
}

// TickFrames processes n blocks of provided size. Output buffers are
// reallocated if frames exceed configured block size.
func (s *Stream) TickFrames(n, frames int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if frames > s.config.BlockFrames {
		s.in = backend.Buffers(s.config.NumInputs, frames)
		s.out = backend.Buffers(s.config.NumOutputs, frames)
	}
	processed := 0
	for i := 0; i < n; i++ {
		if s.stopped || s.err != nil {
			break
		}
		for _, ch := range s.in {
			for j := range ch {
				ch[j] = s.Input
			}
		}
		s.cb(s.in, s.out, frames, s.Flags)
		s.Blocks++
		processed++
	}
	return processed
}

// Kill terminates the stream as if the device was lost.
func (s *Stream) Kill(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = fmt.Errorf("%w: %v", backend.ErrStoppedUnexpectedly, reason)
}

// Finish terminates the stream as if it ran to the end.
func (s *Stream) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = backend.ErrStreamFinished
}

// Output returns the output buffers of the last block.
func (s *Stream) Output() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

// Stopped returns true if Stop was called.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// Info implements backend.Stream.
func (s *Stream) Info() node.StreamInfo {
	return s.config.StreamInfo()
}

// Err implements backend.Stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop implements backend.Stream.
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}
