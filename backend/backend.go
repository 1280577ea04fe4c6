// Package backend defines the audio I/O collaborator of the graph. A
// backend owns the realtime thread and calls the graph once per block.
package backend

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"pipelined.dev/rtgraph/node"
)

var (
	// ErrStoppedUnexpectedly is reported by a stream that terminated
	// without being asked to, e.g. the device was disconnected.
	ErrStoppedUnexpectedly = errors.New("stream stopped unexpectedly")
	// ErrStreamFinished is reported by a stream that ran to its end, e.g.
	// offline render completed all frames.
	ErrStreamFinished = errors.New("stream finished")
)

// Default stream parameters.
const (
	DefaultSampleRate  = 48000
	DefaultBlockFrames = 256
	DefaultNumOutputs  = 2
)

type (
	// Config defines requested stream parameters.
	Config struct {
		SampleRate  int    `yaml:"sample_rate" validate:"gte=0,lte=768000"`
		BlockFrames int    `yaml:"block_frames" validate:"gte=0,lte=16384"`
		NumInputs   int    `yaml:"inputs" validate:"gte=0,lte=64"`
		NumOutputs  int    `yaml:"outputs" validate:"gte=0,lte=64"`
		Device      string `yaml:"device"`
	}

	// Callback processes a single block. Buffers are non-interleaved, one
	// per channel, each frames long. The callback is called from the
	// realtime thread.
	Callback func(in, out [][]float32, frames int, flags node.StreamFlags)

	// Backend starts streams.
	Backend interface {
		Start(cfg Config, cb Callback) (Stream, error)
	}

	// Stream is a running stream.
	Stream interface {
		// Info returns actual stream parameters.
		Info() node.StreamInfo
		// Err returns non-nil error once the stream terminated by itself.
		// ErrStoppedUnexpectedly or ErrStreamFinished are wrapped.
		Err() error
		// Stop stops the stream. Callback is not called after Stop
		// returns.
		Stop() error
	}
)

var validate = validator.New()

// WithDefaults returns the config with zero fields set to defaults.
func (c Config) WithDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.BlockFrames == 0 {
		c.BlockFrames = DefaultBlockFrames
	}
	if c.NumOutputs == 0 && c.NumInputs == 0 {
		c.NumOutputs = DefaultNumOutputs
	}
	return c
}

// Validate checks config values.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid stream config: %w", err)
	}
	return nil
}

// StreamInfo returns stream info for the config.
func (c Config) StreamInfo() node.StreamInfo {
	return node.StreamInfo{
		SampleRate:       c.SampleRate,
		MaxBlockFrames:   c.BlockFrames,
		NumStreamInputs:  c.NumInputs,
		NumStreamOutputs: c.NumOutputs,
	}
}

// Buffers allocates non-interleaved buffers.
func Buffers(channels, frames int) [][]float32 {
	b := make([][]float32, channels)
	for i := range b {
		b[i] = make([]float32, frames)
	}
	return b
}
