// Package portaudio provides a backend that streams to audio devices with
// PortAudio.
package portaudio

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/node"
)

// DefaultStallTimeout is used if Backend.StallTimeout is zero.
const DefaultStallTimeout = 2 * time.Second

var (
	// ErrDeviceNotFound is returned when the named device doesn't exist.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrStalled is reported when the device stops calling back.
	ErrStalled = errors.New("stream callback stalled")
)

type (
	// Backend opens PortAudio streams. PortAudio is initialized for every
	// stream and terminated when the stream stops.
	Backend struct {
		// StallTimeout is the time without callbacks after which the
		// stream is considered dead.
		StallTimeout time.Duration
	}

	stream struct {
		info   node.StreamInfo
		cb     backend.Callback
		stream *portaudio.Stream
		// last callback time in unix nanoseconds
		last    atomic.Int64
		timeout time.Duration

		stop     chan struct{}
		done     chan struct{}
		stopOnce sync.Once
		mu       sync.Mutex
		err      error
	}

	// Device describes an audio device.
	Device struct {
		Name              string
		HostAPI           string
		MaxInputChannels  int
		MaxOutputChannels int
		SampleRate        float64
	}
)

// Devices returns available devices.
func Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	defer portaudio.Terminate()
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	result := make([]Device, 0, len(devices))
	for _, d := range devices {
		result = append(result, Device{
			Name:              d.Name,
			HostAPI:           d.HostApi.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			SampleRate:        d.DefaultSampleRate,
		})
	}
	return result, nil
}

// Start opens the device stream. Device from the config is searched by
// name, default devices are used if it's empty.
func (b *Backend) Start(cfg backend.Config, cb backend.Callback) (backend.Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("error initializing portaudio: %w", err)
	}
	params, err := parameters(cfg)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	timeout := b.StallTimeout
	if timeout == 0 {
		timeout = DefaultStallTimeout
	}

	s := &stream{
		info:    cfg.StreamInfo(),
		cb:      cb,
		timeout: timeout,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	if s.stream, err = portaudio.OpenStream(params, s.process); err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("error opening stream: %w", err)
	}
	s.last.Store(time.Now().UnixNano())
	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("error starting stream: %w", err)
	}
	if info := s.stream.Info(); info != nil {
		s.info.SampleRate = int(info.SampleRate)
	}
	go s.watch()
	return s, nil
}

func parameters(cfg backend.Config) (portaudio.StreamParameters, error) {
	var in, out *portaudio.DeviceInfo
	var err error
	if cfg.Device != "" {
		devices, err := portaudio.Devices()
		if err != nil {
			return portaudio.StreamParameters{}, err
		}
		for _, d := range devices {
			if d.Name == cfg.Device {
				in, out = d, d
				break
			}
		}
		if out == nil {
			return portaudio.StreamParameters{}, fmt.Errorf("%q: %w", cfg.Device, ErrDeviceNotFound)
		}
	} else {
		if cfg.NumInputs > 0 {
			if in, err = portaudio.DefaultInputDevice(); err != nil {
				return portaudio.StreamParameters{}, err
			}
		}
		if out, err = portaudio.DefaultOutputDevice(); err != nil {
			return portaudio.StreamParameters{}, err
		}
	}

	params := portaudio.LowLatencyParameters(in, out)
	params.Input.Channels = cfg.NumInputs
	params.Output.Channels = cfg.NumOutputs
	params.SampleRate = float64(cfg.SampleRate)
	params.FramesPerBuffer = cfg.BlockFrames
	return params, nil
}

// process is called by PortAudio on its realtime thread.
func (s *stream) process(in, out [][]float32, _ portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
	s.last.Store(time.Now().UnixNano())
	frames := 0
	if len(out) > 0 {
		frames = len(out[0])
	} else if len(in) > 0 {
		frames = len(in[0])
	}
	s.cb(in, out, frames, streamFlags(flags))
}

func streamFlags(f portaudio.StreamCallbackFlags) node.StreamFlags {
	var flags node.StreamFlags
	if f&portaudio.InputUnderflow != 0 {
		flags |= node.InputUnderflow
	}
	if f&portaudio.InputOverflow != 0 {
		flags |= node.InputOverflow
	}
	if f&portaudio.OutputUnderflow != 0 {
		flags |= node.OutputUnderflow
	}
	if f&portaudio.OutputOverflow != 0 {
		flags |= node.OutputOverflow
	}
	if f&portaudio.PrimingOutput != 0 {
		flags |= node.PrimingOutput
	}
	return flags
}

// watch marks the stream dead if callbacks stop coming.
func (s *stream) watch() {
	defer close(s.done)
	ticker := time.NewTicker(s.timeout / 4)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if now.Sub(time.Unix(0, s.last.Load())) > s.timeout {
				s.mu.Lock()
				s.err = fmt.Errorf("%w: %w", backend.ErrStoppedUnexpectedly, ErrStalled)
				s.mu.Unlock()
				return
			}
		}
	}
}

// Info implements backend.Stream.
func (s *stream) Info() node.StreamInfo {
	return s.info
}

// Err implements backend.Stream.
func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stop stops the stream and terminates PortAudio.
func (s *stream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stop)
		<-s.done
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = stopErr
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if termErr := portaudio.Terminate(); termErr != nil && err == nil {
			err = termErr
		}
	})
	return err
}
