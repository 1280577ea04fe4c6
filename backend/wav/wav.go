// Package wav provides an offline backend that renders the graph into a
// wav file. Optional input file is streamed into the graph input.
package wav

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/node"
)

var (
	// ErrUnsupportedBitDepth is returned when unsupported bit depth is used.
	ErrUnsupportedBitDepth = errors.New("only 16 and 32 bit depth is supported")
	// ErrInvalidInput is returned when the input file is not a valid wav.
	ErrInvalidInput = errors.New("input is not a valid wav file")
	// ErrNothingToRender is returned when neither frames nor input are
	// set.
	ErrNothingToRender = errors.New("frames or input must be set")
)

// pcm is the wav audio format tag for integer samples.
const pcm = 1

type (
	// Backend renders a stream into the file at Path. The stream finishes
	// after Frames frames or, if Frames is zero, at the end of Input.
	Backend struct {
		Path     string
		Input    string
		Frames   int
		BitDepth int
	}

	stream struct {
		info    node.StreamInfo
		cb      backend.Callback
		file    *os.File
		encoder *wav.Encoder
		input   *input
		frames  int

		in  [][]float32
		out [][]float32
		ib  *audio.IntBuffer

		stop     chan struct{}
		done     chan struct{}
		stopOnce sync.Once
		mu       sync.Mutex
		err      error
		closeErr error
	}

	input struct {
		file     *os.File
		decoder  *wav.Decoder
		ib       *audio.IntBuffer
		channels int
		limit    float32
	}
)

// Start opens the files and starts rendering on a new goroutine.
func (b *Backend) Start(cfg backend.Config, cb backend.Callback) (backend.Stream, error) {
	bitDepth := b.BitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	if bitDepth != 16 && bitDepth != 32 {
		return nil, ErrUnsupportedBitDepth
	}
	if b.Frames <= 0 && b.Input == "" {
		return nil, ErrNothingToRender
	}
	if cfg.NumOutputs == 0 {
		return nil, errors.New("stream has no outputs to render")
	}

	var in *input
	if b.Input != "" {
		var err error
		if in, err = openInput(b.Input, cfg.BlockFrames); err != nil {
			return nil, err
		}
		if in.sampleRate() != cfg.SampleRate {
			in.close()
			return nil, fmt.Errorf("input sample rate %d doesn't match stream sample rate %d", in.sampleRate(), cfg.SampleRate)
		}
	}

	f, err := os.Create(b.Path)
	if err != nil {
		if in != nil {
			in.close()
		}
		return nil, err
	}
	s := &stream{
		info:    cfg.StreamInfo(),
		cb:      cb,
		file:    f,
		encoder: wav.NewEncoder(f, cfg.SampleRate, bitDepth, cfg.NumOutputs, pcm),
		input:   in,
		frames:  b.Frames,
		in:      backend.Buffers(cfg.NumInputs, cfg.BlockFrames),
		out:     backend.Buffers(cfg.NumOutputs, cfg.BlockFrames),
		ib: &audio.IntBuffer{
			Format: &audio.Format{
				NumChannels: cfg.NumOutputs,
				SampleRate:  cfg.SampleRate,
			},
			SourceBitDepth: bitDepth,
			Data:           make([]int, cfg.NumOutputs*cfg.BlockFrames),
		},
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run()
	return s, nil
}

func (s *stream) run() {
	defer close(s.done)
	err := s.render()
	if closeErr := s.close(); err == nil {
		err = closeErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.err = fmt.Errorf("%w: %w", backend.ErrStoppedUnexpectedly, err)
	} else {
		s.err = backend.ErrStreamFinished
	}
}

// render returns nil when the stream was stopped or ran to the end.
func (s *stream) render() error {
	limit := maxValue(s.ib.SourceBitDepth)
	rendered := 0
	for {
		select {
		case <-s.stop:
			return nil
		default:
		}

		frames := s.info.MaxBlockFrames
		if s.frames > 0 && s.frames-rendered < frames {
			frames = s.frames - rendered
		}
		if s.input != nil {
			n, err := s.input.read(s.in, frames)
			if err != nil {
				return err
			}
			if n == 0 && s.frames == 0 {
				return nil
			}
			if s.frames == 0 {
				frames = n
			}
		}
		if frames == 0 {
			return nil
		}

		s.cb(s.in, s.out, frames, node.StreamFlags(0))
		s.ib.Data = s.ib.Data[:frames*len(s.out)]
		for i := 0; i < frames; i++ {
			for ch := range s.out {
				s.ib.Data[i*len(s.out)+ch] = toInt(s.out[ch][i], limit)
			}
		}
		if err := s.encoder.Write(s.ib); err != nil {
			return err
		}
		rendered += frames
	}
}

func (s *stream) close() error {
	var err error
	if s.input != nil {
		err = s.input.close()
	}
	if encErr := s.encoder.Close(); encErr != nil {
		err = encErr
	}
	if fileErr := s.file.Close(); fileErr != nil {
		err = fileErr
	}
	return err
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

// Stop stops rendering and waits until the file is closed.
func (s *stream) Stop() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(s.err, backend.ErrStreamFinished) {
		return nil
	}
	return s.err
}

func openInput(path string, blockFrames int) (*input, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, ErrInvalidInput)
	}
	if d.BitDepth != 16 && d.BitDepth != 32 {
		f.Close()
		return nil, ErrUnsupportedBitDepth
	}
	channels := d.Format().NumChannels
	return &input{
		file:     f,
		decoder:  d,
		channels: channels,
		limit:    float32(maxValue(int(d.BitDepth))),
		ib: &audio.IntBuffer{
			Format:         d.Format(),
			Data:           make([]int, blockFrames*channels),
			SourceBitDepth: int(d.BitDepth),
		},
	}, nil
}

func (in *input) sampleRate() int {
	return int(in.decoder.SampleRate)
}

// read deinterleaves up to frames frames into buffers. Channels missing
// in the file are silenced. Returns the number of frames read.
func (in *input) read(buffers [][]float32, frames int) (int, error) {
	in.ib.Data = in.ib.Data[:frames*in.channels]
	n, err := in.decoder.PCMBuffer(in.ib)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, err
	}
	n /= in.channels
	for ch, b := range buffers {
		if ch >= in.channels {
			clear(b[:frames])
			continue
		}
		for i := 0; i < n; i++ {
			b[i] = float32(in.ib.Data[i*in.channels+ch]) / in.limit
		}
		clear(b[n:frames])
	}
	return n, nil
}

func (in *input) close() error {
	return in.file.Close()
}

func maxValue(bitDepth int) int {
	return 1<<(bitDepth-1) - 1
}

func toInt(v float32, limit int) int {
	switch {
	case v >= 1:
		return limit
	case v <= -1:
		return -limit
	}
	return int(float64(v) * float64(limit))
}

// Load reads the whole file into non-interleaved buffers. It returns the
// buffers and the sample rate of the file.
func Load(path string) ([][]float64, int, error) {
	in, err := openInput(path, 0)
	if err != nil {
		return nil, 0, err
	}
	defer in.close()
	buf, err := in.decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", path, err)
	}
	frames := len(buf.Data) / in.channels
	data := make([][]float64, in.channels)
	for ch := range data {
		data[ch] = make([]float64, frames)
		for i := range data[ch] {
			data[ch][i] = float64(buf.Data[i*in.channels+ch]) / float64(in.limit)
		}
	}
	return data, in.sampleRate(), nil
}
