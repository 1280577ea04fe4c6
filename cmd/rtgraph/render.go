package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/backend/wav"
	"pipelined.dev/rtgraph/config"
)

type renderCommand struct {
	output   string
	input    string
	duration time.Duration
	frames   int
	bitDepth int
}

func newRenderCommand(opts *runOptions) *cobra.Command {
	r := &renderCommand{}
	cmd := &cobra.Command{
		Use:   "render [config]",
		Short: "Render the graph to a wav file",
		Long:  `Runs the graph offline and writes the graph output to a wav file. The graph input is read from a wav file if provided.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd.Context(), opts, args[0], cmd.ErrOrStderr(), r.backend)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&r.output, "output", "o", "", "output wav file")
	flags.StringVarP(&r.input, "input", "i", "", "input wav file")
	flags.DurationVarP(&r.duration, "duration", "d", 10*time.Second, "duration of the output")
	flags.IntVar(&r.frames, "frames", 0, "number of frames to render, overrides duration")
	flags.IntVar(&r.bitDepth, "bit-depth", 16, "bit depth of the output, 16 or 32")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func (r *renderCommand) backend(c *config.Config) (backend.Backend, error) {
	frames := r.frames
	if frames == 0 {
		sampleRate := c.Stream.WithDefaults().SampleRate
		frames = int(r.duration.Seconds() * float64(sampleRate))
	}
	if frames <= 0 {
		return nil, errors.New("nothing to render")
	}
	return &wav.Backend{
		Path:     r.output,
		Input:    r.input,
		Frames:   frames,
		BitDepth: r.bitDepth,
	}, nil
}
