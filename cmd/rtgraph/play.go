//go:build !noportaudio

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pipelined.dev/rtgraph/backend"
	"pipelined.dev/rtgraph/backend/portaudio"
	"pipelined.dev/rtgraph/config"
)

func init() {
	backendCommands = append(backendCommands, newPlayCommand, newDevicesCommand)
}

type playCommand struct {
	device       string
	stallTimeout time.Duration
}

func newPlayCommand(opts *runOptions) *cobra.Command {
	p := &playCommand{}
	cmd := &cobra.Command{
		Use:   "play [config]",
		Short: "Play the graph with the sound card",
		Long:  `Runs the graph with the sound card until interrupted. The stream is reported as stopped if the device stops calling back.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGraph(cmd.Context(), opts, args[0], cmd.ErrOrStderr(), p.backend)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&p.device, "device", "", "device name, overrides the config")
	flags.DurationVar(&p.stallTimeout, "stall-timeout", portaudio.DefaultStallTimeout, "time without callbacks after which the stream is stopped")
	return cmd
}

func (p *playCommand) backend(c *config.Config) (backend.Backend, error) {
	if p.device != "" {
		c.Stream.Device = p.device
	}
	return &portaudio.Backend{StallTimeout: p.stallTimeout}, nil
}

func newDevicesCommand(*runOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Show the list of audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := portaudio.Devices()
			if err != nil {
				return err
			}
			for _, d := range devices {
				fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) in: %d out: %d rate: %v\n",
					d.Name, d.HostAPI, d.MaxInputChannels, d.MaxOutputChannels, d.SampleRate)
			}
			return nil
		},
	}
}
