// Command rtgraph runs audio graphs described in YAML files.
package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"pipelined.dev/rtgraph/nodes"
)

const (
	successExitCode = 0
	errorExitCode   = 1
)

var (
	registry = nodes.DefaultRegistry()
	// commands that depend on optional backends.
	backendCommands []func(*runOptions) *cobra.Command
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.Execute(); err != nil {
		return errorExitCode
	}
	return successExitCode
}

func newRootCommand() *cobra.Command {
	opts := &runOptions{}
	root := &cobra.Command{
		Use:           "rtgraph",
		Short:         "Run realtime audio graphs",
		Long:          `rtgraph builds an audio graph from a YAML description and runs it with a sound card or renders it to a wav file.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.logLevel, "log-level", "", "log level, overrides the config")
	flags.BoolVar(&opts.logJSON, "log-json", false, "log in json format")
	flags.BoolVar(&opts.watch, "watch", false, "reload node params when the config file changes")
	flags.DurationVar(&opts.interval, "update-interval", defaultUpdateInterval, "how often the graph is updated")

	root.AddCommand(newNodesCommand(), newRenderCommand(opts))
	for _, c := range backendCommands {
		root.AddCommand(c(opts))
	}
	return root
}
