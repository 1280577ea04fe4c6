package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newNodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "Show the list of available node types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, t := range registry.Types() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", t.Name, t.Description)
			}
			return nil
		},
	}
}
