package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// These are set by the linker during build.
var Version = "dev"
var Commit = "unknown"
var Date = "unknown"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "weather version %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}
