// Package cmd wires the Cobra command tree: a root command holding
// subcommands, each opening the store it needs.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the root command; the repository root's package main calls this.
func Execute() {
	root := rootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobrunner",
		Short: "Persistent job scheduler: declarative jobs, precise triggers, pluggable execution backends",
	}
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(jobCmd())
	cmd.AddCommand(agentCmd())
	cmd.AddCommand(migrateCmd())
	return cmd
}
