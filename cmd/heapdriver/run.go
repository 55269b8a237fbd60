package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRunCmd())
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Replay a YAML script of allocations and releases",
		Long: `The run command replays the steps of a YAML script in order. Each step
either allocates a named pointer or releases one allocated earlier.

Example script:
  steps:
    - allocate: p1
      size: 100
    - release: p1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := LoadScript(args[0])
			if err != nil {
				return err
			}
			return runScript(cmd, script)
		},
	}
}
