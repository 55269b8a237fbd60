package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newReferenceCmd())
}

func newReferenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reference",
		Short: "Replay the reference allocation sequence",
		Long: `The reference command replays six allocations and their releases in a
fixed order, exercising growth, first-fit reuse, splitting, coalescing and
tail retraction.

Example:
  heapdriver reference
  heapdriver reference --map --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd, ReferenceScript())
		},
	}
}
