package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/heapmgr/heap"
)

var (
	// Global flags
	logLevel        string
	printMap        bool
	base            uint32
	maxArenaSize    uint32
	eagerRetraction bool
	uncheckedFree   bool
)

var rootCmd = &cobra.Command{
	Use:   "heapdriver",
	Short: "Drive a first-fit heap through a sequence of allocations and releases",
	Long: `heapdriver replays sequences of allocate and release calls against a
first-fit heap and prints the pointer returned by every allocation. It can
replay the built-in reference sequence or a YAML script of named steps.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Heap log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolVar(&printMap, "map", false, "Print the detailed arena map as JSON after the run")
	rootCmd.PersistentFlags().Uint32Var(&base, "base", uint32(heap.DefaultBase), "Address of the first arena byte")
	rootCmd.PersistentFlags().Uint32Var(&maxArenaSize, "max-arena-size", 0, "Bound on the arena size in bytes, 0 for none")
	rootCmd.PersistentFlags().BoolVar(&eagerRetraction, "eager-retraction", false, "Retract a free tail block even when nothing merged into it")
	rootCmd.PersistentFlags().BoolVar(&uncheckedFree, "unchecked", false, "Skip pointer validation on release")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newHeap builds a heap from the global flags, logging to stderr
func newHeap(stderr io.Writer) (*heap.Heap, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, errors.Wrapf(err, "invalid --log-level %q", logLevel)
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	var flags heap.CreateFlags
	if eagerRetraction {
		flags |= heap.CreateEagerTailRetraction
	}
	if uncheckedFree {
		flags |= heap.CreateUncheckedRelease
	}

	return heap.New(logger, heap.CreateOptions{
		Flags:        flags,
		Base:         heap.Pointer(base),
		MaxArenaSize: maxArenaSize,
	})
}

// runScript replays script against a fresh heap and prints the map if --map was given
func runScript(cmd *cobra.Command, script *Script) error {
	h, err := newHeap(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := script.Run(h, out); err != nil {
		return err
	}

	if printMap {
		writer := jwriter.NewWriter()
		h.PrintDetailedMap(&writer)
		if err := writer.Error(); err != nil {
			return err
		}
		fmt.Fprintln(out, string(writer.Bytes()))
	}

	return nil
}
