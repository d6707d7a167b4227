// Command scoresim is a demonstration driver for the score-clock audio
// core: it wires up a transport, a handful of generators, and the DSP
// collaborator behind internal/renderer, drives it at a fixed block
// rate the way a real audio callback would, and shows the result in a
// live terminal UI. Grounded on the other_examples/icco-genidi
// cmd/virtual.go + internal/tui pattern (cobra root + bubbletea
// program + lipgloss view), adapted from a live MIDI-input listener to
// a self-contained simulation with no external MIDI device.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scoresim",
	Short: "Simulate a realtime score-clock audio core",
	Long: `scoresim drives the transport/generator/renderer pipeline at a
fixed block rate and displays what it produces: the number of blocks
rendered, any output underflows, and a peak-level meter.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
