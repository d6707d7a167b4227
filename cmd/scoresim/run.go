package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/outline-audio/scorecore/internal/corelog"
	"github.com/outline-audio/scorecore/internal/generators"
	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/noteindex"
	"github.com/outline-audio/scorecore/internal/renderer"
	"github.com/outline-audio/scorecore/internal/score"
)

var (
	flagBPM             float64
	flagBeatsPerMeasure float64
	flagSampleRate      float64
	flagBlockFrames     int
)

const (
	demoTimelineStream    = midistream.StreamID(1)
	demoArpeggiatorStream = midistream.StreamID(2)
)

func init() {
	rootCmd.Flags().Float64Var(&flagBPM, "bpm", 120.0, "transport tempo")
	rootCmd.Flags().Float64Var(&flagBeatsPerMeasure, "beats-per-measure", 4.0, "time signature numerator, in beats")
	rootCmd.Flags().Float64Var(&flagSampleRate, "sample-rate", 48000.0, "simulated audio sample rate")
	rootCmd.Flags().IntVar(&flagBlockFrames, "block-frames", 512, "simulated audio callback block size")
	rootCmd.RunE = runSim
}

func runSim(cmd *cobra.Command, args []string) error {
	r := buildDemoRenderer()

	m := newSimModel(r)
	program := tea.NewProgram(m, tea.WithAltScreen())
	m.program = program

	go driveBlocks(program, r)

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("scoresim: %w", err)
	}
	return nil
}

// buildDemoRenderer wires one loop-playing timeline track and one
// cycle-up arpeggiator, giving the simulation something audible to
// show without requiring a MIDI controller.
func buildDemoRenderer() *renderer.Renderer {
	r := renderer.New(flagSampleRate, flagBeatsPerMeasure, flagBlockFrames)
	r.Transport.SetBPM(flagBPM)

	loop := score.Region{
		Begin: score.Cursor{},
		Size:  score.FromTotalBeats(flagBeatsPerMeasure, flagBeatsPerMeasure),
	}
	clip := r.Clips.Create(loop)
	for i, note := range []uint8{60, 64, 67, 71} {
		r.Clips.AddNote(clip, noteindex.ClipNote{
			Span: score.Region{
				Begin: score.FromTotalBeats(float64(i), flagBeatsPerMeasure),
				Size:  score.FromTotalBeats(0.5, flagBeatsPerMeasure),
			},
			Note: miditypes.NoteFromNumber(note, 100),
		})
	}
	r.Clips.EndUpdate()

	track := r.Timeline.CreateTrack(demoTimelineStream, 0, &loop)
	r.Timeline.AddClip(track, clip)
	r.BindTrack(track, demoTimelineStream)

	r.Arp.ConfigureSlot(0, generators.ArpSlotConfig{
		PitchMode:    generators.PitchModeCycleUp,
		DurationMode: generators.DurationModeFixed,
		Grid:         score.DivisionEighth,
		BaseNotes:    []uint8{48},
		Step:         5,
		NumSteps:     3,
		Channel:      1,
		Velocity:     90,
	})
	r.Arp.SetNumActiveSlots(1)
	r.BindArpeggiator(demoArpeggiatorStream)

	r.Transport.Play()
	return r
}

// driveBlocks runs the render loop at roughly the rate a real audio
// device would pull blocks, forwarding a status snapshot to the TUI
// after each one.
func driveBlocks(program *tea.Program, r *renderer.Renderer) {
	interval := time.Duration(float64(flagBlockFrames) / flagSampleRate * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	out := make([]float32, flagBlockFrames)
	for range ticker.C {
		r.Render()
		r.Output(out, flagBlockFrames)

		var peak float32
		for _, s := range out {
			if s < 0 {
				s = -s
			}
			if s > peak {
				peak = s
			}
		}
		if r.LastUnderflow() {
			corelog.Warn("output underflow")
		}
		program.Send(blockRenderedMsg{peak: peak, underflow: r.LastUnderflow()})
	}
}

func init() {
	corelog.SetLevel(corelogLevelFromEnv())
}

func corelogLevelFromEnv() corelog.Level {
	if os.Getenv("SCORESIM_DEBUG") != "" {
		return corelog.LevelDebug
	}
	return corelog.LevelInfo
}
