// Package generators implements the four MIDI-stream producers that
// share one shape — per block, per slot/voice/track, run a small state
// machine and push sorted messages into a midistream.Stream: immediate
// triggered notes, the arpeggiator, quantized triggered notes (QTN),
// and the note-clip state machine (NCSM) (spec.md §4.10). The per-slot
// state-machine idiom is grounded on the teacher's
// pkg/framework/voice.Allocator — a fixed slot array, mode enums
// switched over per event, and round-robin/steal selection — adapted
// from note-on/off voice allocation to quantized event scheduling.
// TriggeredNotes is the exception to the "quantized" half of that
// description: it fires immediately, grounded instead on the original
// grove TriggeredNotes.cpp.
package generators

import (
	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/score"
)

// frameFor converts an absolute cursor known to lie within
// [blockBegin, blockBegin+blockBeats) into a block-relative sample
// frame, clamped into [0, numFrames-1]. Shared by the arpeggiator and
// QTN; NCSM uses frameForOffset and TriggeredNotes always fires at
// frame 0.
func frameFor(at, blockBegin score.Cursor, beatsPerMeasure, bps float64, numFrames int) int32 {
	offsetBeats := score.SubCursor(at, blockBegin, beatsPerMeasure).TotalBeats(beatsPerMeasure)
	if bps <= 0 || numFrames == 0 {
		return 0
	}
	frame := int32(offsetBeats / bps)
	if frame < 0 {
		frame = 0
	}
	if frame > int32(numFrames-1) {
		frame = int32(numFrames - 1)
	}
	return frame
}

func push(stream *midistream.Stream, source miditypes.SourceID, frame int32, msg miditypes.MidiMsg) {
	stream.PushMessages([]miditypes.MIDIStreamMessage{{Frame: frame, SourceID: source, Message: msg}})
}
