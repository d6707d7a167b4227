package miditypes

import "fmt"

// SourceID identifies which generator produced a MIDIStreamMessage, so
// streams can mask contributions per generator kind (spec.md §4.5).
type SourceID uint8

// Fixed source ids for the generator kinds this core ships. Spec §9
// pins these to one id per generator *kind* rather than per instance
// (see SPEC_FULL.md §9, decision 2).
const (
	SourceTimeline SourceID = iota
	SourceArpeggiator
	SourceQTN
	SourceNCSM
	SourceTriggeredNotes
)

// MIDIStreamMessage is a single MIDI event scheduled at a frame offset
// within the current block, tagged with the source that produced it
// (spec.md §3).
type MIDIStreamMessage struct {
	Frame    int32
	SourceID SourceID
	Message  MidiMsg
}

func (m MIDIStreamMessage) String() string {
	return fmt.Sprintf("frame=%d source=%d msg=%v", m.Frame, m.SourceID, m.Message.Message)
}

// NoteNumber is a convenience accessor used by stream sort/merge
// logic; returns 0, false for non-note messages.
func (m MIDIStreamMessage) NoteNumber() (uint8, bool) {
	n, _, ok := m.Message.NoteNumberAndChannel()
	return n, ok
}
