package midistream

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outline-audio/scorecore/internal/miditypes"
)

func on(source miditypes.SourceID, frame int32, note uint8) miditypes.MIDIStreamMessage {
	return miditypes.MIDIStreamMessage{
		Frame:    frame,
		SourceID: source,
		Message:  miditypes.NoteOn(0, miditypes.NoteFromNumber(note, 100)),
	}
}

func off(source miditypes.SourceID, frame int32, note uint8) miditypes.MIDIStreamMessage {
	return miditypes.MIDIStreamMessage{
		Frame:    frame,
		SourceID: source,
		Message:  miditypes.NoteOff(0, note),
	}
}

// Property 8: a note-on and note-off for the same note at the same
// frame must net out quiet — the off wins at that frame, and any
// later on for the same note starts a fresh, consistent lifecycle.
func TestSameFrameOnOffNetsQuiet(t *testing.T) {
	s := New(1, 8)
	prevLen := s.BeginBlock()
	s.PushMessages([]miditypes.MIDIStreamMessage{
		on(miditypes.SourceArpeggiator, 10, 60),
		off(miditypes.SourceArpeggiator, 10, 60),
	})
	out := s.WriteBlock(prevLen)

	require.Len(t, out, 2)
	require.True(t, out[0].Message.IsNoteOff(), "off must sort before on at the same frame")
	require.True(t, out[1].Message.IsNoteOn())
	require.Empty(t, s.PlayingNotes(), "note must not be left on")
}

// Property 9: no two frames in the output carry a note-on for a note
// already on from the same source without an intervening note-off —
// exercised via the re-trigger path.
func TestRetriggerEmitsOffBeforeReQueuedOn(t *testing.T) {
	s := New(1, 8)

	prevLen := s.BeginBlock()
	s.PushMessages([]miditypes.MIDIStreamMessage{on(miditypes.SourceArpeggiator, 0, 60)})
	out := s.WriteBlock(prevLen)
	require.Len(t, out, 1)
	require.True(t, out[0].Message.IsNoteOn())

	prevLen = s.BeginBlock()
	s.PushMessages([]miditypes.MIDIStreamMessage{on(miditypes.SourceArpeggiator, 50, 60)})
	out = s.WriteBlock(prevLen)

	require.Len(t, out, 1, "the re-trigger's note-on must not appear in this block's output")
	require.True(t, out[0].Message.IsNoteOff())

	prevLen = s.BeginBlock()
	out = s.WriteBlock(prevLen)
	require.Len(t, out, 1, "the re-queued note-on fires at the start of the following block")
	require.True(t, out[0].Message.IsNoteOn())
	require.Equal(t, int32(0), out[0].Frame)
}

// Scenario S6: source masking — arp is masked out, QTN masked in;
// only QTN's on for a shared note survives, and ownership determines
// which source's later off is honored.
func TestSourceMaskingScenarioS6(t *testing.T) {
	s := New(1, 8)
	s.PushCommand(Command{SetSourceMask: true, SourceMask: SourceMask(0).SetMasked(miditypes.SourceQTN, true)})

	prevLen := s.BeginBlock()
	s.PushMessages([]miditypes.MIDIStreamMessage{
		on(miditypes.SourceArpeggiator, 0, 60),
		on(miditypes.SourceQTN, 0, 60),
	})
	out := s.WriteBlock(prevLen)
	require.Len(t, out, 1)
	require.Equal(t, miditypes.SourceQTN, out[0].SourceID)

	prevLen = s.BeginBlock()
	s.PushMessages([]miditypes.MIDIStreamMessage{off(miditypes.SourceArpeggiator, 10, 60)})
	out = s.WriteBlock(prevLen)
	require.Empty(t, out, "off from a non-owning masked-out source must be dropped")

	prevLen = s.BeginBlock()
	s.PushMessages([]miditypes.MIDIStreamMessage{off(miditypes.SourceQTN, 20, 60)})
	out = s.WriteBlock(prevLen)
	require.Len(t, out, 1, "off from the owning source is always allowed through")
	require.True(t, out[0].Message.IsNoteOff())
}

func TestForceOffClearsPlayingNotes(t *testing.T) {
	s := New(1, 8)
	prevLen := s.BeginBlock()
	s.PushMessages([]miditypes.MIDIStreamMessage{on(miditypes.SourceNCSM, 0, 64)})
	s.WriteBlock(prevLen)
	require.Len(t, s.PlayingNotes(), 1)

	offs := s.ForceOff()
	require.Len(t, offs, 1)
	require.Equal(t, int32(0), offs[0].Frame)
	require.Empty(t, s.PlayingNotes())
}
