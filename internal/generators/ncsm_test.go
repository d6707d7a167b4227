package generators

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/noteclip"
	"github.com/outline-audio/scorecore/internal/noteindex"
	"github.com/outline-audio/scorecore/internal/score"
)

func regionBeats(begin, size float64) score.Region {
	return score.Region{Begin: score.Cursor{Beat: begin}, Size: score.Cursor{Beat: size}}
}

func longNote(begin, size float64, number uint8) noteindex.ClipNote {
	return noteindex.ClipNote{
		Span: regionBeats(begin, size),
		Note: miditypes.NoteFromNumber(number, 100),
	}
}

// TestNCSMStopMidNoteEmitsSingleOff covers scenario S5: a voice is in
// the middle of a long note when the transport stops; the very next
// block must emit exactly one note-off at frame 0 and leave the
// voice's playing-notes set empty on entry to the block after.
func TestNCSMStopMidNoteEmitsSingleOff(t *testing.T) {
	clips := noteclip.New(beatsPerMeasure)
	clip := clips.Create(regionBeats(0, 4))
	require.True(t, clips.AddNote(clip, longNote(0, 4, 65)))
	require.True(t, clips.EndUpdate())
	require.True(t, clips.AcceptLatest())

	ncsm := NewNCSM(clips, beatsPerMeasure, 4)
	ncsm.SetSections([]NCSMSection{{Clip: clip, Span: regionBeats(0, 4)}})

	stream := midistream.New(1, 4)
	bps := bpm / 60.0 / sampleRate
	numFrames := int(4.0 / bps)

	prev := stream.BeginBlock()
	ncsm.ProcessBlock(1, 0, stream, regionBeats(0, 4), bps, numFrames, true, false, true)
	stream.WriteBlock(prev)
	require.NotEmpty(t, ncsm.voices[1].playing, "note must be sounding mid-block before stop")

	prev = stream.BeginBlock()
	ncsm.ProcessBlock(1, 0, stream, regionBeats(2, 4), bps, numFrames, false, true, false)
	out := stream.WriteBlock(prev)
	require.Len(t, out, 1)
	require.True(t, out[0].Message.IsNoteOff())
	require.Equal(t, int32(0), out[0].Frame)
	require.Empty(t, ncsm.voices[1].playing)
}

func TestNCSMSectionHandoffAppliesOnJustPlayed(t *testing.T) {
	clips := noteclip.New(beatsPerMeasure)
	clipA := clips.Create(regionBeats(0, 4))
	clipB := clips.Create(regionBeats(0, 4))
	require.True(t, clips.AddNote(clipA, longNote(0, 1, 60)))
	require.True(t, clips.AddNote(clipB, longNote(0, 1, 70)))
	require.True(t, clips.EndUpdate())
	require.True(t, clips.AcceptLatest())

	ncsm := NewNCSM(clips, beatsPerMeasure, 4)
	ncsm.SetSections([]NCSMSection{
		{Clip: clipA, Span: regionBeats(0, 4)},
		{Clip: clipB, Span: regionBeats(0, 4)},
	})
	ncsm.RequestSectionChange(1, 0, 1)

	stream := midistream.New(1, 4)
	bps := bpm / 60.0 / sampleRate
	numFrames := int(4.0 / bps)

	prev := stream.BeginBlock()
	ncsm.ProcessBlock(1, 0, stream, regionBeats(0, 4), bps, numFrames, true, false, true)
	out := stream.WriteBlock(prev)
	require.NotEmpty(t, out)
	note, _ := out[0].NoteNumber()
	require.Equal(t, uint8(70), note, "hand-off to section 1 must apply before the first note starts")
}
