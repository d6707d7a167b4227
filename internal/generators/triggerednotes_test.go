package generators

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/score"
)

func TestTriggeredNotesOnOffRoundTrip(t *testing.T) {
	tn := NewTriggeredNotes()
	require.True(t, tn.NoteOn(1, miditypes.NoteFromNumber(60, 100), 0))
	require.True(t, tn.IsPlaying(1, miditypes.NoteFromNumber(60, 100)))

	stream := midistream.New(1, 8)
	blockRegion := score.Region{Begin: score.Zero, Size: score.FromTotalBeats(1.0, beatsPerMeasure)}

	prev := stream.BeginBlock()
	results := tn.ProcessBlock(1, blockRegion, beatsPerMeasure, stream, miditypes.SourceTriggeredNotes)
	msgs := stream.WriteBlock(prev)

	require.Empty(t, results, "no play-result until the note turns off")
	require.Len(t, msgs, 1)
	note, ok := msgs[0].NoteNumber()
	require.True(t, ok)
	require.Equal(t, uint8(60), note)
	require.True(t, msgs[0].Message.IsNoteOn())

	require.True(t, tn.NoteOff(1, miditypes.NoteFromNumber(60, 100)))
	prev = stream.BeginBlock()
	results = tn.ProcessBlock(1, blockRegion, beatsPerMeasure, stream, miditypes.SourceTriggeredNotes)
	msgs = stream.WriteBlock(prev)

	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Message.IsNoteOff())
	require.Len(t, results, 1)
	require.Equal(t, uint32(1), results[0].Track)
	require.Equal(t, uint8(60), results[0].Note.NoteNumber())
	require.False(t, tn.IsPlaying(1, miditypes.NoteFromNumber(60, 100)))
}

func TestTriggeredNotesNoteOnDedupesWhilePlaying(t *testing.T) {
	tn := NewTriggeredNotes()
	require.True(t, tn.NoteOn(1, miditypes.NoteFromNumber(60, 100), 0))
	require.False(t, tn.NoteOn(1, miditypes.NoteFromNumber(60, 100), 0), "re-triggering an already-playing note is a no-op")
}

func TestTriggeredNotesProcessBlockNilWhenIdle(t *testing.T) {
	tn := NewTriggeredNotes()
	stream := midistream.New(1, 8)
	blockRegion := score.Region{Begin: score.Zero, Size: score.FromTotalBeats(1.0, beatsPerMeasure)}
	results := tn.ProcessBlock(1, blockRegion, beatsPerMeasure, stream, miditypes.SourceTriggeredNotes)
	require.Nil(t, results)
}

func TestTriggeredNotesTimeoutFiresAutomaticOff(t *testing.T) {
	tn := NewTriggeredNotes()
	require.True(t, tn.NoteOnTimeout(1, miditypes.NoteFromNumber(60, 100), 0, 0.5))

	stream := midistream.New(1, 8)
	blockRegion := score.Region{Begin: score.Zero, Size: score.FromTotalBeats(1.0, beatsPerMeasure)}

	prev := stream.BeginBlock()
	tn.ProcessBlock(1, blockRegion, beatsPerMeasure, stream, miditypes.SourceTriggeredNotes)
	stream.WriteBlock(prev)
	require.True(t, tn.IsPlaying(1, miditypes.NoteFromNumber(60, 100)))

	tn.Tick(0.3)
	require.True(t, tn.IsPlaying(1, miditypes.NoteFromNumber(60, 100)), "timeout has not elapsed yet")

	tn.Tick(0.3)
	prev = stream.BeginBlock()
	results := tn.ProcessBlock(1, blockRegion, beatsPerMeasure, stream, miditypes.SourceTriggeredNotes)
	msgs := stream.WriteBlock(prev)

	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Message.IsNoteOff())
	require.Len(t, results, 1)
	require.False(t, tn.IsPlaying(1, miditypes.NoteFromNumber(60, 100)), "timeout is the only cancellation mechanism needed here")
}
