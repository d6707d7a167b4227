package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outline-audio/scorecore/internal/miditypes"
)

func TestNoteOnProducesNonSilentOutput(t *testing.T) {
	g := New(48000)
	g.ApplyMessages([]miditypes.MIDIStreamMessage{
		{Frame: 0, SourceID: miditypes.SourceTimeline, Message: miditypes.NoteOn(0, miditypes.NoteFromNumber(60, 100))},
	})

	out := make([]float32, 512)
	g.Process(out)

	var sumAbs float64
	for _, s := range out {
		if s < 0 {
			sumAbs -= float64(s)
		} else {
			sumAbs += float64(s)
		}
	}
	require.Greater(t, sumAbs, 0.0)
	require.Equal(t, 1, g.ActiveVoiceCount())
}

func TestNoteOffEventuallySilencesVoice(t *testing.T) {
	g := New(48000)
	g.ApplyMessages([]miditypes.MIDIStreamMessage{
		{Frame: 0, SourceID: miditypes.SourceTimeline, Message: miditypes.NoteOn(0, miditypes.NoteFromNumber(60, 100))},
	})
	out := make([]float32, 512)
	g.Process(out)
	require.Equal(t, 1, g.ActiveVoiceCount())

	g.ApplyMessages([]miditypes.MIDIStreamMessage{
		{Frame: 0, SourceID: miditypes.SourceTimeline, Message: miditypes.NoteOff(0, 60)},
	})
	for i := 0; i < 50; i++ {
		g.Process(out)
	}
	require.Equal(t, 0, g.ActiveVoiceCount())
}

func TestVoiceStealingReusesOldestVoiceBeyondCapacity(t *testing.T) {
	g := New(48000)
	var msgs []miditypes.MIDIStreamMessage
	for i := 0; i < MaxVoices+1; i++ {
		msgs = append(msgs, miditypes.MIDIStreamMessage{
			Frame: 0, SourceID: miditypes.SourceTimeline,
			Message: miditypes.NoteOn(0, miditypes.NoteFromNumber(uint8(40+i), 100)),
		})
	}
	g.ApplyMessages(msgs)
	require.Equal(t, MaxVoices, g.ActiveVoiceCount(), "voice count must be capped, not grow past MaxVoices")
}
