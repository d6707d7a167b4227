package generators

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/score"
)

func TestQTNChainsConsecutiveTriggers(t *testing.T) {
	qtn := NewQTN(beatsPerMeasure)
	qtn.Trigger(1, QTNTrigger{Note: miditypes.NoteFromNumber(60, 100), Quant: score.DivisionQuarter, BeatDuration: 0.5})
	qtn.Trigger(1, QTNTrigger{Note: miditypes.NoteFromNumber(64, 100), Quant: score.DivisionQuarter, BeatDuration: 0.5})

	stream := midistream.New(1, 8)
	blockBeats := bps() * float64(blockFrames)

	var msgs []miditypes.MIDIStreamMessage
	cursor := score.Zero
	for elapsed := 0.0; elapsed < 8.0; elapsed += blockBeats {
		blockRegion := score.Region{Begin: cursor, Size: score.FromTotalBeats(blockBeats, beatsPerMeasure)}
		prev := stream.BeginBlock()
		qtn.ProcessBlock(1, blockRegion, bps(), blockFrames, stream, miditypes.SourceQTN)
		msgs = append(msgs, stream.WriteBlock(prev)...)
		cursor = score.WrappedAddBeats(cursor, blockBeats, beatsPerMeasure)
	}

	var ons, offs []uint8
	for _, m := range msgs {
		note, ok := m.NoteNumber()
		if !ok {
			continue
		}
		if m.Message.IsNoteOn() {
			ons = append(ons, note)
		} else if m.Message.IsNoteOff() {
			offs = append(offs, note)
		}
	}

	require.Equal(t, []uint8{60, 64}, ons, "both queued triggers must eventually fire in order")
	require.Equal(t, []uint8{60, 64}, offs)
}
