package noteclip

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/noteindex"
	"github.com/outline-audio/scorecore/internal/score"
)

const beatsPerMeasure = 4.0

func clipNote(beat, size float64, number uint8) noteindex.ClipNote {
	return noteindex.ClipNote{
		Span: score.Region{Begin: score.Cursor{Beat: beat}, Size: score.Cursor{Beat: size}},
		Note: miditypes.NoteFromNumber(number, 100),
	}
}

func TestAddNoteReplacesOverlappingSamePitch(t *testing.T) {
	sys := New(beatsPerMeasure)
	clip := sys.Create(score.Region{Begin: score.Zero, Size: score.Cursor{Measure: 1}})

	require.True(t, sys.AddNote(clip, clipNote(0, 2, 60)))
	require.True(t, sys.AddNote(clip, clipNote(1, 1, 60))) // overlaps and replaces the first

	require.True(t, sys.EndUpdate())
	require.True(t, sys.AcceptLatest())

	clips := sys.Clips()
	require.Len(t, clips, 1)

	out := make([]noteindex.ClipNote, 4)
	n := sys.CollectNotesIntersectingRegion(clips[0].Index, score.Region{Begin: score.Zero, Size: score.Cursor{Measure: 1}}, out, 4)
	require.Equal(t, 1, n, "overlapping same-pitch note must have been replaced, not duplicated")
	require.Equal(t, 1.0, out[0].Span.Begin.Beat)
}

func TestCloneSharesThenDivergesOnWrite(t *testing.T) {
	sys := New(beatsPerMeasure)
	src := sys.Create(score.Region{Begin: score.Zero, Size: score.Cursor{Measure: 1}})
	require.True(t, sys.AddNote(src, clipNote(0, 1, 50)))

	clone, ok := sys.Clone(src, score.Region{Begin: score.Zero, Size: score.Cursor{Measure: 1}})
	require.True(t, ok)
	require.True(t, sys.AddNote(clone, clipNote(2, 1, 70)))

	require.True(t, sys.EndUpdate())
	require.True(t, sys.AcceptLatest())

	clips := sys.Clips()
	require.Len(t, clips, 2)

	var srcClip, cloneClip *NoteClip
	for _, c := range clips {
		if c.Handle == src {
			srcClip = c
		} else {
			cloneClip = c
		}
	}
	require.NotNil(t, srcClip)
	require.NotNil(t, cloneClip)

	out := make([]noteindex.ClipNote, 4)
	n := sys.CollectNotesIntersectingRegion(srcClip.Index, score.Region{Begin: score.Zero, Size: score.Cursor{Measure: 1}}, out, 4)
	require.Equal(t, 1, n, "src must be unaffected by the clone's mutation")
}

func TestModifyNoteMovesNote(t *testing.T) {
	sys := New(beatsPerMeasure)
	clip := sys.Create(score.Region{Begin: score.Zero, Size: score.Cursor{Measure: 1}})
	require.True(t, sys.AddNote(clip, clipNote(0, 1, 64)))

	ok := sys.ModifyNote(clip, func(n noteindex.ClipNote) bool {
		return n.Note.NoteNumber() == 64
	}, clipNote(2, 1, 67))
	require.True(t, ok)

	require.True(t, sys.EndUpdate())
	require.True(t, sys.AcceptLatest())

	clips := sys.Clips()
	out := make([]noteindex.ClipNote, 4)
	n := sys.CollectNotesIntersectingRegion(clips[0].Index, score.Region{Begin: score.Zero, Size: score.Cursor{Measure: 1}}, out, 4)
	require.Equal(t, 1, n)
	require.Equal(t, uint8(67), out[0].Note.NoteNumber())
}
