package paramsys

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outline-audio/scorecore/internal/score"
)

const beatsPerMeasure = 4.0
const sampleRate = 48000.0
const bpm = 120.0

func bps() float64 { return bpm / 60.0 / sampleRate }

var paramP = ParamID{Parent: 1, Self: 0}

// Property 12: two break-points (t0,v0),(t1,v1) swept at constant BPM
// produce interpolated values matching lerp((t-t0)/(t1-t0), v0, v1)
// within a tolerance of |v1-v0|/block_frames.
func TestInterpolatedChangeMatchesLerpWithinTolerance(t *testing.T) {
	v0, v1 := 0.0, 1.0
	t0 := score.Zero
	t1 := score.Cursor{Measure: 1}
	region := score.Region{Begin: score.Zero, Size: score.Cursor{Measure: 2}}
	pts := []BreakPoint{
		{ID: 1, Position: t0, Value: Value{Kind: KindFloat, Float: v0}},
		{ID: 2, Position: t1, Value: Value{Kind: KindFloat, Float: v1}},
	}

	numFrames := 512
	tolerance := math.Abs(v1-v0) / float64(numFrames)

	for frame := 0; frame < numFrames; frame += 64 {
		cursor := score.FromTotalBeats(bps()*float64(frame), beatsPerMeasure)
		got, ok := interpolateAt(pts, cursor, beatsPerMeasure, region)
		require.True(t, ok)

		tt := cursor.TotalBeats(beatsPerMeasure)
		tt0 := t0.TotalBeats(beatsPerMeasure)
		tt1 := t1.TotalBeats(beatsPerMeasure)
		expected := v0 + (tt-tt0)/(tt1-tt0)*(v1-v0)

		require.InDelta(t, expected, got.Float, tolerance+1e-9)
	}
}

// Scenario S3: UI sets p=0.25 immediately, then reverts; expects an
// immediate change to 0.25 at frame 0, then (after revert) a change
// interpolated from the break points.
func TestRevertToBreakPointsScenarioS3(t *testing.T) {
	sys := New()
	region := score.Region{Begin: score.Zero, Size: score.Cursor{Measure: 2}}
	h := sys.CreateSet(region)
	require.True(t, sys.AddPoint(h, paramP, BreakPoint{ID: 1, Position: score.Zero, Value: Value{Kind: KindFloat, Float: 0.0}}))
	require.True(t, sys.AddPoint(h, paramP, BreakPoint{ID: 2, Position: score.Cursor{Measure: 2}, Value: Value{Kind: KindFloat, Float: 1.0}}))
	sys.SetActiveSet(h)
	require.True(t, sys.EndUpdate())

	numFrames := 512
	blockSize := score.FromTotalBeats(bps()*float64(numFrames), beatsPerMeasure)
	blockRegion := score.Region{Begin: score.Zero, Size: blockSize}
	sys.RenderBlock(blockRegion, beatsPerMeasure, bps(), numFrames, false)

	require.True(t, sys.SetValue(1, paramP, Value{Kind: KindFloat, Float: 0.25}))
	require.True(t, sys.EndUpdate())

	changes := sys.RenderBlock(blockRegion, beatsPerMeasure, bps(), numFrames, false)
	require.Len(t, changes, 1)
	require.Equal(t, int32(0), changes[0].AtFrame)
	require.InDelta(t, 0.25, changes[0].Value.Float, 1e-9)

	sys.RevertToBreakPoints(paramP)
	require.True(t, sys.EndUpdate())

	cursorAtRevert := score.Cursor{Measure: 1}
	revertRegion := score.Region{Begin: cursorAtRevert, Size: blockSize}
	changes = sys.RenderBlock(revertRegion, beatsPerMeasure, bps(), numFrames, false)
	require.NotEmpty(t, changes)
	require.Equal(t, int32(0), changes[0].AtFrame)
	require.InDelta(t, 0.5, changes[0].Value.Float, 0.05, "halfway between the two break points at measure 1 of 2")
}

func TestStepParameterHoldsPriorValue(t *testing.T) {
	sys := New()
	region := score.Region{Begin: score.Zero, Size: score.Cursor{Measure: 2}}
	h := sys.CreateSet(region)
	require.True(t, sys.AddPoint(h, paramP, BreakPoint{ID: 1, Position: score.Zero, Value: Value{Kind: KindInt, Int: 5}}))
	require.True(t, sys.AddPoint(h, paramP, BreakPoint{ID: 2, Position: score.Cursor{Measure: 1}, Value: Value{Kind: KindInt, Int: 9}}))
	sys.SetActiveSet(h)
	require.True(t, sys.EndUpdate())

	numFrames := 512
	blockSize := score.FromTotalBeats(bps()*float64(numFrames), beatsPerMeasure)
	blockRegion := score.Region{Begin: score.Zero, Size: blockSize}
	changes := sys.RenderBlock(blockRegion, beatsPerMeasure, bps(), numFrames, false)

	for _, c := range changes {
		if c.Param == paramP {
			require.Equal(t, int64(5), c.Value.Int)
			require.Equal(t, int32(0), c.FrameDistance)
		}
	}
}
