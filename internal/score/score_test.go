package score

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approxEqual(t *testing.T, want, got Cursor, beatsPerMeasure float64, msg string) {
	t.Helper()
	wantBeats := want.TotalBeats(beatsPerMeasure)
	gotBeats := got.TotalBeats(beatsPerMeasure)
	if math.Abs(wantBeats-gotBeats) > 1e-6 {
		t.Errorf("%s: want %+v (%.6f beats), got %+v (%.6f beats)", msg, want, wantBeats, got, gotBeats)
	}
}

func TestAddSubCursorRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	const beatsPerMeasure = 4.0
	for i := 0; i < 500; i++ {
		a := Cursor{Measure: int64(r.Intn(2000) - 1000), Beat: r.Float64() * beatsPerMeasure}
		b := Cursor{Measure: int64(r.Intn(200) - 100), Beat: r.Float64()*8 - 4}

		added := WrappedAddCursor(a, b, beatsPerMeasure)
		back := SubCursor(added, b, beatsPerMeasure)
		approxEqual(t, a.Wrap(beatsPerMeasure), back, beatsPerMeasure, "add/sub round trip")
	}
}

func TestModuloInRange(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	const beatsPerMeasure = 4.0
	for i := 0; i < 500; i++ {
		a := Cursor{Measure: int64(r.Intn(4000) - 2000), Beat: r.Float64()*20 - 10}
		span := Cursor{Measure: int64(r.Intn(4) + 1), Beat: r.Float64() * beatsPerMeasure}
		if span.TotalBeats(beatsPerMeasure) <= 0 {
			continue
		}

		got := Modulo(a, span, beatsPerMeasure)
		gotBeats := got.TotalBeats(beatsPerMeasure)
		spanBeats := span.TotalBeats(beatsPerMeasure)

		assert.GreaterOrEqual(t, gotBeats, -1e-6)
		assert.Less(t, gotBeats, spanBeats+1e-6)
	}
}

func TestPartitionLoopCoversSourceSize(t *testing.T) {
	const beatsPerMeasure = 4.0
	loop := Region{Begin: Cursor{}, Size: Cursor{Beat: 4}}
	source := Region{Begin: Cursor{Beat: 3.5}, Size: Cursor{Beat: 8}}

	out := make([]LoopSegment, 16)
	count := PartitionLoop(source, loop, beatsPerMeasure, out, len(out))
	require.Greater(t, count, 0)

	sum := 0.0
	for i := 0; i < count; i++ {
		seg := out[i]
		sum += seg.Span.SizeBeats(beatsPerMeasure)

		beginBeats := seg.Span.Begin.TotalBeats(beatsPerMeasure)
		endBeats := beginBeats + seg.Span.SizeBeats(beatsPerMeasure)
		loopBeginBeats := loop.Begin.TotalBeats(beatsPerMeasure)
		loopEndBeats := loopBeginBeats + loop.SizeBeats(beatsPerMeasure)

		assert.GreaterOrEqual(t, beginBeats, loopBeginBeats-1e-6)
		assert.LessOrEqual(t, endBeats, loopEndBeats+1e-6)
	}
	assert.InDelta(t, source.SizeBeats(beatsPerMeasure), sum, 1e-6)
}

func TestNextQuantumMonotonicAndSpaced(t *testing.T) {
	const beatsPerMeasure = 4.0
	cursors := []Cursor{
		{Measure: 0, Beat: 0},
		{Measure: 0, Beat: 0.3},
		{Measure: 2, Beat: 1.0},
		{Measure: 5, Beat: 3.99},
	}
	for _, c := range cursors {
		g1 := NextQuantum(c, DivisionQuarter, beatsPerMeasure)
		assert.True(t, c.LessEqual(g1), "next quantum must be >= cursor")

		g2 := NextQuantum(g1, DivisionQuarter, beatsPerMeasure)
		diff := g2.TotalBeats(beatsPerMeasure) - g1.TotalBeats(beatsPerMeasure)
		assert.InDelta(t, BeatsPerQuantum(DivisionQuarter, beatsPerMeasure), diff, 1e-6)
	}
}

func TestQuantizeFloor(t *testing.T) {
	const beatsPerMeasure = 4.0
	c := Cursor{Measure: 1, Beat: 1.9}
	got := QuantizeFloor(c, DivisionHalf, beatsPerMeasure)
	want := Cursor{Measure: 1, Beat: 1.0}
	approxEqual(t, want, got, beatsPerMeasure, "quantize floor to half note")
}
