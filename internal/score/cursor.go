// Package score implements pure arithmetic over musical time: cursors,
// regions, and quantization grids. Every function is pure — beats per
// measure is passed explicitly rather than held as package state, so
// callers on both the UI and audio thread can share it without locking.
package score

import "math"

// Cursor is a position in musical time: a measure count and a real
// beat offset within that measure. Beat is always kept in
// [0, beatsPerMeasure) by the wrapping helpers below; callers that
// construct a Cursor directly (e.g. from a literal) are responsible
// for that invariant if they skip Wrap.
type Cursor struct {
	Measure int64
	Beat    float64
}

// Zero is the cursor at the start of the score.
var Zero = Cursor{}

// Less orders cursors lexicographically: measure first, then beat.
func (c Cursor) Less(other Cursor) bool {
	if c.Measure != other.Measure {
		return c.Measure < other.Measure
	}
	return c.Beat < other.Beat
}

// LessEqual is Less or exact equality.
func (c Cursor) LessEqual(other Cursor) bool {
	return c.Less(other) || c == other
}

// Wrap normalizes Beat into [0, beatsPerMeasure), carrying whole
// measures out of the beat component. beatsPerMeasure must be > 0.
func (c Cursor) Wrap(beatsPerMeasure float64) Cursor {
	if beatsPerMeasure <= 0 {
		return c
	}
	beat := c.Beat
	measure := c.Measure

	wholeMeasures := math.Floor(beat / beatsPerMeasure)
	if wholeMeasures != 0 {
		measure += int64(wholeMeasures)
		beat -= wholeMeasures * beatsPerMeasure
	}
	// Floor can leave a residual of exactly beatsPerMeasure due to
	// float error; clamp it back into range.
	if beat < 0 {
		beat += beatsPerMeasure
		measure--
	} else if beat >= beatsPerMeasure {
		beat -= beatsPerMeasure
		measure++
	}
	return Cursor{Measure: measure, Beat: beat}
}

// WrappedAddBeats adds d beats to c, carrying whole-measure wraps into
// Measure. Works for negative d.
func WrappedAddBeats(c Cursor, d float64, beatsPerMeasure float64) Cursor {
	return Cursor{Measure: c.Measure, Beat: c.Beat + d}.Wrap(beatsPerMeasure)
}

// WrappedAddCursor adds two cursors component-wise, wrapping the beat
// component through beatsPerMeasure.
func WrappedAddCursor(a, b Cursor, beatsPerMeasure float64) Cursor {
	return Cursor{Measure: a.Measure + b.Measure, Beat: a.Beat + b.Beat}.Wrap(beatsPerMeasure)
}

// SubCursor subtracts b from a, wrapping the beat component through
// beatsPerMeasure.
func SubCursor(a, b Cursor, beatsPerMeasure float64) Cursor {
	return Cursor{Measure: a.Measure - b.Measure, Beat: a.Beat - b.Beat}.Wrap(beatsPerMeasure)
}

// WrappedScale scales both components of c by s. A fractional measure
// result rounds down, with the remainder folded into beats before the
// final wrap.
func WrappedScale(c Cursor, s float64, beatsPerMeasure float64) Cursor {
	scaledMeasure := float64(c.Measure) * s
	scaledBeat := c.Beat * s

	wholeMeasure := math.Floor(scaledMeasure)
	remainder := scaledMeasure - wholeMeasure

	return Cursor{
		Measure: int64(wholeMeasure),
		Beat:    scaledBeat + remainder*beatsPerMeasure,
	}.Wrap(beatsPerMeasure)
}

// TotalBeats flattens a cursor to a single beat count, for arithmetic
// that is easier to express linearly (e.g. region-size math where the
// modulus is a region size rather than beatsPerMeasure).
func (c Cursor) TotalBeats(beatsPerMeasure float64) float64 {
	return float64(c.Measure)*beatsPerMeasure + c.Beat
}

// FromTotalBeats is the inverse of TotalBeats.
func FromTotalBeats(totalBeats float64, beatsPerMeasure float64) Cursor {
	if beatsPerMeasure <= 0 {
		return Cursor{Beat: totalBeats}
	}
	measure := math.Floor(totalBeats / beatsPerMeasure)
	beat := totalBeats - measure*beatsPerMeasure
	return Cursor{Measure: int64(measure), Beat: beat}
}

// Modulo computes a mod span, iteratively, under the ordinary cursor
// ordering. span must be strictly positive (span.TotalBeats > 0); a
// non-positive span is a caller error — in that case Modulo clamps by
// returning a unchanged (debug builds should assert instead).
func Modulo(a Cursor, span Cursor, beatsPerMeasure float64) Cursor {
	spanBeats := span.TotalBeats(beatsPerMeasure)
	if spanBeats <= 0 {
		return a
	}
	aBeats := a.TotalBeats(beatsPerMeasure)
	wrapped := math.Mod(aBeats, spanBeats)
	if wrapped < 0 {
		wrapped += spanBeats
	}
	return FromTotalBeats(wrapped, beatsPerMeasure)
}
