package score

import "math"

// Division names a beat-grid division, per spec §3's closed enum
// {M, H, Q, 8, 16, 32, 64}.
type Division int

const (
	DivisionMeasure Division = iota
	DivisionHalf
	DivisionQuarter
	DivisionEighth
	DivisionSixteenth
	DivisionThirtySecond
	DivisionSixtyFourth
)

// BeatsPerQuantum returns the grid spacing, in beats, for a division.
// A "beat" is a quarter note (reference_time_signature = 4/4), so
// every division except Measure is independent of beatsPerMeasure.
func BeatsPerQuantum(d Division, beatsPerMeasure float64) float64 {
	switch d {
	case DivisionMeasure:
		return beatsPerMeasure
	case DivisionHalf:
		return 2.0
	case DivisionQuarter:
		return 1.0
	case DivisionEighth:
		return 0.5
	case DivisionSixteenth:
		return 0.25
	case DivisionThirtySecond:
		return 0.125
	case DivisionSixtyFourth:
		return 0.0625
	default:
		return 1.0
	}
}

const quantEpsilon = 1e-9

// QuantizeFloor floors a cursor's absolute beat position to the
// nearest Q-line at or below it.
func QuantizeFloor(c Cursor, d Division, beatsPerMeasure float64) Cursor {
	grid := BeatsPerQuantum(d, beatsPerMeasure)
	total := c.TotalBeats(beatsPerMeasure)
	floored := math.Floor(total/grid+quantEpsilon) * grid
	return FromTotalBeats(floored, beatsPerMeasure)
}

// NextQuantum returns the smallest cursor strictly greater than or
// equal to cursor whose beat lies exactly on a Q-grid line, with one
// refinement to make repeated application useful to generators: if
// cursor already sits on the grid, NextQuantum advances to the
// following grid line rather than returning cursor unchanged. This
// keeps a generator that calls NextQuantum(latestEvent, Q) from
// re-firing on the same instant it just fired on, and is what makes
// NextQuantum(NextQuantum(c, Q), Q) - NextQuantum(c, Q) ==
// BeatsPerQuantum(Q) hold for every c, not just those already off the
// grid (see spec.md §8 property 4).
func NextQuantum(c Cursor, d Division, beatsPerMeasure float64) Cursor {
	grid := BeatsPerQuantum(d, beatsPerMeasure)
	total := c.TotalBeats(beatsPerMeasure)
	n := total / grid
	floor := math.Floor(n + quantEpsilon)
	if math.Abs(n-floor) < quantEpsilon {
		// Exactly on grid: advance one full quantum.
		return FromTotalBeats((floor+1)*grid, beatsPerMeasure)
	}
	return FromTotalBeats(math.Ceil(n)*grid, beatsPerMeasure)
}
