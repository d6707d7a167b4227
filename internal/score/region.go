package score

// Region is a half-open span of score time: [Begin, Begin+Size).
type Region struct {
	Begin Cursor
	Size  Cursor
}

// End returns Begin + Size, wrapped through beatsPerMeasure.
func (r Region) End(beatsPerMeasure float64) Cursor {
	return WrappedAddCursor(r.Begin, r.Size, beatsPerMeasure)
}

// SizeBeats returns the region's size flattened to a beat count.
func (r Region) SizeBeats(beatsPerMeasure float64) float64 {
	return r.Size.TotalBeats(beatsPerMeasure)
}

// Loop maps any cursor to the congruent cursor inside [Begin, End)
// using the region's size as the modulus.
func (r Region) Loop(c Cursor, beatsPerMeasure float64) Cursor {
	rel := SubCursor(c, r.Begin, beatsPerMeasure)
	wrapped := Modulo(rel, r.Size, beatsPerMeasure)
	return WrappedAddCursor(r.Begin, wrapped, beatsPerMeasure)
}

// Contains reports whether c lies in the single half-open span
// [Begin, Begin+Size); the region is not treated as periodic.
func (r Region) Contains(c Cursor, beatsPerMeasure float64) bool {
	rel := SubCursor(c, r.Begin, beatsPerMeasure).TotalBeats(beatsPerMeasure)
	size := r.SizeBeats(beatsPerMeasure)
	if size <= 0 {
		return false
	}
	// Normalize rel into [0, size) the same way Loop would, then ask
	// whether the normalized offset is still the unwrapped one — i.e.
	// whether c was already inside a single period starting at Begin.
	normalized := rel
	for normalized < 0 {
		normalized += size
	}
	for normalized >= size {
		normalized -= size
	}
	return normalized == rel
}

// Intersects reports whether two regions' single (non-looped) spans
// overlap, treating both as plain half-open beat intervals anchored at
// their own Begin (no periodicity).
func (r Region) Intersects(other Region, beatsPerMeasure float64) bool {
	rStart := r.Begin.TotalBeats(beatsPerMeasure)
	rEnd := rStart + r.SizeBeats(beatsPerMeasure)
	oStart := other.Begin.TotalBeats(beatsPerMeasure)
	oEnd := oStart + other.SizeBeats(beatsPerMeasure)
	return rStart < oEnd && oStart < rEnd
}

// LoopSegment is one piece of a partitioned source region: a span
// (measured from some loop-relative restart point) together with the
// cumulative block-relative beat offset at which it begins.
type LoopSegment struct {
	Span             Region
	CumulativeOffset float64
}

// PartitionLoop splits a source region — which may begin anywhere
// inside loop and run longer than one loop period — into at most cap
// segments, each of which lies strictly within one period of loop,
// such that consecutive segments rejoin at loop.Begin. The returned
// count is the number of segments written into out (which must have
// length >= cap); segments beyond cap are silently not produced (the
// caller is expected to size cap generously — in practice a block is
// at most a handful of beats and a loop region is never shorter than
// a fraction of a beat in sane configurations).
func PartitionLoop(source, loop Region, beatsPerMeasure float64, out []LoopSegment, cap int) int {
	sourceBeats := source.SizeBeats(beatsPerMeasure)
	loopBeats := loop.SizeBeats(beatsPerMeasure)
	if sourceBeats <= 0 {
		return 0
	}
	if loopBeats <= 0 {
		if cap > 0 {
			out[0] = LoopSegment{Span: source, CumulativeOffset: 0}
			return 1
		}
		return 0
	}

	// Position of source.Begin relative to the start of the loop
	// period it falls inside.
	begin := loop.Loop(source.Begin, beatsPerMeasure)
	offsetIntoLoop := begin.TotalBeats(beatsPerMeasure) - loop.Begin.TotalBeats(beatsPerMeasure)
	if offsetIntoLoop < 0 {
		offsetIntoLoop += loopBeats
	}

	remaining := sourceBeats
	cumulative := 0.0
	segBegin := begin
	count := 0
	for remaining > 0 && count < cap {
		untilWrap := loopBeats - offsetIntoLoop
		segSize := remaining
		if segSize > untilWrap {
			segSize = untilWrap
		}
		out[count] = LoopSegment{
			Span:             Region{Begin: segBegin, Size: FromTotalBeats(segSize, beatsPerMeasure)},
			CumulativeOffset: cumulative,
		}
		count++
		cumulative += segSize
		remaining -= segSize
		offsetIntoLoop = 0
		segBegin = loop.Begin
	}
	return count
}
