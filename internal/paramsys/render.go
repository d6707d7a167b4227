package paramsys

import (
	"sort"

	"github.com/outline-audio/scorecore/internal/score"
)

const maxPartitionSegments = 8

// RenderBlock computes this block's sorted AudioParameterChange list
// (spec.md §4.7 steps 1-7). blockRegion is the score region this
// block covers; bps is beats-per-sample at the current tempo;
// justStopped marks the block containing the transport's
// just_stopped edge.
func (s *System) RenderBlock(blockRegion score.Region, beatsPerMeasure, bps float64, numFrames int, justStopped bool) []AudioParameterChange {
	var changes []AudioParameterChange

	activeChanged := false
	if snap, ok := s.publish.Read(); ok {
		changes = append(changes, s.diffAgainstPrevious(snap, blockRegion.Begin, beatsPerMeasure)...)
		activeChanged = s.render == nil || s.render.activeSet != snap.activeSet
		s.render = snap
		s.publish.Acknowledged()
	}
	if s.render == nil {
		return changes
	}

	set, hasSet := s.render.sets[s.render.activeSet]

	if hasSet {
		var segments [maxPartitionSegments]score.LoopSegment
		n := score.PartitionLoop(blockRegion, set.Region, beatsPerMeasure, segments[:], maxPartitionSegments)
		for i := 0; i < n; i++ {
			for id, pts := range set.Points {
				if s.render.controlledByUI[id] || len(pts) == 0 {
					continue
				}
				changes = append(changes, emitInSegment(id, pts, segments[i], beatsPerMeasure, bps, numFrames)...)
			}
		}
	}

	if activeChanged && hasSet {
		changes = append(changes, s.resyncChanges(set, blockRegion.Begin, beatsPerMeasure)...)
	}

	if justStopped && hasSet {
		changes = append(changes, s.resyncChanges(set, blockRegion.Begin, beatsPerMeasure)...)
	}

	sortChanges(changes)

	if hasSet {
		s.cursorFeedback.Push(blockRegion.Begin)
	}
	return changes
}

// diffAgainstPrevious implements steps 1 and 4: immediate changes for
// values newly set or newly released by the UI since the last
// acknowledged snapshot.
func (s *System) diffAgainstPrevious(snap *snapshot, cursor score.Cursor, beatsPerMeasure float64) []AudioParameterChange {
	var out []AudioParameterChange
	for id, v := range snap.uiValues {
		prevV, wasControlled := s.render.lookupUIValue(id)
		if !wasControlled || prevV != v {
			out = append(out, AudioParameterChange{Param: id, Value: v, AtFrame: 0, FrameDistance: 0})
		}
	}
	if s.render != nil {
		for id := range s.render.uiValues {
			if snap.controlledByUI[id] {
				continue
			}
			if set, ok := snap.sets[snap.activeSet]; ok {
				if v, ok := interpolateAt(set.Points[id], cursor, beatsPerMeasure, set.Region); ok {
					out = append(out, AudioParameterChange{Param: id, Value: v, AtFrame: 0, FrameDistance: 0})
				}
			}
		}
	}
	return out
}

func (s *snapshot) lookupUIValue(id ParamID) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	v, ok := s.uiValues[id]
	return v, ok
}

// resyncChanges implements steps 3/5/6: bring every non-UI-controlled
// parameter with points to the value it should have right now.
func (s *System) resyncChanges(set *BreakPointSet, cursor score.Cursor, beatsPerMeasure float64) []AudioParameterChange {
	var out []AudioParameterChange
	for id, pts := range set.Points {
		if s.render.controlledByUI[id] || len(pts) == 0 {
			continue
		}
		if v, ok := interpolateAt(pts, cursor, beatsPerMeasure, set.Region); ok {
			out = append(out, AudioParameterChange{Param: id, Value: v, AtFrame: 0, FrameDistance: 0})
		}
	}
	return out
}

func sortChanges(changes []AudioParameterChange) {
	sort.SliceStable(changes, func(i, j int) bool {
		if changes[i].AtFrame != changes[j].AtFrame {
			return changes[i].AtFrame < changes[j].AtFrame
		}
		if changes[i].Param.Parent != changes[j].Param.Parent {
			return changes[i].Param.Parent < changes[j].Param.Parent
		}
		return changes[i].Param.Self < changes[j].Param.Self
	})
}

// surroundingPoints finds the break points bracketing pos. With a
// single point, both returned points are that point and the
// interpolation fraction is defined as zero (SPEC_FULL.md §9 Open
// Question: single break-point degenerate lerp).
func surroundingPoints(pts []BreakPoint, pos score.Cursor, beatsPerMeasure float64) (BreakPoint, BreakPoint) {
	if len(pts) == 1 {
		return pts[0], pts[0]
	}
	posBeats := pos.TotalBeats(beatsPerMeasure)
	for i, p := range pts {
		if p.Position.TotalBeats(beatsPerMeasure) > posBeats {
			if i == 0 {
				return pts[len(pts)-1], pts[0]
			}
			return pts[i-1], pts[i]
		}
	}
	return pts[len(pts)-1], pts[0]
}

func interpolateAt(pts []BreakPoint, pos score.Cursor, beatsPerMeasure float64, region score.Region) (Value, bool) {
	if len(pts) == 0 {
		return Value{}, false
	}
	p0, p1 := surroundingPoints(pts, pos, beatsPerMeasure)
	if p0.ID == p1.ID {
		return p0.Value, true
	}
	if p0.Value.Kind == KindInt {
		return p0.Value, true
	}

	regionSize := region.SizeBeats(beatsPerMeasure)
	t0 := p0.Position.TotalBeats(beatsPerMeasure)
	t1 := p1.Position.TotalBeats(beatsPerMeasure)
	posBeats := pos.TotalBeats(beatsPerMeasure)

	span := t1 - t0
	if span <= 0 {
		span += regionSize
	}
	elapsed := posBeats - t0
	if elapsed < 0 {
		elapsed += regionSize
	}
	frac := 0.0
	if span > 0 {
		frac = elapsed / span
	}
	return lerpValue(p0.Value, p1.Value, frac), true
}

// emitInSegment emits one change per break point that falls within
// seg, per spec.md §4.7 step 2.
func emitInSegment(id ParamID, pts []BreakPoint, seg score.LoopSegment, beatsPerMeasure, bps float64, numFrames int) []AudioParameterChange {
	var out []AudioParameterChange
	segBeginBeats := seg.Span.Begin.TotalBeats(beatsPerMeasure)
	segSizeBeats := seg.Span.SizeBeats(beatsPerMeasure)
	segEndBeats := segBeginBeats + segSizeBeats

	for i, p := range pts {
		pb := p.Position.TotalBeats(beatsPerMeasure)
		if pb < segBeginBeats || pb >= segEndBeats {
			continue
		}
		frameOffsetBeats := seg.CumulativeOffset + (pb - segBeginBeats)
		frame := clampFrame(frameOffsetBeats, bps, numFrames)

		if p.Value.Kind == KindInt {
			out = append(out, AudioParameterChange{Param: id, Value: p.Value, AtFrame: frame, FrameDistance: 0})
			continue
		}

		next := pts[(i+1)%len(pts)]
		nb := next.Position.TotalBeats(beatsPerMeasure)
		span := nb - pb
		if span <= 0 {
			span += beatsPerMeasure // loop wrap within the set's own period granularity
		}
		framesToNext := int32(span / bps)
		if framesToNext < 0 {
			framesToNext = 0
		}
		out = append(out, AudioParameterChange{Param: id, Value: next.Value, AtFrame: frame, FrameDistance: framesToNext})
	}
	return out
}

func clampFrame(frameOffsetBeats, bps float64, numFrames int) int32 {
	if bps <= 0 || numFrames == 0 {
		return 0
	}
	frame := int32(frameOffsetBeats / bps)
	if frame < 0 {
		frame = 0
	}
	if frame > int32(numFrames-1) {
		frame = int32(numFrames - 1)
	}
	return frame
}
