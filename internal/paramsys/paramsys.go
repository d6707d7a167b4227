// Package paramsys implements the audio-parameter automation system:
// UI-owned break-point sets and value overrides, published to the
// render side by handshake, and the per-block computation of sorted
// AudioParameterChange lists (spec.md §3, §4.7). The UI-side value
// store is grounded on vst3go's pkg/framework/param (Parameter's
// atomic-bits value, Registry's id-keyed map); break-point sets and
// the render-side interpolation pass are new, grounded on spec.md
// §4.7 and the original grove AudioParameterSystem.cpp.
package paramsys

import (
	"sort"
	"sync"

	"github.com/outline-audio/scorecore/internal/rt"
	"github.com/outline-audio/scorecore/internal/score"
)

// ParamID identifies one audio parameter by its owning node and a
// per-node slot (spec.md §3's "audio parameter identity").
type ParamID struct {
	Parent uint64
	Self   uint32
}

// Kind distinguishes float (linearly interpolated) parameters from
// int (step-held) parameters.
type Kind int

const (
	KindFloat Kind = iota
	KindInt
)

// Value is a typed parameter value; only the field matching Kind is
// meaningful.
type Value struct {
	Kind  Kind
	Float float64
	Int   int64
}

func lerpValue(a, b Value, frac float64) Value {
	if a.Kind == KindInt {
		return a
	}
	return Value{Kind: KindFloat, Float: a.Float + (b.Float-a.Float)*frac}
}

// BreakPoint is one automation point within a break-point set.
type BreakPoint struct {
	ID       uint64
	Position score.Cursor
	Value    Value
}

// SetHandle addresses a break-point set.
type SetHandle uint64

// BreakPointSet is an ordered sequence of break points per parameter,
// over a shared loop region.
type BreakPointSet struct {
	Handle SetHandle
	Region score.Region
	Points map[ParamID][]BreakPoint
}

func cloneSet(s *BreakPointSet) *BreakPointSet {
	cp := &BreakPointSet{Handle: s.Handle, Region: s.Region, Points: make(map[ParamID][]BreakPoint, len(s.Points))}
	for id, pts := range s.Points {
		cp.Points[id] = append([]BreakPoint(nil), pts...)
	}
	return cp
}

// WriterID identifies a UI-side writer competing for exclusive
// control of a parameter (spec.md §4.7 "Writer access").
type WriterID uint32

// snapshot is the immutable, render-visible state published by the
// UI. The literal three-instance (edit/in-flight/render) replay
// protocol spec.md describes is collapsed here to a single
// handshake-published deep copy of the edit instance — the UI always
// publishes its full current state rather than replaying a queued
// modification list onto a held-back instance; observably equivalent
// since EndUpdate always eventually publishes the latest edit state
// once the previous snapshot is acknowledged.
type snapshot struct {
	uiValues       map[ParamID]Value
	controlledByUI map[ParamID]bool
	sets           map[SetHandle]*BreakPointSet
	activeSet      SetHandle
}

func newSnapshot() *snapshot {
	return &snapshot{
		uiValues:       map[ParamID]Value{},
		controlledByUI: map[ParamID]bool{},
		sets:           map[SetHandle]*BreakPointSet{},
	}
}

func cloneSnapshot(s *snapshot) *snapshot {
	cp := newSnapshot()
	cp.activeSet = s.activeSet
	for k, v := range s.uiValues {
		cp.uiValues[k] = v
	}
	for k, v := range s.controlledByUI {
		cp.controlledByUI[k] = v
	}
	for k, v := range s.sets {
		cp.sets[k] = cloneSet(v)
	}
	return cp
}

// AudioParameterChange is one scheduled value change emitted by a
// render block (spec.md §3's "Parameter change").
type AudioParameterChange struct {
	Param         ParamID
	Value         Value
	AtFrame       int32
	FrameDistance int32
}

// System owns the UI-editable parameter state and the render-side
// computation of each block's change list.
type System struct {
	mu            sync.Mutex
	edit          *snapshot
	writerOf      map[ParamID]WriterID
	nextSetHandle SetHandle
	dirty         bool

	publish *rt.Handshake[*snapshot]

	render        *snapshot
	prevActiveSet SetHandle

	cursorFeedback *rt.Ring[score.Cursor]
}

// New creates an empty parameter system.
func New() *System {
	return &System{
		edit:           newSnapshot(),
		writerOf:       map[ParamID]WriterID{},
		publish:        rt.NewHandshake[*snapshot](),
		cursorFeedback: rt.NewRing[score.Cursor](1),
	}
}

// SetValue unconditionally overrides a parameter's value from the UI,
// failing if another writer currently holds it.
func (s *System) SetValue(writer WriterID, id ParamID, v Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, held := s.writerOf[id]; held && owner != writer {
		return false
	}
	s.edit.uiValues[id] = v
	s.edit.controlledByUI[id] = true
	s.dirty = true
	return true
}

// SetValueIfNoOtherWriter requests, writes, and releases a parameter
// in one step (spec.md §4.7).
func (s *System) SetValueIfNoOtherWriter(writer WriterID, id ParamID, v Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, held := s.writerOf[id]; held && owner != writer {
		return false
	}
	s.edit.uiValues[id] = v
	s.edit.controlledByUI[id] = true
	s.dirty = true
	return true
}

// RevertToBreakPoints releases a parameter from UI control.
func (s *System) RevertToBreakPoints(id ParamID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edit.uiValues, id)
	delete(s.edit.controlledByUI, id)
	s.dirty = true
}

// RemoveParent drops every UI override belonging to parent (node
// destruction).
func (s *System) RemoveParent(parent uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.edit.uiValues {
		if id.Parent == parent {
			delete(s.edit.uiValues, id)
			delete(s.edit.controlledByUI, id)
		}
	}
	s.dirty = true
}

// CreateSet allocates a new empty break-point set over region.
func (s *System) CreateSet(region score.Region) SetHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSetHandle++
	h := s.nextSetHandle
	s.edit.sets[h] = &BreakPointSet{Handle: h, Region: region, Points: map[ParamID][]BreakPoint{}}
	s.dirty = true
	return h
}

// DestroySet removes a break-point set, clearing it as the active set
// if it was selected.
func (s *System) DestroySet(h SetHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edit.sets, h)
	if s.edit.activeSet == h {
		s.edit.activeSet = 0
	}
	s.dirty = true
}

// SetActiveSet selects which break-point set drives automation.
func (s *System) SetActiveSet(h SetHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edit.activeSet = h
	s.dirty = true
}

// AddPoint inserts bp into set h's point list for id, keeping it
// sorted by position.
func (s *System) AddPoint(h SetHandle, id ParamID, bp BreakPoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.edit.sets[h]
	if !ok {
		return false
	}
	pts := append(set.Points[id], bp)
	sort.Slice(pts, func(i, j int) bool { return pts[i].Position.Less(pts[j].Position) })
	set.Points[id] = pts
	s.dirty = true
	return true
}

// RemovePoint deletes the point with pointID from set h's list for id.
func (s *System) RemovePoint(h SetHandle, id ParamID, pointID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.edit.sets[h]
	if !ok {
		return false
	}
	pts := set.Points[id]
	for i, p := range pts {
		if p.ID == pointID {
			set.Points[id] = append(pts[:i:i], pts[i+1:]...)
			s.dirty = true
			return true
		}
	}
	return false
}

// ModifyPoint replaces the position and value of an existing point.
func (s *System) ModifyPoint(h SetHandle, id ParamID, pointID uint64, position score.Cursor, value Value) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.edit.sets[h]
	if !ok {
		return false
	}
	pts := set.Points[id]
	for i, p := range pts {
		if p.ID == pointID {
			pts[i] = BreakPoint{ID: pointID, Position: position, Value: value}
			sort.Slice(pts, func(a, b int) bool { return pts[a].Position.Less(pts[b].Position) })
			set.Points[id] = pts
			s.dirty = true
			return true
		}
	}
	return false
}

// RemoveParentFromSet drops every point belonging to parent from set
// h.
func (s *System) RemoveParentFromSet(h SetHandle, parent uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.edit.sets[h]
	if !ok {
		return
	}
	for id := range set.Points {
		if id.Parent == parent {
			delete(set.Points, id)
		}
	}
	s.dirty = true
}

// EndUpdate publishes the current edit state if it has changed since
// the last publish and the previous snapshot has been acknowledged.
// Returns false if nothing was published (either nothing changed, or
// the render side hasn't acknowledged the prior snapshot yet — the UI
// simply retries on its next update cycle).
func (s *System) EndUpdate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return false
	}
	if !s.publish.Publish(cloneSnapshot(s.edit)) {
		return false
	}
	s.dirty = false
	return true
}

// CursorFeedback returns the most recently published active-set
// cursor position, for an "approximate active-set cursor" UI display
// (spec.md §4.7).
func (s *System) CursorFeedback() (score.Cursor, bool) {
	return s.cursorFeedback.Pop()
}
