// Package noteclip is the UI-facing wrapper around the note-clip
// index: modifications apply immediately to the edit collection and
// EndUpdate publishes a clone of the whole collection through a
// handshake (no modification queue is kept or replayed), plus the
// chord-aware AddNote replacement rule (spec.md §4.8). Grounded on the original grove
// NoteClipSystem.cpp for the AddNote replacement semantics, and on
// vst3go's registry Add/Get (map + stable order) pattern for the
// UI-facing collection shape.
package noteclip

import (
	"sync"

	"github.com/outline-audio/scorecore/internal/noteindex"
	"github.com/outline-audio/scorecore/internal/rt"
	"github.com/outline-audio/scorecore/internal/score"
)

// ClipID identifies one note clip.
type ClipID uint64

// NoteClip is a UI-visible handle: a span plus a copy-on-write handle
// into the shared note index.
type NoteClip struct {
	Handle ClipID
	Index  noteindex.InstanceID
	Span   score.Region
}

// collection is one of the three (edit / in-flight / render)
// instances spec.md §4.8 names.
type collection struct {
	clips map[ClipID]*NoteClip
	order []ClipID
}

func newCollection() *collection {
	return &collection{clips: map[ClipID]*NoteClip{}}
}

func cloneCollection(c *collection) *collection {
	cp := newCollection()
	cp.order = append([]ClipID(nil), c.order...)
	for id, clip := range c.clips {
		cp.clips[id] = &NoteClip{Handle: clip.Handle, Index: clip.Index, Span: clip.Span}
	}
	return cp
}

// System owns the UI-editable clip collection, the shared note index,
// and the handshake publishing render-visible snapshots.
type System struct {
	mu sync.Mutex

	ix   *noteindex.Index
	edit *collection
	next ClipID

	dirty   bool
	publish *rt.Handshake[*collection]
	render  *collection
}

// New creates a clip system over a fresh note index at the given time
// signature.
func New(beatsPerMeasure float64) *System {
	return &System{
		ix:      noteindex.New(beatsPerMeasure),
		edit:    newCollection(),
		publish: rt.NewHandshake[*collection](),
	}
}

// Create allocates a new clip with its own note-index instance.
func (s *System) Create(span score.Region) ClipID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := s.next
	idx := s.ix.Create(span)
	s.edit.clips[id] = &NoteClip{Handle: id, Index: idx, Span: span}
	s.edit.order = append(s.edit.order, id)
	s.dirty = true
	return id
}

// Clone duplicates src's notes via copy-on-write sharing, returning
// the new clip's id.
func (s *System) Clone(src ClipID, span score.Region) (ClipID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	srcClip, ok := s.edit.clips[src]
	if !ok {
		return 0, false
	}
	clonedIdx, ok := s.ix.Clone(srcClip.Index)
	if !ok {
		return 0, false
	}
	s.next++
	id := s.next
	s.edit.clips[id] = &NoteClip{Handle: id, Index: clonedIdx, Span: span}
	s.edit.order = append(s.edit.order, id)
	s.dirty = true
	return id, true
}

// Destroy removes a clip and releases its index instance.
func (s *System) Destroy(id ClipID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip, ok := s.edit.clips[id]
	if !ok {
		return
	}
	s.ix.Destroy(clip.Index)
	delete(s.edit.clips, id)
	for i, existing := range s.edit.order {
		if existing == id {
			s.edit.order = append(s.edit.order[:i:i], s.edit.order[i+1:]...)
			break
		}
	}
	s.dirty = true
}

// ModifyClip changes a clip's span.
func (s *System) ModifyClip(id ClipID, span score.Region) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip, ok := s.edit.clips[id]
	if !ok {
		return false
	}
	clip.Span = span
	s.dirty = true
	return true
}

// beatsPerMeasure is fixed per-system; exposed for callers that build
// regions against this system's clips.
func (s *System) BeatsPerMeasure() float64 {
	return s.ix.BeatsPerMeasure()
}

// AddNote inserts note into clip id, first removing every existing
// note of the same pitch whose span intersects it (chord-aware
// replacement, spec.md §4.8).
func (s *System) AddNote(id ClipID, note noteindex.ClipNote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip, ok := s.edit.clips[id]
	if !ok {
		return false
	}
	samePitch := note.Note.NoteNumber()
	s.ix.Remove(clip.Index, func(existing noteindex.ClipNote) bool {
		return existing.Note.NoteNumber() == samePitch && existing.Span.Intersects(note.Span, s.ix.BeatsPerMeasure())
	})
	_, ok = s.ix.Insert(clip.Index, note)
	s.dirty = true
	return ok
}

// RemoveNote removes every note in clip id matching predicate.
func (s *System) RemoveNote(id ClipID, predicate func(noteindex.ClipNote) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip, ok := s.edit.clips[id]
	if !ok {
		return 0
	}
	n := s.ix.Remove(clip.Index, predicate)
	if n > 0 {
		s.dirty = true
	}
	return n
}

// ModifyNote removes the note matching fromPredicate and applies
// AddNote semantics for the replacement (spec.md §4.8: "ModifyNote
// removes the source note then applies AddNote semantics").
func (s *System) ModifyNote(id ClipID, fromPredicate func(noteindex.ClipNote) bool, to noteindex.ClipNote) bool {
	s.mu.Lock()
	clip, ok := s.edit.clips[id]
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.RemoveNote(id, fromPredicate)
	return s.AddNote(id, to)
}

// RemoveAllNotes clears every note from clip id.
func (s *System) RemoveAllNotes(id ClipID) {
	s.RemoveNote(id, func(noteindex.ClipNote) bool { return true })
}

// EndUpdate publishes the current edit collection if it changed and
// the previous snapshot has been acknowledged.
func (s *System) EndUpdate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return false
	}
	if !s.publish.Publish(cloneCollection(s.edit)) {
		return false
	}
	s.dirty = false
	return true
}

// AcceptLatest swaps in the most recently published collection, if
// any, returning whether a swap occurred. Called once per render
// block from the audio thread.
func (s *System) AcceptLatest() bool {
	snap, ok := s.publish.Read()
	if !ok {
		return false
	}
	s.render = snap
	s.publish.Acknowledged()
	return true
}

// Clips returns the render-visible collection's clips in stable
// order.
func (s *System) Clips() []*NoteClip {
	if s.render == nil {
		return nil
	}
	out := make([]*NoteClip, 0, len(s.render.order))
	for _, id := range s.render.order {
		if clip, ok := s.render.clips[id]; ok {
			out = append(out, clip)
		}
	}
	return out
}

// CollectNotesStartingInRegion and CollectNotesIntersectingRegion wrap
// the shared index's read methods under the system's own lock.
//
// Simplification note (recorded in DESIGN.md): the spec's note-query
// index is lock-free by construction — copy-on-write tree sharing
// lets a render-thread read proceed without blocking a concurrent UI
// write. This implementation instead guards the whole index with
// System's mutex, trading that lock-free guarantee for straightforward
// correctness: the shared slab/free-list arrays back every instance's
// tree, so a real concurrent mutate-while-read would race on them
// regardless of which instance each side holds.
func (s *System) CollectNotesStartingInRegion(idx noteindex.InstanceID, region score.Region, out []noteindex.ClipNote, cap int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.CollectNotesStartingInRegion(idx, region, out, cap)
}

func (s *System) CollectNotesIntersectingRegion(idx noteindex.InstanceID, region score.Region, out []noteindex.ClipNote, cap int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ix.CollectNotesIntersectingRegion(idx, region, out, cap)
}
