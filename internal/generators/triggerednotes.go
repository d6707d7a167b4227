package generators

import (
	"sync"

	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/score"
)

// PlayResult reports one triggered note's full lifetime once it turns
// off, for the recording path (spec.md §4.9 "Recording", §5).
type PlayResult struct {
	Track      uint32
	Note       miditypes.MIDINote
	PlayedSpan score.Region
}

type triggeredChangeType int

const (
	triggeredChangeOn triggeredChangeType = iota
	triggeredChangeOff
)

type triggeredChange struct {
	kind    triggeredChangeType
	note    miditypes.MIDINote
	channel uint8
}

type triggeredPlayingNote struct {
	note    miditypes.MIDINote
	channel uint8
	began   score.Cursor
}

type triggeredTimeout struct {
	note      miditypes.MIDINote
	remaining float64
}

type triggeredTrackState struct {
	pending  []triggeredChange
	playing  []triggeredPlayingNote
	timeouts []triggeredTimeout
}

// TriggeredNotes is the UI-triggered immediate note-on/note-off
// generator: notes start the instant the UI calls NoteOn and stop on
// NoteOff or, per spec.md §5's only cancellation mechanism, when an
// optional timeout reaches zero. Grounded on the original
// TriggeredNotes.cpp's pending-change-list/playing-notes-per-track
// shape, collapsed from its three-instance UI/handshake/render
// pipeline into a single mutex-guarded state per track, consistent
// with how this package's other generators handle UI→render handoff.
type TriggeredNotes struct {
	mu     sync.Mutex
	tracks map[uint32]*triggeredTrackState
}

// NewTriggeredNotes creates an empty triggered-notes generator.
func NewTriggeredNotes() *TriggeredNotes {
	return &TriggeredNotes{tracks: map[uint32]*triggeredTrackState{}}
}

func (t *TriggeredNotes) trackFor(track uint32) *triggeredTrackState {
	s, ok := t.tracks[track]
	if !ok {
		s = &triggeredTrackState{}
		t.tracks[track] = s
	}
	return s
}

func findPlaying(ts *triggeredTrackState, note miditypes.MIDINote) int {
	for i, p := range ts.playing {
		if p.note.NoteNumber() == note.NoteNumber() {
			return i
		}
	}
	return -1
}

// NoteOn starts note on track immediately. Reports false if the note
// is already playing or already pending a note-off this block.
func (t *TriggeredNotes) NoteOn(track uint32, note miditypes.MIDINote, channel uint8) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.noteOnLocked(track, note, channel)
}

// NoteOnTimeout starts note on track the same as NoteOn, additionally
// scheduling an automatic NoteOff after timeoutSeconds of UI-thread
// wall-clock time (spec.md §5).
func (t *TriggeredNotes) NoteOnTimeout(track uint32, note miditypes.MIDINote, channel uint8, timeoutSeconds float64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.noteOnLocked(track, note, channel) {
		return false
	}
	ts := t.trackFor(track)
	ts.timeouts = append(ts.timeouts, triggeredTimeout{note: note, remaining: timeoutSeconds})
	return true
}

func (t *TriggeredNotes) noteOnLocked(track uint32, note miditypes.MIDINote, channel uint8) bool {
	ts := t.trackFor(track)
	if findPlaying(ts, note) >= 0 {
		return false
	}
	for _, c := range ts.pending {
		if c.note.NoteNumber() == note.NoteNumber() {
			return false
		}
	}
	ts.pending = append(ts.pending, triggeredChange{kind: triggeredChangeOn, note: note, channel: channel})
	return true
}

// NoteOff stops note on track immediately.
func (t *TriggeredNotes) NoteOff(track uint32, note miditypes.MIDINote) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := t.trackFor(track)
	ts.pending = append(ts.pending, triggeredChange{kind: triggeredChangeOff, note: note})
	return true
}

// IsPlaying reports whether note is currently sounding on track, for
// UI-side dedupe and scenario assertions. A NoteOn or NoteOff not yet
// applied by ProcessBlock already counts.
func (t *TriggeredNotes) IsPlaying(track uint32, note miditypes.MIDINote) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := t.trackFor(track)
	playing := findPlaying(ts, note) >= 0
	for _, c := range ts.pending {
		if c.note.NoteNumber() == note.NoteNumber() {
			playing = c.kind == triggeredChangeOn
		}
	}
	return playing
}

// Tick decrements every track's in-flight timeouts by dt UI-thread
// seconds, issuing NoteOff for any that reach zero (spec.md §5:
// "Triggered notes may carry a timeout_seconds the UI decrements on
// each frame; at zero, note_off is issued. There is no other
// cancellation.").
func (t *TriggeredNotes) Tick(dt float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ts := range t.tracks {
		remaining := ts.timeouts[:0]
		for _, to := range ts.timeouts {
			to.remaining -= dt
			if to.remaining <= 0 {
				ts.pending = append(ts.pending, triggeredChange{kind: triggeredChangeOff, note: to.note})
				continue
			}
			remaining = append(remaining, to)
		}
		ts.timeouts = remaining
	}
}

// ProcessBlock applies track's pending on/off changes at frame 0 of
// this block (triggered notes are not quantized — they fire the
// instant the UI requests them) and returns a PlayResult for every
// note that turned off this block, for the recording path.
func (t *TriggeredNotes) ProcessBlock(track uint32, blockRegion score.Region, beatsPerMeasure float64, stream *midistream.Stream, source miditypes.SourceID) []PlayResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	ts := t.trackFor(track)
	if len(ts.pending) == 0 {
		return nil
	}

	var results []PlayResult
	for _, c := range ts.pending {
		switch c.kind {
		case triggeredChangeOn:
			if findPlaying(ts, c.note) >= 0 {
				continue
			}
			push(stream, source, 0, miditypes.NoteOn(c.channel, c.note))
			ts.playing = append(ts.playing, triggeredPlayingNote{note: c.note, channel: c.channel, began: blockRegion.Begin})

		case triggeredChangeOff:
			idx := findPlaying(ts, c.note)
			if idx < 0 {
				continue
			}
			p := ts.playing[idx]
			push(stream, source, 0, miditypes.NoteOff(p.channel, p.note.NoteNumber()))
			ts.playing = append(ts.playing[:idx], ts.playing[idx+1:]...)
			results = append(results, PlayResult{
				Track: track,
				Note:  p.note,
				PlayedSpan: score.Region{
					Begin: p.began,
					Size:  score.SubCursor(blockRegion.Begin, p.began, beatsPerMeasure),
				},
			})
		}
	}
	ts.pending = ts.pending[:0]
	return results
}
