package generators

import (
	"sync"

	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/score"
)

// QTNTrigger is one UI-pushed quantized-trigger request (spec.md
// §4.10).
type QTNTrigger struct {
	Note         miditypes.MIDINote
	Channel      uint8
	Quant        score.Division
	BeatDuration float64
}

type renderNoteState int

const (
	renderNoteEmpty renderNoteState = iota
	renderNotePending
	renderNoteOn
)

type renderNoteInfo struct {
	state   renderNoteState
	trigger QTNTrigger
	start   score.Cursor
}

// qtnSlotCapacity is the number of in-flight notes a slot tracks at
// once, per spec.md §4.10's RenderNoteInfo[2].
const qtnSlotCapacity = 2

type qtnSlot struct {
	queue       []QTNTrigger
	notes       [qtnSlotCapacity]renderNoteInfo
	latestEvent score.Cursor
}

// QTN schedules queued note triggers onto a quantized grid (spec.md
// §4.10). A pending note starts on the first grid line of its
// trigger's division strictly after the slot's most recent note-off
// (after the slot's zero cursor before any note has ended). Up to two
// notes are in flight per slot; notes that become pending in the same
// block start together on the same grid line, and a pending note whose
// grid line has already passed waits for the next note-off.
type QTN struct {
	mu              sync.Mutex
	beatsPerMeasure float64
	slots           map[uint32]*qtnSlot
}

// NewQTN creates a QTN scheduler.
func NewQTN(beatsPerMeasure float64) *QTN {
	return &QTN{beatsPerMeasure: beatsPerMeasure, slots: map[uint32]*qtnSlot{}}
}

func (q *QTN) slotFor(id uint32) *qtnSlot {
	s, ok := q.slots[id]
	if !ok {
		s = &qtnSlot{}
		q.slots[id] = s
	}
	return s
}

// Trigger enqueues a note for slot id; called from the UI thread.
func (q *QTN) Trigger(id uint32, t QTNTrigger) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.slotFor(id)
	s.queue = append(s.queue, t)
}

// ProcessBlock advances every in-flight note of slot id by one block.
func (q *QTN) ProcessBlock(id uint32, blockRegion score.Region, bps float64, numFrames int, stream *midistream.Stream, source miditypes.SourceID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.slotFor(id)

	for i := range s.notes {
		if s.notes[i].state == renderNoteEmpty && len(s.queue) > 0 {
			trig := s.queue[0]
			s.queue = s.queue[1:]
			s.notes[i] = renderNoteInfo{state: renderNotePending, trigger: trig}
		}
	}

	for i := range s.notes {
		info := &s.notes[i]
		switch info.state {
		case renderNotePending:
			loc := score.NextQuantum(s.latestEvent, info.trigger.Quant, q.beatsPerMeasure)
			if !blockRegion.Contains(loc, q.beatsPerMeasure) {
				continue
			}
			frame := frameFor(loc, blockRegion.Begin, q.beatsPerMeasure, bps, numFrames)
			push(stream, source, frame, miditypes.NoteOn(info.trigger.Channel, info.trigger.Note))
			info.start = loc
			info.state = renderNoteOn

		case renderNoteOn:
			end := score.WrappedAddBeats(info.start, info.trigger.BeatDuration, q.beatsPerMeasure)
			if !blockRegion.Contains(end, q.beatsPerMeasure) {
				continue
			}
			frame := frameFor(end, blockRegion.Begin, q.beatsPerMeasure, bps, numFrames)
			push(stream, source, frame, miditypes.NoteOff(info.trigger.Channel, info.trigger.Note.NoteNumber()))
			s.latestEvent = end
			*info = renderNoteInfo{}
		}
	}
}
