// Package midistream implements the per-track MIDI message stream:
// pending-message queue, source masking, note-onset tracking, and the
// sort+merge pass that turns a block's pushed messages into an
// ordered output array (spec.md §3, §4.5). It is grounded directly on
// the teacher's pkg/midi EventQueue — same mutex + "sorted" dirty-flag
// + sort.SliceStable shape — generalized from a sample-offset event
// model to the frame+source-id stream-message model this spec uses.
package midistream

import (
	"sort"
	"sync"

	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/rt"
)

// StreamID names one MIDI message stream (one per timeline track, in
// practice).
type StreamID uint32

// SourceMask is a bitmask of miditypes.SourceID values allowed to
// contribute note-ons to a stream. Note-offs for notes already owned
// by a source are always allowed through regardless of mask, so an
// owned note can always be released.
type SourceMask uint32

func (m SourceMask) allows(source miditypes.SourceID) bool {
	return m&(1<<uint(source)) != 0
}

// SetMasked returns a copy of m with source's bit set to allowed.
func (m SourceMask) SetMasked(source miditypes.SourceID, allowed bool) SourceMask {
	bit := SourceMask(1) << uint(source)
	if allowed {
		return m | bit
	}
	return m &^ bit
}

// Command is a UI-side mutation applied once per block via the
// stream's command ring (spec.md §3 item (c)/(e), §4.5 step 1).
type Command struct {
	SetSourceMask  bool
	SourceMask     SourceMask
	SetOnsetMask   bool
	OnsetMask      SourceMask
}

// OnsetBitset covers all 128 MIDI note numbers, bit N set meaning note
// N onset during the block that published it.
type OnsetBitset [2]uint64

func (b *OnsetBitset) set(note uint8) {
	b[note/64] |= 1 << uint(note%64)
}

// IsZero reports whether no bits are set.
func (b OnsetBitset) IsZero() bool {
	return b[0] == 0 && b[1] == 0
}

type noteOwner struct {
	owned   bool
	source  miditypes.SourceID
	channel uint8
}

// Stream is one render-side MIDI message stream.
type Stream struct {
	mu sync.Mutex

	id StreamID

	pending   []miditypes.MIDIStreamMessage
	sorted    bool
	carryover []miditypes.MIDIStreamMessage

	sourceMask SourceMask
	onsetMask  SourceMask

	owners [128]noteOwner

	commands *rt.Ring[Command]
	onsetOut *rt.Handshake[OnsetBitset]

	output []miditypes.MIDIStreamMessage

	stats rt.Stats
}

// New creates a stream with its command ring sized cmdRingCapacity.
func New(id StreamID, cmdRingCapacity int) *Stream {
	return &Stream{
		id:         id,
		sorted:     true,
		sourceMask: ^SourceMask(0),
		commands:   rt.NewRing[Command](cmdRingCapacity),
		onsetOut:   rt.NewHandshake[OnsetBitset](),
	}
}

// ID returns the stream's identity.
func (s *Stream) ID() StreamID { return s.id }

// PushCommand enqueues a UI-side mask update; called from the UI
// thread. Reports false if the ring is full (the ring's own Dropped
// counter records it; Stats does not) —
// per spec.md §4.5, command-ring-full is back-pressure: the caller
// should retry, not drop silently on the UI side.
func (s *Stream) PushCommand(cmd Command) bool {
	ok := s.commands.Push(cmd)
	return ok
}

// Stats returns a snapshot of this stream's error counters.
func (s *Stream) Stats() rt.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// BeginBlock drains pending command-ring updates and records the
// queue length before this block's pushes (spec.md §4.5 step 1).
// Returns the pre-push queue length, needed by WriteBlock to find the
// slice of messages appended this block.
func (s *Stream) BeginBlock() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cmd := range s.commands.DrainAll() {
		if cmd.SetSourceMask {
			s.sourceMask = cmd.SourceMask
		}
		if cmd.SetOnsetMask {
			s.onsetMask = cmd.OnsetMask
		}
	}
	return len(s.pending)
}

// PushMessages appends generator-produced messages for this block
// (spec.md §4.5 step 2). A message is kept iff its source is masked
// in, or it releases a note currently owned by the same source.
func (s *Stream) PushMessages(msgs []miditypes.MIDIStreamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range msgs {
		if !s.admits(m) {
			continue
		}
		s.pending = append(s.pending, m)
		s.sorted = false
	}
}

func (s *Stream) admits(m miditypes.MIDIStreamMessage) bool {
	if s.sourceMask.allows(m.SourceID) {
		return true
	}
	note, ok := m.NoteNumber()
	if !ok || !m.Message.IsNoteOff() {
		return false
	}
	owner := s.owners[note]
	return owner.owned && owner.source == m.SourceID
}

// WriteBlock runs the stable-sort + merge pass over messages appended
// since prevLen (spec.md §4.5 step 3), producing the ordered output
// array. Any messages that could not be emitted this block (the
// re-trigger case) are rebased to frame 0 and left pending for the
// next block's BeginBlock/WriteBlock cycle.
func (s *Stream) WriteBlock(prevLen int) []miditypes.MIDIStreamMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	newMsgs := s.pending[prevLen:]
	sort.SliceStable(newMsgs, func(i, j int) bool {
		a, b := newMsgs[i], newMsgs[j]
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		an, aok := a.NoteNumber()
		bn, bok := b.NoteNumber()
		if aok && bok && an != bn {
			return an < bn
		}
		// note-off before note-on at the same (frame, note_number).
		aOff, bOff := a.Message.IsNoteOff(), b.Message.IsNoteOff()
		if aOff != bOff {
			return aOff
		}
		return false
	})

	s.output = s.output[:0]
	var onsetBits OnsetBitset

	// Carryover from a prior block's re-trigger is kept in its own
	// buffer rather than folded into s.pending, so it always lands in
	// the range this call reprocesses regardless of where prevLen
	// falls this time around.
	process := newMsgs
	if len(s.carryover) > 0 {
		process = make([]miditypes.MIDIStreamMessage, 0, len(s.carryover)+len(newMsgs))
		process = append(process, s.carryover...)
		process = append(process, newMsgs...)
		s.carryover = s.carryover[:0]
	}

	for i := 0; i < len(process); i++ {
		m := process[i]
		note, isNote := m.NoteNumber()

		switch {
		case !isNote:
			s.output = append(s.output, m)

		case m.Message.IsNoteOff():
			owner := s.owners[note]
			if owner.owned {
				s.owners[note] = noteOwner{}
				s.output = append(s.output, m)
			}
			// Off for a note that isn't on anywhere: drop silently —
			// not an error condition named by spec.md §7.

		case m.Message.IsNoteOn():
			owner := s.owners[note]
			if owner.owned {
				// Re-trigger: emit a synthetic off from the owning
				// source/channel now, re-queue this on for next block
				// at frame 0 (Open Question resolved in SPEC_FULL.md §9).
				s.output = append(s.output, miditypes.MIDIStreamMessage{
					Frame:    m.Frame,
					SourceID: owner.source,
					Message:  miditypes.NoteOff(owner.channel, note),
				})
				s.owners[note] = noteOwner{}
				s.carryover = append(s.carryover, miditypes.MIDIStreamMessage{
					Frame:    0,
					SourceID: m.SourceID,
					Message:  m.Message,
				})
				continue
			}
			_, channel, _ := m.Message.NoteNumberAndChannel()
			s.owners[note] = noteOwner{owned: true, source: m.SourceID, channel: channel}
			if s.onsetMask.allows(m.SourceID) {
				onsetBits.set(note)
			}
			s.output = append(s.output, m)

		default:
			s.output = append(s.output, m)
		}
	}

	s.pending = s.pending[:prevLen:prevLen]
	s.sorted = true

	if !onsetBits.IsZero() {
		if !s.onsetOut.Publish(onsetBits) {
			s.stats.QueueFullDrops++
		}
	}

	return s.output
}

// TakeOnsetBits consumes the most recent onset bitset published by
// WriteBlock, if any (UI-thread call).
func (s *Stream) TakeOnsetBits() (OnsetBitset, bool) {
	return s.onsetOut.Read()
}

// PlayingNotes reports which of the 128 note numbers are currently
// held on by this stream, for diagnostics and scenario assertions.
func (s *Stream) PlayingNotes() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uint8
	for n, o := range s.owners {
		if o.owned {
			out = append(out, uint8(n))
		}
	}
	return out
}

// ForceOff synthesizes an immediate note-off for every note currently
// owned, at frame 0, clearing ownership, which removes the need for
// a separate all-notes-off message type. The messages are returned to
// the caller, not queued on the stream.
func (s *Stream) ForceOff() []miditypes.MIDIStreamMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var offs []miditypes.MIDIStreamMessage
	for note, o := range s.owners {
		if !o.owned {
			continue
		}
		offs = append(offs, miditypes.MIDIStreamMessage{
			Frame:    0,
			SourceID: o.source,
			Message:  miditypes.NoteOff(o.channel, uint8(note)),
		})
		s.owners[note] = noteOwner{}
	}
	return offs
}
