// Package timeline implements the per-track note-clip scheduler: loop
// partitioning, note start/stop bookkeeping, and pushing the result
// into a midistream.Stream (spec.md §4.9). Grounded on the original
// grove TimelineSystem.cpp; the loop-partitioning itself reuses
// internal/score.PartitionLoop rather than re-deriving interval math.
package timeline

import (
	"sync"

	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/noteclip"
	"github.com/outline-audio/scorecore/internal/noteindex"
	"github.com/outline-audio/scorecore/internal/score"
)

// TrackID identifies a note-clip track.
type TrackID uint32

const maxPartitionSegments = 8

type playingNote struct {
	Note    uint8
	ClipID  noteclip.ClipID
	End     score.Cursor
	FrameOn int32
}

// NoteClipTrack is the UI-defined configuration of one track (spec.md
// §3's "Timeline note-clip track").
type NoteClipTrack struct {
	Handle     TrackID
	Stream     midistream.StreamID
	Channel    uint8
	Clips      []noteclip.ClipID
	LoopRegion *score.Region
}

type trackState struct {
	track   NoteClipTrack
	playing []playingNote
}

// System owns every note-clip track and schedules them against the
// shared clip collection each block.
type System struct {
	mu     sync.Mutex
	clips  *noteclip.System
	tracks map[TrackID]*trackState
	nextID TrackID
}

// New creates a scheduler backed by the given clip system.
func New(clips *noteclip.System) *System {
	return &System{clips: clips, tracks: map[TrackID]*trackState{}}
}

// CreateTrack allocates a new note-clip track.
func (s *System) CreateTrack(stream midistream.StreamID, channel uint8, loopRegion *score.Region) TrackID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.tracks[id] = &trackState{track: NoteClipTrack{Handle: id, Stream: stream, Channel: channel, LoopRegion: loopRegion}}
	return id
}

// AddClip appends a clip to a track's ordered clip list.
func (s *System) AddClip(track TrackID, clip noteclip.ClipID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tracks[track]
	if !ok {
		return false
	}
	ts.track.Clips = append(ts.track.Clips, clip)
	return true
}

// LoopRegion returns track's configured loop region, if any. Used to
// wrap a played span (e.g. a triggered-notes recording) into the same
// representative period ProcessBlock schedules clip notes against
// (spec.md §4.9 "Recording").
func (s *System) LoopRegion(track TrackID) (score.Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tracks[track]
	if !ok || ts.track.LoopRegion == nil {
		return score.Region{}, false
	}
	return *ts.track.LoopRegion, true
}

// PlayingNotes returns a snapshot of the note numbers currently
// playing on a track, for diagnostics and scenario assertions.
func (s *System) PlayingNotes(track TrackID) []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.tracks[track]
	if !ok {
		return nil
	}
	out := make([]uint8, len(ts.playing))
	for i, p := range ts.playing {
		out[i] = p.Note
	}
	return out
}

// ProcessBlock runs one block of scheduling for track, pushing any
// resulting MIDI messages into stream (spec.md §4.9).
func (s *System) ProcessBlock(
	track TrackID,
	stream *midistream.Stream,
	blockRegion score.Region,
	beatsPerMeasure, bps float64,
	numFrames int,
	playing, justStopped bool,
) {
	s.mu.Lock()
	ts, ok := s.tracks[track]
	s.mu.Unlock()
	if !ok {
		return
	}

	if justStopped {
		var offs []miditypes.MIDIStreamMessage
		for _, p := range ts.playing {
			offs = append(offs, miditypes.MIDIStreamMessage{
				Frame:    0,
				SourceID: miditypes.SourceTimeline,
				Message:  miditypes.NoteOff(ts.track.Channel, p.Note),
			})
		}
		if len(offs) > 0 {
			stream.PushMessages(offs)
		}
		ts.playing = nil
		return
	}
	if !playing {
		return
	}

	loop := blockRegion
	if ts.track.LoopRegion != nil {
		loop = *ts.track.LoopRegion
	}

	var segments [maxPartitionSegments]score.LoopSegment
	n := score.PartitionLoop(blockRegion, loop, beatsPerMeasure, segments[:], maxPartitionSegments)

	var out []miditypes.MIDIStreamMessage

	stillPlaying := ts.playing[:0:0]
	for _, p := range ts.playing {
		stopped := false
		for i := 0; i < n; i++ {
			seg := segments[i]
			if !seg.Span.Contains(p.End, beatsPerMeasure) {
				continue
			}
			offsetBeats := seg.CumulativeOffset + score.SubCursor(p.End, seg.Span.Begin, beatsPerMeasure).TotalBeats(beatsPerMeasure)
			frame := clampFrame(offsetBeats, bps, numFrames)
			out = append(out, miditypes.MIDIStreamMessage{
				Frame:    frame,
				SourceID: miditypes.SourceTimeline,
				Message:  miditypes.NoteOff(ts.track.Channel, p.Note),
			})
			stopped = true
			break
		}
		if !stopped {
			stillPlaying = append(stillPlaying, p)
		}
	}

	for i := 0; i < n; i++ {
		seg := segments[i]
		for _, clipID := range ts.track.Clips {
			clip := findClip(s.clips, clipID)
			if clip == nil || !clip.Span.Intersects(seg.Span, beatsPerMeasure) {
				continue
			}
			var notes [16]noteindex.ClipNote
			count := s.clips.CollectNotesStartingInRegion(clip.Index, seg.Span, notes[:], len(notes))
			if count > len(notes) {
				count = len(notes)
			}
			for j := 0; j < count; j++ {
				note := notes[j]
				offsetBeats := seg.CumulativeOffset + score.SubCursor(note.Span.Begin, seg.Span.Begin, beatsPerMeasure).TotalBeats(beatsPerMeasure)
				frame := clampFrame(offsetBeats, bps, numFrames)

				// Stop §4.9: effective end = min(note_end, clip.end,
				// loop.end) — a loop-crossing note is truncated at the
				// loop boundary, not carried into the next pass. The
				// truncated cursor is then mapped into the loop's
				// representative period so later blocks' Contains
				// checks against loop-projected segments still find it
				// (a note truncated exactly to loop.end congruently
				// lands on loop.Begin, matching the first segment of
				// whichever block's real time first reaches the wrap).
				noteEnd := score.WrappedAddCursor(note.Span.Begin, note.Span.Size, beatsPerMeasure)
				truncatedEnd := noteEnd
				if clipEnd := clip.Span.End(beatsPerMeasure); clipEnd.Less(truncatedEnd) {
					truncatedEnd = clipEnd
				}
				if loopEnd := loop.End(beatsPerMeasure); loopEnd.Less(truncatedEnd) {
					truncatedEnd = loopEnd
				}
				effectiveEnd := loop.Loop(truncatedEnd, beatsPerMeasure)

				out = append(out, miditypes.MIDIStreamMessage{
					Frame:    frame,
					SourceID: miditypes.SourceTimeline,
					Message:  miditypes.NoteOn(ts.track.Channel, note.Note),
				})
				stillPlaying = append(stillPlaying, playingNote{
					Note:    note.Note.NoteNumber(),
					ClipID:  clipID,
					End:     effectiveEnd,
					FrameOn: frame,
				})
			}
		}
	}

	ts.playing = stillPlaying
	if len(out) > 0 {
		stream.PushMessages(out)
	}
}

func findClip(clips *noteclip.System, id noteclip.ClipID) *noteclip.NoteClip {
	for _, c := range clips.Clips() {
		if c.Handle == id {
			return c
		}
	}
	return nil
}

func clampFrame(offsetBeats, bps float64, numFrames int) int32 {
	if bps <= 0 || numFrames == 0 {
		return 0
	}
	frame := int32(offsetBeats / bps)
	if frame < 0 {
		frame = 0
	}
	if frame > int32(numFrames-1) {
		frame = int32(numFrames - 1)
	}
	return frame
}
