package generators

import (
	"sync"

	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/noteclip"
	"github.com/outline-audio/scorecore/internal/noteindex"
	"github.com/outline-audio/scorecore/internal/rt"
	"github.com/outline-audio/scorecore/internal/score"
)

const ncsmMaxPartitionSegments = 8

// NCSMSection is one entry in the loop-through-sections sequence a
// voice can occupy: the clip it plays and the span it loops within
// that clip's own note index (spec.md §4.10).
type NCSMSection struct {
	Clip noteclip.ClipID
	Span score.Region
}

type ncsmPlayingNote struct {
	Note uint8
	End  score.Cursor
}

type ncsmVoice struct {
	sectionIndex          int
	nextSectionIndex      int
	pendingSection        bool
	elapsed               float64
	numSectionRepetitions int
	playing               []ncsmPlayingNote
	channel               uint8
}

// VoiceSnapshot is the UI-facing feedback record published once per
// block per voice (spec.md §4.10).
type VoiceSnapshot struct {
	Voice                 uint32
	Section               int
	NextSection           int
	Elapsed               float64
	NumSectionRepetitions int
}

// NCSM is the note-clip state machine: a set of named sections, and a
// set of independent voices each looping through them.
type NCSM struct {
	mu              sync.Mutex
	clips           *noteclip.System
	beatsPerMeasure float64
	sections        []NCSMSection
	voices          map[uint32]*ncsmVoice
	feedback        *rt.Ring[VoiceSnapshot]
}

// NewNCSM creates a note-clip state machine over the given clip
// system and section list.
func NewNCSM(clips *noteclip.System, beatsPerMeasure float64, feedbackCapacity int) *NCSM {
	return &NCSM{
		clips:           clips,
		beatsPerMeasure: beatsPerMeasure,
		voices:          map[uint32]*ncsmVoice{},
		feedback:        rt.NewRing[VoiceSnapshot](feedbackCapacity),
	}
}

// SetSections replaces the section list.
func (n *NCSM) SetSections(sections []NCSMSection) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sections = sections
}

func (n *NCSM) voiceFor(id uint32, channel uint8) *ncsmVoice {
	v, ok := n.voices[id]
	if !ok {
		v = &ncsmVoice{channel: channel}
		n.voices[id] = v
	}
	return v
}

// RequestSectionChange schedules voice id to hand off to section at
// the next clip-loop boundary crossed during playback.
func (n *NCSM) RequestSectionChange(id uint32, channel uint8, section int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v := n.voiceFor(id, channel)
	v.nextSectionIndex = section
	v.pendingSection = true
}

// Snapshot drains the most recent feedback record for diagnostics.
func (n *NCSM) Snapshot() (VoiceSnapshot, bool) {
	msgs := n.feedback.DrainAll()
	if len(msgs) == 0 {
		return VoiceSnapshot{}, false
	}
	return msgs[len(msgs)-1], true
}

func (n *NCSM) findClip(id noteclip.ClipID) *noteclip.NoteClip {
	for _, c := range n.clips.Clips() {
		if c.Handle == id {
			return c
		}
	}
	return nil
}

// ProcessBlock advances voice id by one block (spec.md §4.10).
func (n *NCSM) ProcessBlock(
	id uint32, channel uint8,
	stream *midistream.Stream,
	blockRegion score.Region,
	bps float64, numFrames int,
	playing, justStopped, justPlayed bool,
) {
	n.mu.Lock()
	defer n.mu.Unlock()

	v := n.voiceFor(id, channel)

	if justPlayed && v.pendingSection {
		v.sectionIndex = v.nextSectionIndex
		v.pendingSection = false
		v.numSectionRepetitions = 0
	}

	if justStopped {
		var offs []miditypes.MIDIStreamMessage
		for _, p := range v.playing {
			offs = append(offs, miditypes.MIDIStreamMessage{
				Frame: 0, SourceID: miditypes.SourceNCSM,
				Message: miditypes.NoteOff(v.channel, p.Note),
			})
		}
		if len(offs) > 0 {
			stream.PushMessages(offs)
		}
		v.playing = nil
		n.publishSnapshot(id, v)
		return
	}
	if !playing {
		return
	}
	if v.sectionIndex < 0 || v.sectionIndex >= len(n.sections) {
		return
	}

	section := n.sections[v.sectionIndex]
	clip := n.findClip(section.Clip)
	if clip == nil {
		return
	}

	var segments [ncsmMaxPartitionSegments]score.LoopSegment
	nSeg := score.PartitionLoop(blockRegion, section.Span, n.beatsPerMeasure, segments[:], ncsmMaxPartitionSegments)

	var out []miditypes.MIDIStreamMessage

	stillPlaying := v.playing[:0:0]
	for _, p := range v.playing {
		stopped := false
		for i := 0; i < nSeg; i++ {
			seg := segments[i]
			if !seg.Span.Contains(p.End, n.beatsPerMeasure) {
				continue
			}
			offsetBeats := seg.CumulativeOffset + score.SubCursor(p.End, seg.Span.Begin, n.beatsPerMeasure).TotalBeats(n.beatsPerMeasure)
			frame := frameForOffset(offsetBeats, bps, numFrames)
			out = append(out, miditypes.MIDIStreamMessage{
				Frame: frame, SourceID: miditypes.SourceNCSM,
				Message: miditypes.NoteOff(v.channel, p.Note),
			})
			stopped = true
			break
		}
		if !stopped {
			stillPlaying = append(stillPlaying, p)
		}
	}

	for i := 0; i < nSeg; i++ {
		if i > 0 {
			v.numSectionRepetitions++
			v.elapsed = 0
			if v.pendingSection {
				v.sectionIndex = v.nextSectionIndex
				v.pendingSection = false
				v.numSectionRepetitions = 0
				section = n.sections[v.sectionIndex]
				newClip := n.findClip(section.Clip)
				if newClip == nil {
					break
				}
				clip = newClip
			}
		}

		seg := segments[i]
		var notes [16]noteindex.ClipNote
		count := n.clips.CollectNotesStartingInRegion(clip.Index, seg.Span, notes[:], len(notes))
		if count > len(notes) {
			count = len(notes)
		}
		for j := 0; j < count; j++ {
			note := notes[j]
			offsetBeats := seg.CumulativeOffset + score.SubCursor(note.Span.Begin, seg.Span.Begin, n.beatsPerMeasure).TotalBeats(n.beatsPerMeasure)
			frame := frameForOffset(offsetBeats, bps, numFrames)

			noteEnd := score.WrappedAddCursor(note.Span.Begin, note.Span.Size, n.beatsPerMeasure)
			effectiveEnd := section.Span.Loop(noteEnd, n.beatsPerMeasure)

			out = append(out, miditypes.MIDIStreamMessage{
				Frame: frame, SourceID: miditypes.SourceNCSM,
				Message: miditypes.NoteOn(v.channel, note.Note),
			})
			stillPlaying = append(stillPlaying, ncsmPlayingNote{Note: note.Note.NoteNumber(), End: effectiveEnd})
		}
		v.elapsed += seg.Span.SizeBeats(n.beatsPerMeasure)
	}

	v.playing = stillPlaying
	if len(out) > 0 {
		stream.PushMessages(out)
	}
	n.publishSnapshot(id, v)
}

func (n *NCSM) publishSnapshot(id uint32, v *ncsmVoice) {
	snap := VoiceSnapshot{
		Voice: id, Section: v.sectionIndex, NextSection: v.nextSectionIndex,
		Elapsed: v.elapsed, NumSectionRepetitions: v.numSectionRepetitions,
	}
	n.feedback.Push(snap)
}

func frameForOffset(offsetBeats, bps float64, numFrames int) int32 {
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
