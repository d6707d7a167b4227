// Package renderer is the block orchestrator (spec.md §4.12): it owns
// the transport, every UI-facing subsystem's render-side entry point,
// the per-stream MIDI queues, the generators, and the DSP graph
// collaborator, and runs them in the fixed order spec.md §2 names once
// per audio-thread callback. Grounded on the original AudioRenderer.cpp
// for the two-ring-plus-staging-pair shape and the try-lock output
// path; vst3go has no single equivalent (it is driven directly by the
// VST3 host callback) so the per-block pipeline itself follows spec.md
// §2's numbered steps.
package renderer

import (
	"sync"

	"github.com/outline-audio/scorecore/internal/generators"
	"github.com/outline-audio/scorecore/internal/graph"
	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/noteclip"
	"github.com/outline-audio/scorecore/internal/noteindex"
	"github.com/outline-audio/scorecore/internal/paramsys"
	"github.com/outline-audio/scorecore/internal/rt"
	"github.com/outline-audio/scorecore/internal/score"
	"github.com/outline-audio/scorecore/internal/timeline"
	"github.com/outline-audio/scorecore/internal/transport"
)

// trackBinding ties one timeline track to the stream it writes into.
type trackBinding struct {
	track  timeline.TrackID
	stream midistream.StreamID
}

// qtnBinding ties one QTN slot to the stream it writes into.
type qtnBinding struct {
	slot   uint32
	stream midistream.StreamID
}

// ncsmBinding ties one NCSM voice to the stream it writes into.
type ncsmBinding struct {
	voice   uint32
	channel uint8
	stream  midistream.StreamID
}

// triggeredBinding ties one triggered-notes track to the stream it
// writes into.
type triggeredBinding struct {
	track  timeline.TrackID
	stream midistream.StreamID
}

// recordingTrigger is a UI-captured played note awaiting translation
// into whichever clip its track is currently recording into
// (spec.md §4.9 "Recording").
type recordingTrigger struct {
	track timeline.TrackID
	span  score.Region
	note  miditypes.MIDINote
}

// Renderer orchestrates one complete render pipeline.
type Renderer struct {
	mu sync.Mutex

	sampleRate      float64
	beatsPerMeasure float64
	blockSize       int

	Transport *transport.Transport
	Params    *paramsys.System
	Clips     *noteclip.System
	Timeline  *timeline.System
	Arp       *generators.Arpeggiator
	QTN       *generators.QTN
	NCSM      *generators.NCSM
	Triggered *generators.TriggeredNotes
	Graph     *graph.Graph

	streams       map[midistream.StreamID]*midistream.Stream
	tracks        []trackBinding
	qtnSlots      []qtnBinding
	ncsmVoices    []ncsmBinding
	triggerTracks []triggeredBinding
	arpStream     *midistream.StreamID
	recordClips   map[timeline.TrackID]noteclip.ClipID

	sampleRing *rt.Ring[float32]
	eventRing  *rt.Ring[miditypes.MIDIStreamMessage]

	stagingSamples []float32
	underflow      bool

	pendingTriggers []recordingTrigger
}

// New creates a renderer driving every subsystem at the given sample
// rate, time signature, and fixed block size.
func New(sampleRate, beatsPerMeasure float64, blockSize int) *Renderer {
	r := &Renderer{
		sampleRate:      sampleRate,
		beatsPerMeasure: beatsPerMeasure,
		Transport:       transport.New(beatsPerMeasure),
		Params:          paramsys.New(),
		Clips:           noteclip.New(beatsPerMeasure),
		QTN:             generators.NewQTN(beatsPerMeasure),
		streams:         map[midistream.StreamID]*midistream.Stream{},
		recordClips:     map[timeline.TrackID]noteclip.ClipID{},
	}
	r.Timeline = timeline.New(r.Clips)
	r.Arp = generators.New(beatsPerMeasure, 1)
	r.NCSM = generators.NewNCSM(r.Clips, beatsPerMeasure, 16)
	r.Triggered = generators.NewTriggeredNotes()
	r.Graph = graph.New(sampleRate)
	r.resizeStagingLocked(blockSize)
	return r
}

func (r *Renderer) resizeStagingLocked(blockSize int) {
	r.blockSize = blockSize
	r.sampleRing = rt.NewRing[float32](blockSize)
	r.eventRing = rt.NewRing[miditypes.MIDIStreamMessage](blockSize * 4)
	r.stagingSamples = make([]float32, blockSize)
}

// OnStreamInfoChanged resizes staging state under the same lock
// Output uses as a try-lock, so a concurrent driver callback observes
// either the old or the new configuration atomically, never a partial
// resize (spec.md §4.12).
func (r *Renderer) OnStreamInfoChanged(sampleRate float64, blockSize int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sampleRate = sampleRate
	r.Graph = graph.New(sampleRate)
	r.resizeStagingLocked(blockSize)
}

// Stream returns (creating if necessary) the stream for id.
func (r *Renderer) Stream(id midistream.StreamID) *midistream.Stream {
	s, ok := r.streams[id]
	if !ok {
		s = midistream.New(id, 8)
		r.streams[id] = s
	}
	return s
}

// BindTrack registers a timeline track to be processed each block,
// writing into the given stream.
func (r *Renderer) BindTrack(track timeline.TrackID, stream midistream.StreamID) {
	r.tracks = append(r.tracks, trackBinding{track: track, stream: stream})
	r.Stream(stream)
}

// BindQTNSlot registers a QTN slot to be processed each block.
func (r *Renderer) BindQTNSlot(slot uint32, stream midistream.StreamID) {
	r.qtnSlots = append(r.qtnSlots, qtnBinding{slot: slot, stream: stream})
	r.Stream(stream)
}

// BindNCSMVoice registers an NCSM voice to be processed each block.
func (r *Renderer) BindNCSMVoice(voice uint32, channel uint8, stream midistream.StreamID) {
	r.ncsmVoices = append(r.ncsmVoices, ncsmBinding{voice: voice, channel: channel, stream: stream})
	r.Stream(stream)
}

// BindTriggeredTrack registers a track for immediate UI-triggered
// note on/off (spec.md §2, §5); play-results feed the track's
// recording clip the same way CaptureRecordingTrigger does.
func (r *Renderer) BindTriggeredTrack(track timeline.TrackID, stream midistream.StreamID) {
	r.triggerTracks = append(r.triggerTracks, triggeredBinding{track: track, stream: stream})
	r.Stream(stream)
}

// BindArpeggiator directs the shared arpeggiator's output at stream.
func (r *Renderer) BindArpeggiator(stream midistream.StreamID) {
	id := stream
	r.arpStream = &id
	r.Stream(stream)
}

// SetRecordingClip marks track's currently recording clip; played
// notes captured via CaptureRecordingTrigger are translated into it.
func (r *Renderer) SetRecordingClip(track timeline.TrackID, clip noteclip.ClipID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recordClips[track] = clip
}

// StopRecording clears track's recording destination.
func (r *Renderer) StopRecording(track timeline.TrackID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recordClips, track)
}

// CaptureRecordingTrigger queues a played note for translation into
// track's recording clip, if any, at the given span, already wrapped
// through the loop region by the caller before this call (spec.md
// §4.9). A track with no recording clip set silently drops the note.
func (r *Renderer) CaptureRecordingTrigger(track timeline.TrackID, span score.Region, note miditypes.MIDINote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingTriggers = append(r.pendingTriggers, recordingTrigger{track: track, span: span, note: note})
}

// LastUnderflow reports whether the most recent Output call had to
// emit silence because a block had not finished rendering in time.
func (r *Renderer) LastUnderflow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.underflow
}

// Render runs one full block through the pipeline of spec.md §2 and
// pushes the result into the sample/event rings.
func (r *Renderer) Render() {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := r.Transport.BeginBlock(r.blockSize, r.sampleRate)
	r.Clips.AcceptLatest()

	bps := beatsPerSample(r.Transport.BPM(), r.sampleRate)
	blockRegion := score.Region{
		Begin: info.Cursor,
		Size:  score.FromTotalBeats(bps*float64(r.blockSize), r.beatsPerMeasure),
	}

	r.Params.RenderBlock(blockRegion, r.beatsPerMeasure, bps, r.blockSize, info.JustStopped)

	prevLens := make(map[midistream.StreamID]int, len(r.streams))
	for id, s := range r.streams {
		prevLens[id] = s.BeginBlock()
	}

	r.applyRecordingTriggers()

	for _, binding := range r.triggerTracks {
		results := r.Triggered.ProcessBlock(uint32(binding.track), blockRegion, r.beatsPerMeasure, r.Stream(binding.stream), miditypes.SourceTriggeredNotes)
		for _, pr := range results {
			clip, ok := r.recordClips[binding.track]
			if !ok {
				continue
			}
			span := pr.PlayedSpan
			if loop, ok := r.Timeline.LoopRegion(binding.track); ok {
				span.Begin = loop.Loop(span.Begin, r.beatsPerMeasure)
			}
			r.Clips.AddNote(clip, noteindex.ClipNote{Span: span, Note: pr.Note})
		}
	}

	for _, binding := range r.tracks {
		r.Timeline.ProcessBlock(binding.track, r.Stream(binding.stream), blockRegion, r.beatsPerMeasure, bps, r.blockSize, info.Playing, info.JustStopped)
	}
	for _, binding := range r.qtnSlots {
		r.QTN.ProcessBlock(binding.slot, blockRegion, bps, r.blockSize, r.Stream(binding.stream), miditypes.SourceQTN)
	}
	if r.arpStream != nil {
		r.Arp.ProcessBlock(blockRegion, bps, r.blockSize, r.Stream(*r.arpStream), miditypes.SourceArpeggiator)
	}
	for _, binding := range r.ncsmVoices {
		r.NCSM.ProcessBlock(binding.voice, binding.channel, r.Stream(binding.stream), blockRegion, bps, r.blockSize, info.Playing, info.JustStopped, info.JustPlayed)
	}

	for i := range r.stagingSamples {
		r.stagingSamples[i] = 0
	}
	for id, s := range r.streams {
		out := s.WriteBlock(prevLens[id])
		r.Graph.ApplyMessages(out)
		for _, m := range out {
			if !r.eventRing.Push(m) {
				break
			}
		}
	}
	r.Graph.Process(r.stagingSamples)

	for _, sample := range r.stagingSamples {
		r.sampleRing.Push(sample)
	}

	r.Transport.EndBlock(r.blockSize, r.sampleRate)
}

func (r *Renderer) applyRecordingTriggers() {
	if len(r.pendingTriggers) == 0 {
		return
	}
	for _, trig := range r.pendingTriggers {
		if clip, ok := r.recordClips[trig.track]; ok {
			r.Clips.AddNote(clip, noteindex.ClipNote{Span: trig.span, Note: trig.note})
		}
	}
	r.pendingTriggers = r.pendingTriggers[:0]
}

// Output drains up to frames of rendered audio into out, under a
// try-lock: if a concurrent stream-info change is in progress, it
// emits silence for the requested frames and reports an underflow
// rather than blocking the driver thread (spec.md §4.12).
func (r *Renderer) Output(out []float32, frames int) {
	if !r.mu.TryLock() {
		for i := 0; i < frames && i < len(out); i++ {
			out[i] = 0
		}
		r.underflow = true
		return
	}
	defer r.mu.Unlock()

	available := r.sampleRing.Len()
	n := frames
	if n > available {
		n = available
	}
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i++ {
		v, ok := r.sampleRing.Pop()
		if !ok {
			break
		}
		out[i] = v
	}
	for i := n; i < frames && i < len(out); i++ {
		out[i] = 0
	}
	r.underflow = n < frames
}

func beatsPerSample(bpm, sampleRate float64) float64 {
	return bpm / 60.0 / sampleRate
}
