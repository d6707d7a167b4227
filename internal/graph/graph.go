// Package graph is the DSP collaborator that turns the note-on/off
// messages this core schedules into audible output: one sine voice
// per sounding note, summed and soft-clipped into the renderer's
// output buffer. Adapted from the teacher's pkg/dsp/oscillator.go
// (phase/phaseInc sine generator, trimmed to the single waveform this
// core needs — the generators here never request a saw, square, or
// BLIT voice) and pkg/dsp/gain.go (SoftClip, linear-to-dB) for the
// output stage.
package graph

import (
	"math"
	"sync"

	"github.com/outline-audio/scorecore/internal/miditypes"
)

// MaxVoices bounds how many notes this graph can sound at once; a
// note-on beyond capacity steals the oldest voice, mirroring the
// teacher voice allocator's StealOldest default.
const MaxVoices = 16

// minDB mirrors gain.MinDB: the floor below which linear amplitude is
// treated as silence.
const minDB = -200.0

func dbToLinear(db float64) float64 {
	if db <= minDB {
		return 0
	}
	return math.Pow(10.0, db/20.0)
}

// oscillator is a phase-accumulating sine generator (teacher's
// Oscillator, sine-only).
type oscillator struct {
	sampleRate float64
	phase      float64
	phaseInc   float64
}

func (o *oscillator) setFrequency(freq float64) {
	o.phaseInc = freq / o.sampleRate
}

func (o *oscillator) sine() float32 {
	sample := float32(math.Sin(2.0 * math.Pi * o.phase))
	o.phase += o.phaseInc
	if o.phase >= 1.0 {
		o.phase -= math.Floor(o.phase)
	}
	return sample
}

type voice struct {
	active    bool
	releasing bool
	note      uint8
	channel   uint8
	age       int64
	level     float32
	osc       oscillator
}

// Graph owns a fixed voice pool and renders the notes currently
// sounding across every stream this core drives.
type Graph struct {
	mu sync.Mutex

	sampleRate float64
	voices     [MaxVoices]voice
	noteToIdx  map[uint16]int // (channel<<8 | note) -> voice index
	nextAge    int64

	attackCoeff, releaseCoeff float32
	tuningA4                  float64
}

// New creates a render graph at the given sample rate, with a short
// fixed attack/release to avoid clicks on note boundaries.
func New(sampleRate float64) *Graph {
	const attackSeconds = 0.002
	const releaseSeconds = 0.02
	return &Graph{
		sampleRate:    sampleRate,
		noteToIdx:     map[uint16]int{},
		attackCoeff:   float32(1.0 / (attackSeconds * sampleRate)),
		releaseCoeff:  float32(math.Pow(0.001, 1.0/(releaseSeconds*sampleRate))),
		tuningA4:      440.0,
	}
}

func voiceKey(channel, note uint8) uint16 {
	return uint16(channel)<<8 | uint16(note)
}

// ApplyMessages applies a block's worth of note-on/off messages at
// the start of that block; a message's Frame offset is ignored, so
// envelopes are not timed within the block.
func (g *Graph) ApplyMessages(msgs []miditypes.MIDIStreamMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range msgs {
		note, channel, ok := m.Message.NoteNumberAndChannel()
		if !ok {
			continue
		}
		if m.Message.IsNoteOff() {
			g.noteOff(channel, note)
		} else if m.Message.IsNoteOn() {
			g.noteOn(channel, note)
		}
	}
}

func (g *Graph) noteOn(channel, note uint8) {
	key := voiceKey(channel, note)
	idx, exists := g.noteToIdx[key]
	if !exists {
		idx = g.allocateVoice()
	}
	g.nextAge++
	v := &g.voices[idx]
	v.active = true
	v.releasing = false
	v.note = note
	v.channel = channel
	v.age = g.nextAge
	v.level = 0
	v.osc.sampleRate = g.sampleRate
	v.osc.setFrequency(miditypes.NoteToFrequency(note, g.tuningA4))
	g.noteToIdx[key] = idx
}

func (g *Graph) noteOff(channel, note uint8) {
	key := voiceKey(channel, note)
	idx, ok := g.noteToIdx[key]
	if !ok {
		return
	}
	g.voices[idx].releasing = true
	delete(g.noteToIdx, key)
}

func (g *Graph) allocateVoice() int {
	for i := range g.voices {
		if !g.voices[i].active {
			return i
		}
	}
	oldest := 0
	for i := range g.voices {
		if g.voices[i].age < g.voices[oldest].age {
			oldest = i
		}
	}
	stolenKey := voiceKey(g.voices[oldest].channel, g.voices[oldest].note)
	delete(g.noteToIdx, stolenKey)
	return oldest
}

// Process sums every active voice into output, which must be
// zero-length-safe but is not itself cleared by this call — callers
// own buffer lifecycle (the renderer zeroes staging buffers between
// blocks per spec.md §4.12).
func (g *Graph) Process(output []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range g.voices {
		v := &g.voices[i]
		if !v.active {
			continue
		}
		for s := range output {
			sample := v.osc.sine()
			if v.releasing {
				v.level *= g.releaseCoeff
				if v.level < 0.0005 {
					v.active = false
					v.releasing = false
				}
			} else if v.level < 1.0 {
				v.level += g.attackCoeff * (1.0 - v.level)
				if v.level > 1.0 {
					v.level = 1.0
				}
			}
			output[s] += sample * v.level * float32(dbToLinear(-9.0))
		}
	}
	softClipBuffer(output, 0.95)
}

func softClipBuffer(buffer []float32, threshold float32) {
	for i, sample := range buffer {
		abs := sample
		if abs < 0 {
			abs = -abs
		}
		if abs <= threshold {
			continue
		}
		buffer[i] = threshold * fastTanh32(sample/threshold)
	}
}

func fastTanh32(x float32) float32 {
	if x < -3 {
		return -1
	}
	if x > 3 {
		return 1
	}
	x2 := x * x
	return x * (27 + x2) / (27 + 9*x2)
}

// ActiveVoiceCount reports how many voices are currently sounding, for
// diagnostics.
func (g *Graph) ActiveVoiceCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for i := range g.voices {
		if g.voices[i].active {
			n++
		}
	}
	return n
}
