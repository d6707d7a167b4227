// Package transport implements the global score clock: play/stop
// commands applied one per block, the playing and pausing cursors,
// and the per-block table of quantized-event frame offsets that
// generators read to know when to fire (spec.md §4.6). It has no
// direct teacher analogue — vst3go is a single-callback VST3 plugin
// with no transport concept of its own — so this follows spec.md and
// the original grove `Transport.cpp`/`.hpp` for the exact state
// machine and scheduling-info math, simplified to use
// internal/score.NextQuantum directly rather than re-deriving
// quantum-crossing arithmetic by hand.
package transport

import (
	"math"
	"sync/atomic"

	"github.com/outline-audio/scorecore/internal/rt"
	"github.com/outline-audio/scorecore/internal/score"
)

func floatBits(v float64) uint64     { return math.Float64bits(v) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }

// Command is a UI-side transport control, applied at most one per
// block (spec.md §4.6).
type Command int

const (
	CommandNone Command = iota
	CommandPlay
	CommandStop
	CommandToggle
)

const defaultBPM = 120.0

// numDivisions matches the length of score.Division's enum.
const numDivisions = int(score.DivisionSixtyFourth) + 1

// BlockInfo is the snapshot a render block reads from the transport
// once at the start of processing (spec.md §4.6).
type BlockInfo struct {
	Cursor                     score.Cursor
	PausingCursor              score.Cursor
	Playing                    bool
	JustPlayed                 bool
	JustStopped                bool
	BlockSize                  score.Cursor
	QuantizedEventFrameOffsets [numDivisions]int32
}

// QuantizedEventFrame returns the frame within the block at which
// next_quantum(pausing_cursor, d) falls, or -1 if it lies outside the
// block.
func (b BlockInfo) QuantizedEventFrame(d score.Division) int32 {
	return b.QuantizedEventFrameOffsets[d]
}

// commandQueueCapacity is deliberately tiny: spec.md §4.6 calls this
// "a tiny ring", and only the most recent intent matters since at
// most one command is applied per block anyway.
const commandQueueCapacity = 4

// Transport is the global audio-thread score clock. Commands arrive
// from the UI thread via a bounded queue; BeginBlock/EndBlock are
// called once per render block from the audio thread only.
type Transport struct {
	beatsPerMeasure float64
	bpmBits         atomic.Uint64

	commands *rt.Ring[Command]

	cursor        score.Cursor
	pausingCursor score.Cursor
	playing       bool
	justPlayed    bool
	justStopped   bool
}

// New creates a transport at the given time signature (beats per
// measure) and default BPM.
func New(beatsPerMeasure float64) *Transport {
	t := &Transport{
		beatsPerMeasure: beatsPerMeasure,
		commands:        rt.NewRing[Command](commandQueueCapacity),
	}
	t.bpmBits.Store(floatBits(defaultBPM))
	return t
}

// SetBPM updates the tempo; safe to call from the UI thread at any
// time (spec.md §4.6: "BPM is an atomic double").
func (t *Transport) SetBPM(bpm float64) {
	if bpm <= 0 {
		return
	}
	t.bpmBits.Store(floatBits(bpm))
}

// BPM reads the current tempo; relaxed on the audio side per spec.
func (t *Transport) BPM() float64 {
	return floatFromBits(t.bpmBits.Load())
}

// Play enqueues a play command. Returns false if the command queue is
// full (back-pressure — the caller may retry).
func (t *Transport) Play() bool { return t.enqueue(CommandPlay) }

// Stop enqueues a stop command.
func (t *Transport) Stop() bool { return t.enqueue(CommandStop) }

// Toggle enqueues a play/stop toggle.
func (t *Transport) Toggle() bool { return t.enqueue(CommandToggle) }

func (t *Transport) enqueue(c Command) bool {
	return t.commands.Push(c)
}

// BeginBlock applies at most one pending command, resets cursors on
// just-played/just-stopped transitions, and computes the
// quantized-event frame table for this block (spec.md §4.6).
func (t *Transport) BeginBlock(numFrames int, sampleRate float64) BlockInfo {
	t.justPlayed = false
	t.justStopped = false

	if cmd, ok := t.commands.Pop(); ok {
		t.applyCommand(cmd)
	}

	if t.justStopped {
		t.cursor = score.Zero
	} else if t.justPlayed {
		t.cursor = score.Zero
		t.pausingCursor = score.Zero
	}

	bps := beatsPerSample(t.BPM(), sampleRate)
	blockSize := score.FromTotalBeats(bps*float64(numFrames), t.beatsPerMeasure)

	info := BlockInfo{
		Cursor:        t.cursor,
		PausingCursor: t.pausingCursor,
		Playing:       t.playing,
		JustPlayed:    t.justPlayed,
		JustStopped:   t.justStopped,
		BlockSize:     blockSize,
	}
	t.fillQuantizedOffsets(&info, numFrames, bps)
	return info
}

func (t *Transport) applyCommand(cmd Command) {
	switch cmd {
	case CommandPlay:
		if !t.playing {
			t.playing = true
			t.justPlayed = true
		}
	case CommandStop:
		if t.playing {
			t.playing = false
			t.justStopped = true
		}
	case CommandToggle:
		if t.playing {
			t.playing = false
			t.justStopped = true
		} else {
			t.playing = true
			t.justPlayed = true
		}
	}
}

// EndBlock advances the cursors by this block's size; call once per
// block after processing with the same numFrames/sampleRate passed to
// BeginBlock.
func (t *Transport) EndBlock(numFrames int, sampleRate float64) {
	bps := beatsPerSample(t.BPM(), sampleRate)
	incr := bps * float64(numFrames)
	if t.playing {
		t.cursor = score.WrappedAddBeats(t.cursor, incr, t.beatsPerMeasure)
	}
	t.pausingCursor = score.WrappedAddBeats(t.pausingCursor, incr, t.beatsPerMeasure)
}

func (t *Transport) fillQuantizedOffsets(info *BlockInfo, numFrames int, bps float64) {
	for i := range info.QuantizedEventFrameOffsets {
		info.QuantizedEventFrameOffsets[i] = -1
	}
	if numFrames == 0 || bps <= 0 {
		return
	}
	block := score.Region{
		Begin: t.pausingCursor,
		Size:  score.FromTotalBeats(bps*float64(numFrames), t.beatsPerMeasure),
	}
	for i := 0; i < numDivisions; i++ {
		d := score.Division(i)
		q := score.NextQuantum(t.pausingCursor, d, t.beatsPerMeasure)
		if !block.Contains(q, t.beatsPerMeasure) {
			continue
		}
		offsetBeats := score.SubCursor(q, t.pausingCursor, t.beatsPerMeasure).TotalBeats(t.beatsPerMeasure)
		frame := int(offsetBeats / bps)
		if frame < 0 {
			frame = 0
		}
		if frame > numFrames-1 {
			frame = numFrames - 1
		}
		info.QuantizedEventFrameOffsets[i] = int32(frame)
	}
}

func beatsPerSample(bpm, sampleRate float64) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return bpm / 60.0 / sampleRate
}
