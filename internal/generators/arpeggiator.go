package generators

import (
	"math/rand"
	"sync"

	"github.com/outline-audio/scorecore/internal/miditypes"
	"github.com/outline-audio/scorecore/internal/midistream"
	"github.com/outline-audio/scorecore/internal/score"
)

// SlotState is an arpeggiator slot's position in its Inactive →
// PendingActive → Active cycle (spec.md §4.10).
type SlotState int

const (
	SlotInactive SlotState = iota
	SlotPendingActive
	SlotActive
)

// PitchMode selects how a slot picks its next pitch.
type PitchMode int

const (
	PitchModeRandomFromSet PitchMode = iota
	PitchModeCycleUp
)

// DurationMode selects how a slot picks how long a note plays.
type DurationMode int

const (
	DurationModeFixed DurationMode = iota
	DurationModeRandom
)

// maxRandomFromSetAttempts bounds the retry loop that prefers a pitch
// not already sounding on another slot (spec.md §4.10).
const maxRandomFromSetAttempts = 4

// PitchSet is the cartesian product RandomFromSet samples from.
type PitchSet struct {
	PitchClasses []miditypes.PitchClass
	Octaves      []int8
}

func (p PitchSet) empty() bool {
	return len(p.PitchClasses) == 0 || len(p.Octaves) == 0
}

// ArpSlotConfig is the UI-configured behavior of one arpeggiator slot.
type ArpSlotConfig struct {
	PitchMode    PitchMode
	DurationMode DurationMode

	// Grid is both the triggering quantum and, for DurationModeFixed,
	// the note's sounding duration.
	Grid score.Division

	// RandomFromSet parameters.
	PitchSet PitchSet

	// CycleUp parameters.
	BaseNotes []uint8
	Step      int
	NumSteps  int

	Channel  uint8
	Velocity uint8
}

func (c ArpSlotConfig) canGenerate() bool {
	switch c.PitchMode {
	case PitchModeRandomFromSet:
		return !c.PitchSet.empty()
	case PitchModeCycleUp:
		return len(c.BaseNotes) > 0 && c.NumSteps > 0
	default:
		return false
	}
}

type arpSlot struct {
	cfg ArpSlotConfig

	state SlotState

	quant        score.Division
	playForBeats float64
	noteNumber   uint8
	isRest       bool

	start       score.Cursor
	latestEvent score.Cursor

	cycleK uint64
}

// Arpeggiator runs up to four independent slots, each stepping its own
// Inactive/PendingActive/Active state machine once per block
// (spec.md §4.10).
type Arpeggiator struct {
	mu sync.Mutex

	beatsPerMeasure float64
	slots           [4]*arpSlot
	numActive       int
	rng             *rand.Rand
}

// New creates an arpeggiator. seed makes RandomFromSet pitch selection
// reproducible for tests; production callers should seed from an
// entropy source.
func New(beatsPerMeasure float64, seed int64) *Arpeggiator {
	return &Arpeggiator{
		beatsPerMeasure: beatsPerMeasure,
		rng:             rand.New(rand.NewSource(seed)),
	}
}

// ConfigureSlot assigns slot i's configuration and resets it to
// Inactive.
func (a *Arpeggiator) ConfigureSlot(i int, cfg ArpSlotConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= len(a.slots) {
		return
	}
	a.slots[i] = &arpSlot{cfg: cfg}
}

// SetNumActiveSlots bounds how many of the four configured slots run
// each block.
func (a *Arpeggiator) SetNumActiveSlots(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n < 0 {
		n = 0
	}
	if n > len(a.slots) {
		n = len(a.slots)
	}
	a.numActive = n
}

// activeNoteLocked reports slot i's currently sounding note number, for
// diagnostics and the RandomFromSet collision check.
func (a *Arpeggiator) activeNoteLocked(i int) (uint8, bool) {
	s := a.slots[i]
	if s == nil || s.state != SlotActive || s.isRest {
		return 0, false
	}
	return s.noteNumber, true
}

// ProcessBlock steps every active slot once, pushing emitted messages
// into stream under the given source id.
func (a *Arpeggiator) ProcessBlock(blockRegion score.Region, bps float64, numFrames int, stream *midistream.Stream, source miditypes.SourceID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := 0; i < a.numActive; i++ {
		slot := a.slots[i]
		if slot == nil {
			continue
		}
		a.stepSlot(i, slot, blockRegion, bps, numFrames, stream, source)
	}
}

func (a *Arpeggiator) stepSlot(i int, slot *arpSlot, blockRegion score.Region, bps float64, numFrames int, stream *midistream.Stream, source miditypes.SourceID) {
	switch slot.state {
	case SlotInactive:
		if !slot.cfg.canGenerate() {
			return
		}
		a.choosePlaybackFor(i, slot)
		slot.state = SlotPendingActive

	case SlotPendingActive:
		loc := score.NextQuantum(slot.latestEvent, slot.quant, a.beatsPerMeasure)
		if !blockRegion.Contains(loc, a.beatsPerMeasure) {
			return
		}
		if !slot.isRest {
			frame := frameFor(loc, blockRegion.Begin, a.beatsPerMeasure, bps, numFrames)
			push(stream, source, frame, miditypes.NoteOn(slot.cfg.Channel, miditypes.NoteFromNumber(slot.noteNumber, 100)))
		}
		slot.start = loc
		slot.state = SlotActive

	case SlotActive:
		end := score.WrappedAddBeats(slot.start, slot.playForBeats, a.beatsPerMeasure)
		if !blockRegion.Contains(end, a.beatsPerMeasure) {
			return
		}
		if !slot.isRest {
			frame := frameFor(end, blockRegion.Begin, a.beatsPerMeasure, bps, numFrames)
			push(stream, source, frame, miditypes.NoteOff(slot.cfg.Channel, slot.noteNumber))
		}
		slot.latestEvent = end
		slot.state = SlotInactive
	}
}

// choosePlaybackFor fills in slot's (quant, playForBeats, noteNumber,
// isRest) for its next PendingActive → Active cycle.
func (a *Arpeggiator) choosePlaybackFor(i int, slot *arpSlot) {
	slot.quant = slot.cfg.Grid
	slot.playForBeats = score.BeatsPerQuantum(slot.cfg.Grid, a.beatsPerMeasure)
	slot.isRest = false

	if slot.cfg.DurationMode == DurationModeRandom {
		switch roll := a.rng.Float64(); {
		case roll < 0.4:
			slot.playForBeats = score.BeatsPerQuantum(score.DivisionEighth, a.beatsPerMeasure)
		case roll < 0.8:
			slot.playForBeats = score.BeatsPerQuantum(score.DivisionSixteenth, a.beatsPerMeasure)
		default:
			slot.isRest = true
		}
	}

	switch slot.cfg.PitchMode {
	case PitchModeCycleUp:
		base := slot.cfg.BaseNotes[i%len(slot.cfg.BaseNotes)]
		phase := int(slot.cycleK % uint64(slot.cfg.NumSteps))
		note := int(base) + phase*slot.cfg.Step
		slot.cycleK++
		if note < 0 {
			note = 0
		}
		if note > 127 {
			note = 127
		}
		slot.noteNumber = uint8(note)

	case PitchModeRandomFromSet:
		slot.noteNumber = a.pickRandomFromSet(i, slot.cfg.PitchSet)
	}
}

func (a *Arpeggiator) pickRandomFromSet(slotIdx int, set PitchSet) uint8 {
	candidate := func() uint8 {
		pc := set.PitchClasses[a.rng.Intn(len(set.PitchClasses))]
		oct := set.Octaves[a.rng.Intn(len(set.Octaves))]
		return miditypes.MIDINote{PitchClass: pc, Octave: oct, Velocity: 100}.NoteNumber()
	}

	note := candidate()
	for attempt := 0; attempt < maxRandomFromSetAttempts; attempt++ {
		collides := false
		for j := range a.slots {
			if j == slotIdx {
				continue
			}
			if active, ok := a.activeNoteLocked(j); ok && active == note {
				collides = true
				break
			}
		}
		if !collides {
			break
		}
		note = candidate()
	}
	return note
}
