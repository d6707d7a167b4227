// Package miditypes defines the MIDI-facing value types shared by the
// stream, transport, and generator packages: notes, wire messages, and
// stream messages (spec.md §3). Wire-level status/data bytes are
// produced with gitlab.com/gomidi/midi/v2 rather than hand-packed, the
// one concrete MIDI encoding library this retrieval pack's music tools
// consistently reach for.
package miditypes

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// PitchClass names one of the twelve semitones within an octave.
type PitchClass uint8

const (
	PitchC PitchClass = iota
	PitchCSharp
	PitchD
	PitchDSharp
	PitchE
	PitchF
	PitchFSharp
	PitchG
	PitchGSharp
	PitchA
	PitchASharp
	PitchB
)

var pitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

func (p PitchClass) String() string {
	if int(p) < len(pitchClassNames) {
		return pitchClassNames[p]
	}
	return "?"
}

// ReferenceOctaveOffset is added to Octave before multiplying by 12,
// so that pitch class C at Octave 4 produces MIDI note number 60
// (middle C), matching the A4=69 tuning convention named in spec.md
// §6.
const ReferenceOctaveOffset = 1

// MIDINote is a musical note expressed as pitch class + octave, plus
// the velocity it should sound at (spec.md §3).
type MIDINote struct {
	PitchClass PitchClass
	Octave     int8
	Velocity   uint8
}

// NoteNumber returns the 0-127 MIDI note number for this note,
// clamped into range.
func (n MIDINote) NoteNumber() uint8 {
	num := int(n.PitchClass) + 12*(int(n.Octave)+ReferenceOctaveOffset)
	if num < 0 {
		return 0
	}
	if num > 127 {
		return 127
	}
	return uint8(num)
}

// NoteFromNumber decomposes a MIDI note number back into pitch class
// and octave.
func NoteFromNumber(number uint8, velocity uint8) MIDINote {
	octave := int(number)/12 - ReferenceOctaveOffset
	pc := PitchClass(int(number) % 12)
	return MIDINote{PitchClass: pc, Octave: int8(octave), Velocity: velocity}
}

func (n MIDINote) String() string {
	return fmt.Sprintf("%s%d(vel=%d)", n.PitchClass, n.Octave, n.Velocity)
}

// NoteToFrequency converts a MIDI note number to Hz given a tuning
// reference for A4 (440Hz if tuningA4 is zero).
func NoteToFrequency(note uint8, tuningA4 float64) float64 {
	if tuningA4 == 0 {
		tuningA4 = 440.0
	}
	return tuningA4 * pow2((float64(note)-69.0)/12.0)
}

func pow2(x float64) float64 {
	whole := int(x)
	frac := x - float64(whole)
	if x < 0 && frac != 0 {
		whole--
		frac += 1
	}
	fracPow := 1.0 + frac*(0.693147+frac*(0.240227+frac*0.055504))
	if whole >= 0 {
		return float64(uint64(1)<<uint(whole)) * fracPow
	}
	return fracPow / float64(uint64(1)<<uint(-whole))
}

// MidiMsg wraps a raw MIDI wire message (status byte + up to two data
// bytes), produced via gomidi's encoders.
type MidiMsg struct {
	midi.Message
}

// NoteOn builds a note-on wire message.
func NoteOn(channel uint8, note MIDINote) MidiMsg {
	return MidiMsg{midi.NoteOn(channel, note.NoteNumber(), note.Velocity)}
}

// NoteOff builds a note-off wire message.
func NoteOff(channel uint8, noteNumber uint8) MidiMsg {
	return MidiMsg{midi.NoteOff(channel, noteNumber)}
}

// ControlChange builds a control-change wire message.
func ControlChange(channel, controller, value uint8) MidiMsg {
	return MidiMsg{midi.ControlChange(channel, controller, value)}
}

// IsNoteOn reports whether this message is a note-on with nonzero
// velocity (a note-on with velocity 0 is conventionally a note-off).
func (m MidiMsg) IsNoteOn() bool {
	if !m.Message.Is(midi.NoteOnMsg) {
		return false
	}
	var ch, note, vel uint8
	m.Message.GetNoteOn(&ch, &note, &vel)
	return vel > 0
}

// IsNoteOff reports whether this message is a note-off, including the
// note-on-with-zero-velocity convention.
func (m MidiMsg) IsNoteOff() bool {
	if m.Message.Is(midi.NoteOffMsg) {
		return true
	}
	if m.Message.Is(midi.NoteOnMsg) {
		var ch, note, vel uint8
		m.Message.GetNoteOn(&ch, &note, &vel)
		return vel == 0
	}
	return false
}

// NoteNumberAndChannel extracts the note number and channel from a
// note-on or note-off message. ok is false for any other message
// type.
func (m MidiMsg) NoteNumberAndChannel() (note uint8, channel uint8, ok bool) {
	var ch, n, vel uint8
	if m.Message.Is(midi.NoteOnMsg) {
		m.Message.GetNoteOn(&ch, &n, &vel)
		return n, ch, true
	}
	if m.Message.Is(midi.NoteOffMsg) {
		m.Message.GetNoteOff(&ch, &n, &vel)
		return n, ch, true
	}
	return 0, 0, false
}
