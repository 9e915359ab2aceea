package pitch

import "math"

// MiddleC is MIDI note 60, the reference for shift-ratio computation.
const (
	MiddleC       = 60
	MiddleCHz     = 261.63
	maxShiftSemis = 36
)

// HzFromNote converts a MIDI note number to a frequency in Hz
// (A4, note 69, is 440 Hz). The note is clamped to +-36 semitones
// around middle C to bound vocoder artifacts.
func HzFromNote(note int) float64 {
	if note < MiddleC-maxShiftSemis {
		note = MiddleC - maxShiftSemis
	}
	if note > MiddleC+maxShiftSemis {
		note = MiddleC + maxShiftSemis
	}
	return 440.0 * math.Pow(2.0, float64(note-69)/12.0)
}

// NoteFromHz is the inverse mapping, rounded to the nearest note.
// Non-positive frequencies map to 0.
func NoteFromHz(hz float64) int {
	if hz <= 0 {
		return 0
	}
	return int(math.Round(69.0 + 12.0*math.Log2(hz/440.0)))
}
