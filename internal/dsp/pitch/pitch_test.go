package pitch

import (
	"math"
	"testing"
)

func TestHzFromNote(t *testing.T) {
	if hz := HzFromNote(69); hz != 440.0 {
		t.Fatalf("A4 should be 440 Hz, got %v", hz)
	}
	if hz := HzFromNote(60); math.Abs(hz-261.63) > 0.01 {
		t.Fatalf("middle C should be ~261.63 Hz, got %v", hz)
	}
	// Notes outside +-36 semitones of middle C clamp to the window edge.
	if HzFromNote(0) != HzFromNote(24) {
		t.Fatal("expected low notes to clamp to note 24")
	}
	if HzFromNote(127) != HzFromNote(96) {
		t.Fatal("expected high notes to clamp to note 96")
	}
}

func TestNoteFromHz(t *testing.T) {
	if n := NoteFromHz(440.0); n != 69 {
		t.Fatalf("440 Hz should map to note 69, got %d", n)
	}
	if n := NoteFromHz(261.63); n != 60 {
		t.Fatalf("261.63 Hz should map to note 60, got %d", n)
	}
	if n := NoteFromHz(-5); n != 0 {
		t.Fatalf("non-positive frequency should map to 0, got %d", n)
	}
}

func voicedTone(n int, freq float64, rate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 0.5 * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func testOptions() Options {
	return Options{SampleRate: 22050}
}

func shifters(t *testing.T) map[string]Shifter {
	t.Helper()
	return map[string]Shifter{
		"vocoder":  NewVocoder(testOptions()),
		"resample": NewResampleShifter(testOptions()),
	}
}

func TestDurationInvariant(t *testing.T) {
	for name, s := range shifters(t) {
		t.Run(name, func(t *testing.T) {
			for _, n := range []int{2205, 6615, 11025} {
				input := voicedTone(n, 220, 22050)
				for _, ratio := range []float64{0.5, 0.75, 1.5, 2.0} {
					out := s.ShiftRatio(input, ratio)
					if len(out) != len(input) {
						t.Fatalf("ratio %v, n %d: output length %d != input length %d",
							ratio, n, len(out), len(input))
					}
					for i, v := range out {
						if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
							t.Fatalf("ratio %v: non-finite sample at %d", ratio, i)
						}
					}
				}
			}
		})
	}
}

func TestBypassInvariant(t *testing.T) {
	input := voicedTone(4410, 200, 22050)
	for name, s := range shifters(t) {
		t.Run(name, func(t *testing.T) {
			for _, ratio := range []float64{1.0, 1.0005, 0.9995, 0, -1.5} {
				out := s.ShiftRatio(input, ratio)
				if len(out) != len(input) {
					t.Fatalf("ratio %v: length changed", ratio)
				}
				for i := range input {
					if out[i] != input[i] {
						t.Fatalf("ratio %v: sample %d modified", ratio, i)
					}
				}
			}
		})
	}
}

func TestShiftToReferenceIsBypass(t *testing.T) {
	input := voicedTone(4410, 200, 22050)
	for name, s := range shifters(t) {
		t.Run(name, func(t *testing.T) {
			out := s.ShiftToFrequency(input, MiddleCHz)
			for i := range input {
				if out[i] != input[i] {
					t.Fatalf("sample %d modified by reference-frequency shift", i)
				}
			}
		})
	}
}

func TestDegenerateInputsPassThrough(t *testing.T) {
	v := NewVocoder(testOptions())

	if out := v.ShiftRatio(nil, 2.0); len(out) != 0 {
		t.Fatal("empty input should pass through")
	}

	single := []float32{0.25}
	if out := v.ShiftRatio(single, 2.0); len(out) != 1 || out[0] != 0.25 {
		t.Fatal("single-sample input should pass through")
	}

	// A block below the silence floor has no extractable pitch; the vocoder
	// must hand it back rather than synthesize garbage.
	quiet := make([]float32, 4410)
	for i := range quiet {
		quiet[i] = 5e-5 * float32(math.Sin(2*math.Pi*150*float64(i)/22050))
	}
	out := v.ShiftRatio(quiet, 2.0)
	for i := range quiet {
		if out[i] != quiet[i] {
			t.Fatalf("sub-silence input modified at %d", i)
		}
	}
}

func TestVocoderPreservesLevel(t *testing.T) {
	input := voicedTone(8820, 220, 22050)
	out := NewVocoder(testOptions()).ShiftRatio(input, 1.5)

	var inSum, outSum float64
	for i := range input {
		inSum += float64(input[i]) * float64(input[i])
		outSum += float64(out[i]) * float64(out[i])
	}
	inRMS := math.Sqrt(inSum / float64(len(input)))
	outRMS := math.Sqrt(outSum / float64(len(out)))
	if outRMS < inRMS*0.5 || outRMS > inRMS*1.5 {
		t.Fatalf("output level diverged: in %v, out %v", inRMS, outRMS)
	}
}

func TestResampleShifterReadsAtRatioSpeed(t *testing.T) {
	input := make([]float32, 8)
	for i := range input {
		input[i] = float32(i)
	}
	out := NewResampleShifter(testOptions()).ShiftRatio(input, 2.0)
	if len(out) != len(input) {
		t.Fatalf("length changed: %d", len(out))
	}
	// First half reads every second sample; the rest clamps to the boundary.
	for i := 0; i < 4; i++ {
		if out[i] != float32(2*i) {
			t.Fatalf("sample %d: got %v, want %v", i, out[i], float32(2*i))
		}
	}
	for i := 4; i < 8; i++ {
		if out[i] != 7 {
			t.Fatalf("sample %d: expected boundary clamp to 7, got %v", i, out[i])
		}
	}
}

func TestPassthroughStrategy(t *testing.T) {
	s := New("off", testOptions())
	input := []float32{0.1, 0.2}
	out := s.ShiftRatio(input, 3.0)
	if &out[0] != &input[0] {
		t.Fatal("passthrough should return the input block")
	}
}
