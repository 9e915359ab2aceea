// Package pitch reshapes the perceived fundamental frequency of short mono
// PCM blocks while preserving their duration. Two interchangeable strategies
// implement the same interface: a vocoder performing analysis-resynthesis
// (formant-preserving, expensive) and a naive resampling shifter (cheap,
// shifts formants along with the fundamental).
package pitch

import "math"

// bypassTolerance is the window around 1.0 inside which a shift is a no-op.
const bypassTolerance = 0.001

// Shifter produces a block with the same sample count as its input whose
// fundamental frequency is scaled by the requested ratio. A ratio <= 0 or
// within bypassTolerance of 1.0 returns the input unchanged, as does any
// input the strategy cannot analyze. Implementations are not safe for
// concurrent use on the same instance.
type Shifter interface {
	// ShiftRatio multiplies the voiced fundamental by ratio.
	ShiftRatio(input []float32, ratio float64) []float32
	// ShiftToFrequency targets an absolute frequency; the ratio is computed
	// against the configured reference pitch.
	ShiftToFrequency(input []float32, targetHz float64) []float32
}

// Options carries the analysis parameters shared by both strategies.
type Options struct {
	SampleRate    int
	FramePeriodMS float64
	F0Floor       float64
	F0Ceil        float64
	ReferenceHz   float64
}

func (o Options) withDefaults() Options {
	if o.FramePeriodMS <= 0 {
		o.FramePeriodMS = 5.0
	}
	if o.F0Floor <= 0 {
		o.F0Floor = 71.0
	}
	if o.F0Ceil <= o.F0Floor {
		o.F0Ceil = 800.0
	}
	if o.ReferenceHz <= 0 {
		o.ReferenceHz = MiddleCHz
	}
	return o
}

// New selects a strategy by mode name: "vocoder", "resample", or anything
// else for a passthrough shifter.
func New(mode string, opts Options) Shifter {
	switch mode {
	case "vocoder":
		return NewVocoder(opts)
	case "resample":
		return NewResampleShifter(opts)
	default:
		return passthrough{}
	}
}

type passthrough struct{}

func (passthrough) ShiftRatio(input []float32, _ float64) []float32       { return input }
func (passthrough) ShiftToFrequency(input []float32, _ float64) []float32 { return input }

func shouldBypass(input []float32, ratio float64) bool {
	return len(input) == 0 || ratio <= 0 || math.Abs(ratio-1) < bypassTolerance
}
