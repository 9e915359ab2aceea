// Package resample converts mono PCM between fixed sample rates by linear
// interpolation. It changes neither pitch nor duration semantics.
package resample

import "math"

// Linear resamples block from fromRate to toRate. Equal rates or an empty
// input return the input slice unchanged. The output length is
// round(len(block) * toRate/fromRate); fractional source positions past the
// last sample clamp to it.
func Linear(block []float32, fromRate, toRate int) []float32 {
	if len(block) == 0 || fromRate == toRate || fromRate <= 0 || toRate <= 0 {
		return block
	}

	outLen := int(math.Round(float64(len(block)) * float64(toRate) / float64(fromRate)))
	if outLen <= 0 {
		return nil
	}

	out := make([]float32, outLen)
	step := float64(fromRate) / float64(toRate)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= len(block)-1 {
			out[i] = block[len(block)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = block[idx]*(1-frac) + block[idx+1]*frac
	}
	return out
}
