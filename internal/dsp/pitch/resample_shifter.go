package pitch

// ResampleShifter is the cheap fallback strategy: it reads the input at
// ratio speed with linear interpolation and clamps at the input boundary to
// fill the output to the input's length. Formants shift along with the
// fundamental, so voices sound sped-up or slowed-down rather than re-pitched.
type ResampleShifter struct {
	opts Options
}

func NewResampleShifter(opts Options) *ResampleShifter {
	return &ResampleShifter{opts: opts.withDefaults()}
}

func (s *ResampleShifter) ShiftRatio(input []float32, ratio float64) []float32 {
	if shouldBypass(input, ratio) {
		return input
	}

	out := make([]float32, len(input))
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(input)-1 {
			out[i] = input[len(input)-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = input[idx]*(1-frac) + input[idx+1]*frac
	}
	return out
}

func (s *ResampleShifter) ShiftToFrequency(input []float32, targetHz float64) []float32 {
	return s.ShiftRatio(input, targetHz/s.opts.ReferenceHz)
}
