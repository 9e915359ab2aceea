package pitch

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/dsp/fourier"
)

// voicingThreshold is the minimum normalized autocorrelation peak for a
// frame to count as voiced.
const voicingThreshold = 0.30

// silenceFloor is the minimum frame RMS below which no pitch is extracted.
const silenceFloor = 1e-4

// Vocoder is the analysis-resynthesis strategy. Each block is decomposed on
// a fixed frame grid into an F0 contour, a smooth spectral envelope, and
// per-band aperiodicity; the voiced F0 contour is scaled by the shift ratio
// and a waveform of exactly the input's sample count is rebuilt from the
// modified parameters. Because only F0 changes and the frame timing is
// untouched, duration is preserved by construction.
type Vocoder struct {
	opts    Options
	rate    int
	fftSize int
	fft     *fourier.FFT
}

func NewVocoder(opts Options) *Vocoder {
	opts = opts.withDefaults()
	v := &Vocoder{opts: opts, rate: opts.SampleRate}
	if v.rate <= 0 {
		v.rate = 22050
	}
	v.fftSize = fftSizeFor(v.rate, opts.F0Floor)
	v.fft = fourier.NewFFT(v.fftSize)
	return v
}

// fftSizeFor mirrors the usual envelope-estimation sizing: the FFT must
// cover three periods of the lowest plausible pitch.
func fftSizeFor(rate int, f0Floor float64) int {
	need := int(3.0*float64(rate)/f0Floor) + 1
	size := 64
	for size < need {
		size <<= 1
	}
	return size
}

func (v *Vocoder) ShiftToFrequency(input []float32, targetHz float64) []float32 {
	return v.ShiftRatio(input, targetHz/v.opts.ReferenceHz)
}

func (v *Vocoder) ShiftRatio(input []float32, ratio float64) []float32 {
	if shouldBypass(input, ratio) {
		return input
	}

	framePeriod := v.opts.FramePeriodMS / 1000.0 * float64(v.rate) // samples
	if len(input) < int(2*framePeriod) || len(input) < 4 {
		return input
	}

	x := make([]float64, len(input))
	for i, s := range input {
		x[i] = float64(s)
	}

	frames := v.analyze(x, framePeriod)
	if frames.voicedCount == 0 {
		// Nothing periodic to shift; resynthesis would be pure noise.
		return input
	}

	for i := range frames.f0 {
		if frames.f0[i] > 0 {
			shifted := frames.f0[i] * ratio
			if shifted < v.opts.F0Floor {
				shifted = v.opts.F0Floor
			}
			if shifted > v.opts.F0Ceil {
				shifted = v.opts.F0Ceil
			}
			frames.f0[i] = shifted
		}
	}

	y := v.synthesize(frames, framePeriod, len(x))

	// Match the input's overall level and guard against numerical blowups.
	inRMS, outRMS := rms(x), rms(y)
	if outRMS < 1e-9 || math.IsNaN(outRMS) || math.IsInf(outRMS, 0) {
		return input
	}
	gain := inRMS / outRMS

	out := make([]float32, len(input))
	for i, s := range y {
		s *= gain
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return input
		}
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = float32(s)
	}
	return out
}

// analysis holds the per-frame decomposition. The envelope and aperiodicity
// grids are frame-major contiguous buffers sized frames x (fftSize/2 + 1).
type analysis struct {
	f0          []float64
	positions   []float64 // sample position of each frame center
	envelope    grid      // smoothed power spectrum
	aperiodic   grid      // noise-energy ratio per bin, in [0, 1]
	voicedCount int
}

type grid struct {
	cols int
	data []float64
}

func newGrid(rows, cols int) grid {
	return grid{cols: cols, data: make([]float64, rows*cols)}
}

func (g grid) row(i int) []float64 { return g.data[i*g.cols : (i+1)*g.cols] }

func (v *Vocoder) analyze(x []float64, framePeriod float64) analysis {
	numFrames := int(float64(len(x))/framePeriod) + 1
	bins := v.fftSize/2 + 1

	a := analysis{
		f0:        make([]float64, numFrames),
		positions: make([]float64, numFrames),
		envelope:  newGrid(numFrames, bins),
		aperiodic: newGrid(numFrames, bins),
	}

	minLag := int(float64(v.rate) / v.opts.F0Ceil)
	maxLag := int(float64(v.rate) / v.opts.F0Floor)
	if minLag < 2 {
		minLag = 2
	}

	spectrum := make([]complex128, bins)
	segment := make([]float64, v.fftSize)

	for i := 0; i < numFrames; i++ {
		center := float64(i) * framePeriod
		a.positions[i] = center

		f0, periodicity := v.estimateF0(x, int(center), minLag, maxLag)
		a.f0[i] = f0
		if f0 > 0 {
			a.voicedCount++
		}

		v.estimateEnvelope(x, int(center), f0, segment, spectrum, a.envelope.row(i))
		fillAperiodicity(a.aperiodic.row(i), f0, periodicity)
	}
	return a
}

// estimateF0 runs a normalized autocorrelation over a window of two lowest-
// pitch periods centered at pos. It returns 0 for unvoiced frames.
func (v *Vocoder) estimateF0(x []float64, pos, minLag, maxLag int) (f0, periodicity float64) {
	winLen := 2 * maxLag
	start := pos - winLen/2
	if start < 0 {
		start = 0
	}
	end := start + winLen
	if end > len(x) {
		end = len(x)
		start = end - winLen
		if start < 0 {
			start = 0
		}
	}
	w := x[start:end]
	if len(w) <= minLag+1 {
		return 0, 0
	}

	var energy float64
	for _, s := range w {
		energy += s * s
	}
	if math.Sqrt(energy/float64(len(w))) < silenceFloor {
		return 0, 0
	}

	bestLag, bestR := 0, 0.0
	limit := maxLag
	if limit > len(w)-1 {
		limit = len(w) - 1
	}
	for lag := minLag; lag <= limit; lag++ {
		var num, e0, e1 float64
		n := len(w) - lag
		for j := 0; j < n; j++ {
			num += w[j] * w[j+lag]
			e0 += w[j] * w[j]
			e1 += w[j+lag] * w[j+lag]
		}
		if e0 <= 0 || e1 <= 0 {
			continue
		}
		r := num / math.Sqrt(e0*e1)
		if r > bestR {
			bestR = r
			bestLag = lag
		}
	}
	if bestLag == 0 || bestR < voicingThreshold {
		return 0, bestR
	}

	f0 = float64(v.rate) / float64(bestLag)
	if f0 < v.opts.F0Floor || f0 > v.opts.F0Ceil {
		return 0, bestR
	}
	return f0, bestR
}

// estimateEnvelope computes a pitch-synchronous smoothed power spectrum for
// one frame into dst (length fftSize/2+1).
func (v *Vocoder) estimateEnvelope(x []float64, pos int, f0 float64, segment []float64, spectrum []complex128, dst []float64) {
	analysisF0 := f0
	if analysisF0 <= 0 {
		analysisF0 = v.opts.F0Floor * 2
	}

	// Window three periods of the frame's pitch, centered on the frame.
	winLen := int(3 * float64(v.rate) / analysisF0)
	if winLen > v.fftSize {
		winLen = v.fftSize
	}
	if winLen < 4 {
		winLen = 4
	}

	for i := range segment {
		segment[i] = 0
	}
	half := winLen / 2
	for j := 0; j < winLen; j++ {
		idx := pos - half + j
		if idx < 0 || idx >= len(x) {
			continue
		}
		// Hann window.
		w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(j)/float64(winLen-1))
		segment[j] = x[idx] * w
	}

	v.fft.Coefficients(spectrum, segment)
	for i, c := range spectrum {
		re, im := real(c), imag(c)
		dst[i] = re*re + im*im + 1e-12
	}

	// Smooth the log power spectrum over a 2/3-F0 band to strip harmonic
	// structure while keeping the formant shape.
	binWidth := float64(v.rate) / float64(v.fftSize)
	halfBand := int(analysisF0 * 2.0 / 3.0 / binWidth)
	if halfBand < 1 {
		halfBand = 1
	}
	smoothLogSpectrum(dst, halfBand)
}

// smoothLogSpectrum applies a moving average of +-halfBand bins in the log
// domain, in place.
func smoothLogSpectrum(power []float64, halfBand int) {
	logs := make([]float64, len(power))
	for i, p := range power {
		logs[i] = math.Log(p)
	}
	for i := range power {
		lo := i - halfBand
		if lo < 0 {
			lo = 0
		}
		hi := i + halfBand
		if hi > len(logs)-1 {
			hi = len(logs) - 1
		}
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += logs[j]
		}
		power[i] = math.Exp(sum / float64(hi-lo+1))
	}
}

// fillAperiodicity writes the per-bin noise ratio for one frame. Voiced
// frames start from the autocorrelation deficit and grow noisier toward the
// Nyquist band, which reconstructs breathiness; unvoiced frames are all
// noise.
func fillAperiodicity(dst []float64, f0, periodicity float64) {
	if f0 <= 0 {
		for i := range dst {
			dst[i] = 1.0
		}
		return
	}
	base := 1.0 - periodicity
	if base < 0.05 {
		base = 0.05
	}
	if base > 1.0 {
		base = 1.0
	}
	n := float64(len(dst) - 1)
	for i := range dst {
		tilt := float64(i) / n
		ap := base + (1.0-base)*tilt*tilt
		if ap > 1.0 {
			ap = 1.0
		}
		dst[i] = ap
	}
}

// synthesize rebuilds a waveform of exactly outLen samples from the
// (modified) parameters: a pulse train excites the periodic part of each
// frame's envelope, and windowed filtered noise reconstructs the aperiodic
// part, both overlap-added on the analysis frame grid.
func (v *Vocoder) synthesize(a analysis, framePeriod float64, outLen int) []float64 {
	out := make([]float64, outLen)
	bins := v.fftSize/2 + 1

	spectrum := make([]complex128, bins)
	response := make([]float64, v.fftSize)
	rng := rand.New(rand.NewSource(1))

	// Periodic part: walk a phase accumulator across the output, placing an
	// envelope-shaped impulse response at every phase wrap.
	phase := 1.0 // trigger a pulse at the first voiced sample
	for n := 0; n < outLen; n++ {
		f0 := a.frameF0At(float64(n), framePeriod)
		if f0 <= 0 {
			phase = 1.0
			continue
		}
		phase += f0 / float64(v.rate)
		if phase < 1.0 {
			continue
		}
		phase -= 1.0

		frame := int(float64(n)/framePeriod + 0.5)
		if frame >= len(a.f0) {
			frame = len(a.f0) - 1
		}
		env := a.envelope.row(frame)
		ap := a.aperiodic.row(frame)
		for i := 0; i < bins; i++ {
			amp := math.Sqrt(env[i] * (1.0 - ap[i]*ap[i]))
			spectrum[i] = complex(amp, 0)
		}
		v.fft.Sequence(response, spectrum)
		scale := math.Sqrt(float64(v.rate)/f0) / float64(v.fftSize)
		addCentered(out, response, n, scale)
	}

	// Aperiodic part: per-frame noise shaped by envelope * aperiodicity,
	// Hann-windowed over two frame periods and overlap-added.
	noiseLen := int(2 * framePeriod)
	if noiseLen < 4 {
		noiseLen = 4
	}
	noise := make([]float64, v.fftSize)
	for i := range a.f0 {
		env := a.envelope.row(i)
		ap := a.aperiodic.row(i)
		for b := 0; b < bins; b++ {
			amp := math.Sqrt(env[b]) * ap[b]
			theta := rng.Float64() * 2 * math.Pi
			spectrum[b] = complex(amp*math.Cos(theta), amp*math.Sin(theta))
		}
		spectrum[0] = complex(real(spectrum[0]), 0)
		spectrum[bins-1] = complex(real(spectrum[bins-1]), 0)
		v.fft.Sequence(noise, spectrum)

		center := int(a.positions[i])
		norm := 1.0 / float64(v.fftSize) * math.Sqrt(float64(noiseLen)/float64(v.fftSize))
		for j := 0; j < noiseLen; j++ {
			idx := center - noiseLen/2 + j
			if idx < 0 || idx >= outLen {
				continue
			}
			w := 0.5 - 0.5*math.Cos(2*math.Pi*float64(j)/float64(noiseLen-1))
			out[idx] += noise[j%len(noise)] * w * norm
		}
	}

	return out
}

// frameF0At linearly interpolates the F0 contour at an output sample
// position. A zero at either neighboring frame makes the region unvoiced.
func (a analysis) frameF0At(pos, framePeriod float64) float64 {
	fpos := pos / framePeriod
	i := int(fpos)
	if i >= len(a.f0)-1 {
		return a.f0[len(a.f0)-1]
	}
	lo, hi := a.f0[i], a.f0[i+1]
	if lo <= 0 || hi <= 0 {
		return 0
	}
	frac := fpos - float64(i)
	return lo*(1-frac) + hi*frac
}

// addCentered overlap-adds a zero-phase impulse response (whose center sits
// at index 0, wrapping at the FFT boundary) around output position pos.
func addCentered(out, response []float64, pos int, scale float64) {
	n := len(response)
	half := n / 2
	for j := -half; j < half; j++ {
		idx := pos + j
		if idx < 0 || idx >= len(out) {
			continue
		}
		out[idx] += response[(j+n)%n] * scale
	}
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var sum float64
	for _, s := range x {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(x)))
}
