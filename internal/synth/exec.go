package synth

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"
)

const defaultExecCommand = "espeak-ng --stdout"

// execEngine shells out to a command that writes a WAV stream to stdout.
// The utterance text is appended as the final argument. Voice parameters
// map to eSpeak-style flags so the default command works unchanged; custom
// commands simply ignore flags they do not understand.
type execEngine struct {
	mu   sync.Mutex
	base []string

	params     Params
	nativeRate int
}

func newExecEngine(command string) (*execEngine, error) {
	if command == "" {
		command = defaultExecCommand
	}
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parsing synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command is empty")
	}
	return &execEngine{base: args}, nil
}

func (e *execEngine) Init(requestedRate int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if requestedRate <= 0 {
		requestedRate = 22050
	}
	// The real rate comes from the first decoded WAV header; until then
	// report the requested one.
	if e.nativeRate == 0 {
		e.nativeRate = requestedRate
	}
	return e.nativeRate, nil
}

func (e *execEngine) Apply(p Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p.Voice != "" {
		e.params.Voice = p.Voice
	}
	if p.Rate != 0 {
		e.params.Rate = clampInt(p.Rate, 80, 450)
	}
	if p.Pitch != 0 {
		e.params.Pitch = clampInt(p.Pitch, 0, 99)
	}
	if p.Volume != 0 {
		e.params.Volume = clampInt(p.Volume, 0, 200)
	}
	return nil
}

func (e *execEngine) Speak(ctx context.Context, text string, emit func(samples []float32)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	args := append([]string{}, e.base[1:]...)
	if e.params.Voice != "" {
		args = append(args, "-v", e.params.Voice)
	}
	if e.params.Rate != 0 {
		args = append(args, "-s", strconv.Itoa(e.params.Rate))
	}
	if e.params.Pitch != 0 {
		args = append(args, "-p", strconv.Itoa(e.params.Pitch))
	}
	if e.params.Volume != 0 {
		args = append(args, "-a", strconv.Itoa(e.params.Volume))
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, e.base[0], args...)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("running %s: %w", e.base[0], err)
	}

	samples, rate, err := decodeWAV(out)
	if err != nil {
		return err
	}
	if rate > 0 {
		e.nativeRate = rate
	}
	if len(samples) > 0 {
		emit(samples)
	}
	return nil
}

// Rate reports the rate of the most recently decoded WAV header, or the
// configured rate before the first utterance.
func (e *execEngine) Rate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nativeRate
}

func (e *execEngine) Cancel() error { return nil }
func (e *execEngine) Close() error  { return nil }

func decodeWAV(data []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decoding wav output: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("wav output contains no samples")
	}
	return monoFloat(buf, int(dec.BitDepth)), buf.Format.SampleRate, nil
}

// monoFloat scales integer PCM to [-1, 1] and mixes all channels down to
// mono by averaging.
func monoFloat(buf *audio.IntBuffer, bitDepth int) []float32 {
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	if bitDepth < 2 || bitDepth > 32 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[f*channels+c]) / scale
		}
		samples[f] = sum / float32(channels)
	}
	return samples
}
