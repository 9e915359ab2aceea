package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Adapter is the pipeline-facing speech source. It owns one Engine, clamps
// and stages voice parameters, serializes utterances, and accumulates the
// produced samples until a consumer takes them.
//
// Parameter setters may be called before Initialize; staged values are
// applied once the engine is up. Stop cancels an in-flight Speak from
// another goroutine.
type Adapter struct {
	// speakMu serializes utterances; mu guards everything else. Speak does
	// not hold mu while the engine runs, so Stop and the setters stay
	// callable during synthesis.
	speakMu sync.Mutex
	mu      sync.Mutex

	engine Engine
	logger *slog.Logger

	initialized bool
	nativeRate  int
	params      Params
	lastErr     error

	accumulated []float32
}

func NewAdapter(engine Engine, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		engine: engine,
		logger: logger.With("component", "synth"),
	}
}

// Initialize brings the engine up and applies any staged parameters.
// Calling it again is a no-op.
func (a *Adapter) Initialize(requestedRate int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	rate, err := a.engine.Init(requestedRate)
	if err != nil {
		a.lastErr = err
		return fmt.Errorf("initializing speech engine: %w", err)
	}
	a.nativeRate = rate
	a.initialized = true

	if err := a.engine.Apply(a.params); err != nil {
		a.lastErr = err
		a.logger.Warn("applying staged voice parameters failed", "error", err)
	}
	a.logger.Info("speech engine ready", "native_rate", rate)
	return nil
}

// Initialized reports whether the engine is up.
func (a *Adapter) Initialized() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialized
}

// NativeRate reports the engine's output sample rate. Valid after
// Initialize.
func (a *Adapter) NativeRate() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nativeRate
}

func (a *Adapter) SetVoice(voice string) error {
	return a.setParam(func(p *Params) { p.Voice = voice })
}

// SetRate sets speaking speed in words per minute, clamped to 80-450.
func (a *Adapter) SetRate(wpm int) error {
	return a.setParam(func(p *Params) { p.Rate = clampInt(wpm, 80, 450) })
}

// SetPitch sets the baseline voice pitch, clamped to 0-99.
func (a *Adapter) SetPitch(pitch int) error {
	return a.setParam(func(p *Params) { p.Pitch = clampInt(pitch, 0, 99) })
}

// SetVolume sets the synthesis amplitude, clamped to 0-200.
func (a *Adapter) SetVolume(volume int) error {
	return a.setParam(func(p *Params) { p.Volume = clampInt(volume, 0, 200) })
}

func (a *Adapter) setParam(mutate func(*Params)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	mutate(&a.params)
	if !a.initialized {
		return nil // staged, applied on Initialize
	}
	if err := a.engine.Apply(a.params); err != nil {
		a.lastErr = err
		return err
	}
	return nil
}

// Speak synthesizes text and appends the produced samples to the internal
// accumulator. It blocks until the utterance is complete or cancelled.
// Concurrent calls serialize; each call's samples land in the accumulator
// as one contiguous run.
func (a *Adapter) Speak(ctx context.Context, text string) error {
	a.speakMu.Lock()
	defer a.speakMu.Unlock()

	a.mu.Lock()
	if !a.initialized {
		err := errors.New("speak called before initialization")
		a.lastErr = err
		a.mu.Unlock()
		return err
	}
	a.mu.Unlock()
	if text == "" {
		return nil
	}

	err := a.engine.Speak(ctx, text, func(samples []float32) {
		a.mu.Lock()
		a.accumulated = append(a.accumulated, samples...)
		a.mu.Unlock()
	})
	if err != nil {
		a.mu.Lock()
		a.lastErr = err
		a.mu.Unlock()
		return fmt.Errorf("synthesizing %q: %w", text, err)
	}

	// Some backends only learn their true output rate from the utterance
	// itself, so pick up any correction before the samples are resampled.
	if rate := a.engine.Rate(); rate > 0 {
		a.mu.Lock()
		a.nativeRate = rate
		a.mu.Unlock()
	}
	return nil
}

// TakeSamples moves the accumulated samples out, leaving the accumulator
// empty. The returned slice is owned by the caller.
func (a *Adapter) TakeSamples() []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.accumulated
	a.accumulated = nil
	return out
}

// Stop aborts any in-flight synthesis and drops accumulated samples. It is
// callable while another goroutine is blocked in Speak.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	a.accumulated = nil
	initialized := a.initialized
	a.mu.Unlock()
	if !initialized {
		return nil
	}
	if err := a.engine.Cancel(); err != nil {
		a.mu.Lock()
		a.lastErr = err
		a.mu.Unlock()
		return err
	}
	return nil
}

// Shutdown stops synthesis and releases the engine.
func (a *Adapter) Shutdown() error {
	if err := a.Stop(); err != nil {
		return err
	}
	a.speakMu.Lock()
	defer a.speakMu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.initialized {
		return nil
	}
	a.initialized = false
	if err := a.engine.Close(); err != nil {
		a.lastErr = err
		return err
	}
	return nil
}

// LastError reports the most recent failure, if any.
func (a *Adapter) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}
