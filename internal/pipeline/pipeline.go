// Package pipeline chains the stages of one trigger: synthesize the
// syllable, shift it to the target note, resample to the device rate, and
// queue it for playback.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stratojets/notevox/internal/dsp/pitch"
	"github.com/stratojets/notevox/internal/dsp/resample"
)

// Speaker is the speech source, usually the synth adapter.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	TakeSamples() []float32
	NativeRate() int
}

// Sink receives device-rate mono samples, usually the audio relay.
type Sink interface {
	Append(block []float32)
}

// Result describes one completed trigger.
type Result struct {
	UtteranceID string
	Note        int
	Syllable    string
	TargetHz    float64
	Samples     int
	Duration    time.Duration
}

// Options wires the pipeline's collaborators and tuning.
type Options struct {
	Speaker      Speaker
	Shifter      pitch.Shifter
	Sink         Sink
	DeviceRate   int
	OctaveOffset int
	Logger       *slog.Logger

	// OnResult, when set, observes each successful trigger. Used for the
	// display and the event log. Must not block for long.
	OnResult func(Result)
}

// Pipeline is safe for concurrent triggers; utterances are serialized by
// the pipeline and each utterance lands in the sink as one contiguous block.
type Pipeline struct {
	opts   Options
	logger *slog.Logger
	tracer trace.Tracer

	// utterMu serializes the speak-take-shift-append sequence so one
	// trigger can never take another trigger's samples between its Speak
	// and TakeSamples.
	utterMu sync.Mutex

	mu           sync.Mutex
	shiftEnabled bool
	octaveOffset int
	lastErr      error

	utterances metric.Int64Counter
	samplesOut metric.Int64Counter
	failures   metric.Int64Counter
}

func New(opts Options) (*Pipeline, error) {
	if opts.Speaker == nil || opts.Sink == nil {
		return nil, fmt.Errorf("pipeline requires a speaker and a sink")
	}
	if opts.DeviceRate <= 0 {
		return nil, fmt.Errorf("device rate %d is invalid", opts.DeviceRate)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pipeline{
		opts:         opts,
		logger:       logger.With("component", "pipeline"),
		tracer:       otel.Tracer("github.com/stratojets/notevox/pipeline"),
		shiftEnabled: opts.Shifter != nil,
		octaveOffset: opts.OctaveOffset,
	}

	meter := otel.Meter("github.com/stratojets/notevox/pipeline")
	var err error
	if p.utterances, err = meter.Int64Counter("notevox.utterances",
		metric.WithDescription("Triggered utterances")); err != nil {
		return nil, err
	}
	if p.samplesOut, err = meter.Int64Counter("notevox.samples.queued",
		metric.WithDescription("Device-rate samples queued for playback")); err != nil {
		return nil, err
	}
	if p.failures, err = meter.Int64Counter("notevox.trigger.failures",
		metric.WithDescription("Triggers that produced no audio")); err != nil {
		return nil, err
	}
	return p, nil
}

// SetShiftEnabled toggles pitch shifting at runtime. Disabled triggers
// play the raw synthesized voice.
func (p *Pipeline) SetShiftEnabled(enabled bool) {
	p.mu.Lock()
	p.shiftEnabled = enabled
	p.mu.Unlock()
	p.logger.Info("pitch shift toggled", "enabled", enabled)
}

// ShiftEnabled reports the current toggle state.
func (p *Pipeline) ShiftEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shiftEnabled
}

// SetOctaveOffset moves all triggered notes by whole octaves, clamped to
// plus or minus three.
func (p *Pipeline) SetOctaveOffset(octaves int) {
	if octaves < -3 {
		octaves = -3
	}
	if octaves > 3 {
		octaves = 3
	}
	p.mu.Lock()
	p.octaveOffset = octaves
	p.mu.Unlock()
}

// OctaveOffset reports the current offset in octaves.
func (p *Pipeline) OctaveOffset() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.octaveOffset
}

// LastError reports the most recent trigger failure, if any.
func (p *Pipeline) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Trigger voices text at the given MIDI note. It blocks through synthesis
// and processing, returning once the utterance is queued on the sink. A
// failing trigger leaves the sink untouched and records the error.
func (p *Pipeline) Trigger(ctx context.Context, note int, text string) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.trigger",
		trace.WithAttributes(attribute.Int("note", note)))
	defer span.End()

	p.mu.Lock()
	shift := p.shiftEnabled
	offset := p.octaveOffset
	p.mu.Unlock()

	id := uuid.NewString()
	effectiveNote := note + 12*offset
	targetHz := pitch.HzFromNote(effectiveNote)

	p.utterMu.Lock()
	if err := p.opts.Speaker.Speak(ctx, text); err != nil {
		p.utterMu.Unlock()
		return p.fail(id, note, fmt.Errorf("synthesis failed: %w", err))
	}
	samples := p.opts.Speaker.TakeSamples()
	if len(samples) == 0 {
		p.utterMu.Unlock()
		return p.fail(id, note, fmt.Errorf("synthesis produced no samples for %q", text))
	}
	synthRate := p.opts.Speaker.NativeRate()
	if synthRate <= 0 {
		p.utterMu.Unlock()
		return p.fail(id, note, fmt.Errorf("speaker reports invalid rate %d", synthRate))
	}

	if shift && p.opts.Shifter != nil {
		samples = p.opts.Shifter.ShiftToFrequency(samples, targetHz)
	}
	samples = resample.Linear(samples, synthRate, p.opts.DeviceRate)
	p.opts.Sink.Append(samples)
	p.utterMu.Unlock()

	res := Result{
		UtteranceID: id,
		Note:        note,
		Syllable:    text,
		TargetHz:    targetHz,
		Samples:     len(samples),
		Duration:    time.Duration(float64(len(samples)) / float64(p.opts.DeviceRate) * float64(time.Second)),
	}

	p.utterances.Add(ctx, 1)
	p.samplesOut.Add(ctx, int64(len(samples)))
	p.logger.Info("utterance queued",
		"utterance_id", id,
		"note", note,
		"syllable", text,
		"target_hz", targetHz,
		"samples", len(samples),
		"duration_ms", res.Duration.Milliseconds())

	if p.opts.OnResult != nil {
		p.opts.OnResult(res)
	}
	return res, nil
}

func (p *Pipeline) fail(id string, note int, err error) (Result, error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	p.failures.Add(context.Background(), 1)
	p.logger.Error("trigger failed", "utterance_id", id, "note", note, "error", err)
	return Result{UtteranceID: id, Note: note}, err
}
