// Package synth turns text into mono PCM. The Adapter wraps a pluggable
// Engine with parameter clamping, lifecycle management, and a sample
// accumulator that downstream stages drain between utterances.
package synth

import "context"

// Params are the voice controls an engine accepts. Zero values mean
// "leave the engine default in place".
type Params struct {
	Voice      string
	Rate       int // words per minute
	Pitch      int // 0-99
	Volume     int // 0-200
	SampleRate int // requested synthesis rate in Hz
}

// Engine is one text-to-speech backend. Implementations synthesize a whole
// utterance per call and hand samples back through the emit callback, which
// may fire multiple times per utterance.
type Engine interface {
	// Init prepares the backend and returns the native synthesis rate,
	// which may differ from the requested one.
	Init(requestedRate int) (nativeRate int, err error)

	// Apply pushes voice parameters to the backend.
	Apply(p Params) error

	// Speak synthesizes text, invoking emit for each produced chunk of
	// mono float32 samples at the native rate. It blocks until the
	// utterance is complete or ctx is done.
	Speak(ctx context.Context, text string, emit func(samples []float32)) error

	// Rate reports the current native synthesis rate. Backends that only
	// learn their true rate while synthesizing report the updated value
	// here after Speak.
	Rate() int

	// Cancel aborts any in-flight synthesis.
	Cancel() error

	// Close releases backend resources.
	Close() error
}

// NewEngine selects a backend by mode: "espeak" loads the eSpeak NG shared
// library, "exec" shells out to a command producing WAV on stdout, and
// "none" synthesizes silence for environments without a speech stack.
func NewEngine(mode, command string, libraryPaths []string) (Engine, error) {
	switch mode {
	case "exec":
		return newExecEngine(command)
	case "none":
		return newNullEngine(), nil
	default:
		return newESpeakEngine(libraryPaths), nil
	}
}
