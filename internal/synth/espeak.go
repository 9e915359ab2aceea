package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/ebitengine/purego"
)

// eSpeak NG C API constants.
const (
	audioOutputSynchronous = 0x02

	espeakRATE   = 1
	espeakVOLUME = 2
	espeakPITCH  = 3
	espeakRANGE  = 4

	espeakCharsAuto = 0
	espeakEndPause  = 0x1000
	posCharacter    = 1

	// Wider-than-default inflection range keeps shifted vowels lively.
	defaultPitchRange = 20
)

var defaultLibraryNames = []string{
	"libespeak-ng.so.1",
	"libespeak-ng.so",
	"libespeak-ng.dylib",
}

// espeakEngine binds the eSpeak NG shared library at runtime. The library
// is process-global and single-threaded, so one engine instance serializes
// all synthesis behind its mutex.
type espeakEngine struct {
	mu    sync.Mutex
	paths []string

	lib         uintptr
	initialized bool
	nativeRate  int

	// ready mirrors initialized but is readable without mu, so Cancel can
	// interrupt a Speak that is holding the lock mid-synthesis.
	ready atomic.Bool

	initialize  func(output int32, buflength int32, path *byte, options int32) int32
	setCallback func(cb uintptr)
	setParam    func(param int32, value int32, relative int32) int32
	setVoice    func(name *byte) int32
	synth       func(text unsafe.Pointer, size uint64, position uint32, positionType int32, endPosition uint32, flags uint32, uniqueID *uint32, userData unsafe.Pointer) int32
	synchronize func() int32
	cancel      func() int32
	terminate   func() int32

	// Synthesis callback state. Only one Speak runs at a time.
	pending []float32
}

func newESpeakEngine(paths []string) *espeakEngine {
	if len(paths) == 0 {
		paths = defaultLibraryNames
	}
	return &espeakEngine{paths: paths}
}

func (e *espeakEngine) Init(requestedRate int) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return e.nativeRate, nil
	}

	var lastErr error
	for _, path := range e.paths {
		lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		e.lib = lib
		break
	}
	if e.lib == 0 {
		if lastErr == nil {
			lastErr = errors.New("no library path configured")
		}
		return 0, fmt.Errorf("loading espeak-ng: %w", lastErr)
	}

	purego.RegisterLibFunc(&e.initialize, e.lib, "espeak_Initialize")
	purego.RegisterLibFunc(&e.setCallback, e.lib, "espeak_SetSynthCallback")
	purego.RegisterLibFunc(&e.setParam, e.lib, "espeak_SetParameter")
	purego.RegisterLibFunc(&e.setVoice, e.lib, "espeak_SetVoiceByName")
	purego.RegisterLibFunc(&e.synth, e.lib, "espeak_Synth")
	purego.RegisterLibFunc(&e.synchronize, e.lib, "espeak_Synchronize")
	purego.RegisterLibFunc(&e.cancel, e.lib, "espeak_Cancel")
	purego.RegisterLibFunc(&e.terminate, e.lib, "espeak_Terminate")

	// Ignore requestedRate here: eSpeak picks its own output rate and
	// reports it. Resampling to the device rate happens downstream.
	_ = requestedRate
	rate := e.initialize(audioOutputSynchronous, 0, nil, 0)
	if rate <= 0 {
		return 0, fmt.Errorf("espeak_Initialize failed with code %d", rate)
	}
	e.nativeRate = int(rate)

	e.setCallback(purego.NewCallback(func(wav unsafe.Pointer, numSamples int32, events unsafe.Pointer) int32 {
		if wav != nil && numSamples > 0 {
			raw := unsafe.Slice((*int16)(wav), int(numSamples))
			chunk := make([]float32, len(raw))
			for i, s := range raw {
				chunk[i] = float32(s) / 32768.0
			}
			e.pending = append(e.pending, chunk...)
		}
		return 0 // keep synthesizing
	}))

	e.setParam(espeakRANGE, defaultPitchRange, 0)
	e.initialized = true
	e.ready.Store(true)
	return e.nativeRate, nil
}

func (e *espeakEngine) Apply(p Params) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return errors.New("engine not initialized")
	}

	if p.Voice != "" {
		name := append([]byte(p.Voice), 0)
		if rc := e.setVoice(&name[0]); rc != 0 {
			return fmt.Errorf("setting voice %q failed with code %d", p.Voice, rc)
		}
	}
	if p.Rate != 0 {
		e.setParam(espeakRATE, int32(clampInt(p.Rate, 80, 450)), 0)
	}
	if p.Pitch != 0 {
		e.setParam(espeakPITCH, int32(clampInt(p.Pitch, 0, 99)), 0)
	}
	if p.Volume != 0 {
		e.setParam(espeakVOLUME, int32(clampInt(p.Volume, 0, 200)), 0)
	}
	return nil
}

func (e *espeakEngine) Speak(ctx context.Context, text string, emit func(samples []float32)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return errors.New("engine not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.pending = e.pending[:0]
	payload := append([]byte(text), 0)
	flags := uint32(espeakCharsAuto | espeakEndPause)
	rc := e.synth(unsafe.Pointer(&payload[0]), uint64(len(payload)), 0, posCharacter, 0, flags, nil, nil)
	if rc != 0 {
		return fmt.Errorf("espeak_Synth failed with code %d", rc)
	}
	// Synchronous output mode: the callback has fired for every chunk by
	// the time Synchronize returns.
	if rc := e.synchronize(); rc != 0 {
		return fmt.Errorf("espeak_Synchronize failed with code %d", rc)
	}
	if len(e.pending) > 0 {
		emit(e.pending)
		e.pending = nil
	}
	return nil
}

func (e *espeakEngine) Rate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nativeRate
}

// Cancel aborts synthesis. It deliberately skips mu: espeak_Cancel is the
// one call the library allows from another thread while espeak_Synth is
// blocked, and Speak holds the lock for the whole utterance.
func (e *espeakEngine) Cancel() error {
	if !e.ready.Load() {
		return nil
	}
	if rc := e.cancel(); rc != 0 {
		return fmt.Errorf("espeak_Cancel failed with code %d", rc)
	}
	return nil
}

func (e *espeakEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.initialized {
		return nil
	}
	e.ready.Store(false)
	e.terminate()
	e.initialized = false
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
