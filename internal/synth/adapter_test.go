package synth

import (
	"context"
	"errors"
	"testing"
)

type fakeEngine struct {
	rate     int
	trueRate int // discovered while speaking, like a WAV header rate
	applied  []Params
	spoken   []string
	initErr  error
	speakErr error
	emit     [][]float32
	canceled bool
	closed   bool
}

func (f *fakeEngine) Init(requestedRate int) (int, error) {
	if f.initErr != nil {
		return 0, f.initErr
	}
	if f.rate == 0 {
		f.rate = 22050
	}
	return f.rate, nil
}

func (f *fakeEngine) Apply(p Params) error {
	f.applied = append(f.applied, p)
	return nil
}

func (f *fakeEngine) Speak(ctx context.Context, text string, emit func([]float32)) error {
	if f.speakErr != nil {
		return f.speakErr
	}
	f.spoken = append(f.spoken, text)
	if f.trueRate != 0 {
		f.rate = f.trueRate
	}
	for _, chunk := range f.emit {
		emit(chunk)
	}
	return nil
}

func (f *fakeEngine) Rate() int     { return f.rate }
func (f *fakeEngine) Cancel() error { f.canceled = true; return nil }
func (f *fakeEngine) Close() error  { f.closed = true; return nil }

func TestInitializeIsIdempotent(t *testing.T) {
	engine := &fakeEngine{rate: 16000}
	a := NewAdapter(engine, nil)

	if err := a.Initialize(22050); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Initialize(22050); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if got := a.NativeRate(); got != 16000 {
		t.Fatalf("native rate: got %d, want 16000", got)
	}
	if len(engine.applied) != 1 {
		t.Fatalf("expected exactly one staged-parameter apply, got %d", len(engine.applied))
	}
}

func TestParametersStagedBeforeInitialize(t *testing.T) {
	engine := &fakeEngine{}
	a := NewAdapter(engine, nil)

	if err := a.SetRate(1000); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if err := a.SetPitch(-5); err != nil {
		t.Fatalf("set pitch: %v", err)
	}
	if err := a.SetVolume(999); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	if err := a.SetVoice("en-us"); err != nil {
		t.Fatalf("set voice: %v", err)
	}
	if len(engine.applied) != 0 {
		t.Fatal("parameters must not reach the engine before initialization")
	}

	if err := a.Initialize(22050); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	p := engine.applied[0]
	if p.Rate != 450 || p.Pitch != 0 || p.Volume != 200 || p.Voice != "en-us" {
		t.Fatalf("staged parameters not clamped and applied: %+v", p)
	}
}

func TestSpeakAccumulatesAndTakeDrains(t *testing.T) {
	engine := &fakeEngine{emit: [][]float32{{0.1, 0.2}, {0.3}}}
	a := NewAdapter(engine, nil)
	if err := a.Initialize(22050); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := a.Speak(context.Background(), "hello"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	got := a.TakeSamples()
	want := []float32{0.1, 0.2, 0.3}
	if len(got) != len(want) {
		t.Fatalf("sample count: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %v, want %v", i, got[i], want[i])
		}
	}
	if len(a.TakeSamples()) != 0 {
		t.Fatal("second take must return nothing")
	}
}

func TestSpeakPicksUpCorrectedEngineRate(t *testing.T) {
	engine := &fakeEngine{rate: 22050, trueRate: 8000, emit: [][]float32{{0.1}}}
	a := NewAdapter(engine, nil)
	if err := a.Initialize(22050); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if got := a.NativeRate(); got != 22050 {
		t.Fatalf("rate before first utterance: got %d, want 22050", got)
	}

	if err := a.Speak(context.Background(), "hi"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if got := a.NativeRate(); got != 8000 {
		t.Fatalf("rate after utterance: got %d, want the engine's true 8000", got)
	}
}

func TestSpeakBeforeInitializeFails(t *testing.T) {
	a := NewAdapter(&fakeEngine{}, nil)
	if err := a.Speak(context.Background(), "hi"); err == nil {
		t.Fatal("expected an error before initialization")
	}
	if a.LastError() == nil {
		t.Fatal("expected the failure to be recorded")
	}
}

func TestSpeakErrorIsRecorded(t *testing.T) {
	boom := errors.New("backend exploded")
	engine := &fakeEngine{speakErr: boom}
	a := NewAdapter(engine, nil)
	if err := a.Initialize(22050); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Speak(context.Background(), "hi"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
	if !errors.Is(a.LastError(), boom) {
		t.Fatal("expected last error to carry the backend failure")
	}
}

func TestStopDropsAccumulatedSamples(t *testing.T) {
	engine := &fakeEngine{emit: [][]float32{{0.5}}}
	a := NewAdapter(engine, nil)
	if err := a.Initialize(22050); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Speak(context.Background(), "hi"); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !engine.canceled {
		t.Fatal("stop must cancel the engine")
	}
	if len(a.TakeSamples()) != 0 {
		t.Fatal("stop must drop pending samples")
	}
}

// blockingEngine stalls in Speak until Cancel is called, mimicking a
// backend stuck mid-utterance.
type blockingEngine struct {
	speaking chan struct{}
	release  chan struct{}
}

func (b *blockingEngine) Init(requestedRate int) (int, error) { return 22050, nil }
func (b *blockingEngine) Apply(p Params) error                { return nil }

func (b *blockingEngine) Speak(ctx context.Context, text string, emit func([]float32)) error {
	close(b.speaking)
	<-b.release
	return context.Canceled
}

func (b *blockingEngine) Rate() int     { return 22050 }
func (b *blockingEngine) Cancel() error { close(b.release); return nil }
func (b *blockingEngine) Close() error  { return nil }

func TestStopInterruptsBlockedSpeak(t *testing.T) {
	engine := &blockingEngine{
		speaking: make(chan struct{}),
		release:  make(chan struct{}),
	}
	a := NewAdapter(engine, nil)
	if err := a.Initialize(22050); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Speak(context.Background(), "stuck") }()

	<-engine.speaking
	if err := a.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected the interrupted speak to fail, got %v", err)
	}
}

func TestShutdownClosesEngine(t *testing.T) {
	engine := &fakeEngine{}
	a := NewAdapter(engine, nil)
	if err := a.Initialize(22050); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !engine.closed {
		t.Fatal("shutdown must close the engine")
	}
	if a.Initialized() {
		t.Fatal("adapter must report uninitialized after shutdown")
	}
}

func TestNullEngineEmitsSilence(t *testing.T) {
	engine := newNullEngine()
	rate, err := engine.Init(8000)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if rate != 8000 {
		t.Fatalf("rate: got %d, want 8000", rate)
	}

	var got []float32
	if err := engine.Speak(context.Background(), "abc", func(s []float32) { got = s }); err != nil {
		t.Fatalf("speak: %v", err)
	}
	if want := 3 * 8000 * 80 / 1000; len(got) != want {
		t.Fatalf("silence length: got %d, want %d", len(got), want)
	}
	for i, s := range got {
		if s != 0 {
			t.Fatalf("expected silence at %d, got %v", i, s)
		}
	}
}
