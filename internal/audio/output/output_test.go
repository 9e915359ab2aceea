package output

import (
	"log/slog"
	"strings"
	"testing"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUninitialized: "uninitialized",
		StateInitialized:   "initialized",
		StateRunning:       "running",
		StateStopped:       "stopped",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("state %d: got %q, want %q", int(state), got, want)
		}
	}
}

func TestConvertToInt16Clamps(t *testing.T) {
	src := []float32{0, 1, -1, 2.5, -2.5, 0.5}
	dst := make([]int16, len(src))
	convertToInt16(src, dst)

	want := []int16{0, 32767, -32767, 32767, -32767, 16383}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("sample %d: got %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestStartRequiresInitialization(t *testing.T) {
	e := NewEngine(slog.Default())
	if err := e.Start(func(dst []float32, frames, channels int) {}); err == nil {
		t.Fatal("expected start to fail before initialization")
	}
	if e.LastError() == nil {
		t.Fatal("expected the failure to be recorded")
	}
	if e.IsRunning() {
		t.Fatal("engine must not run after a failed start")
	}
}

func TestInitializeWithUnknownDeviceFailsCleanly(t *testing.T) {
	e := NewEngine(nil)
	err := e.Initialize("no-such-device-xyzzy", Options{SampleRate: 48000, Channels: 2})
	if err == nil {
		t.Fatal("expected initialize to fail for an unmatchable selector")
	}
	if strings.Contains(err.Error(), "initializing portaudio") {
		t.Skipf("no audio host available: %v", err)
	}

	if e.CurrentState() != StateUninitialized {
		t.Fatalf("failed initialize must leave the engine uninitialized, got %s", e.CurrentState())
	}
	if e.IsRunning() {
		t.Fatal("engine must not be running after a failed initialize")
	}
	if e.LastError() == nil || e.LastError().Error() == "" {
		t.Fatal("expected a diagnostic for the unmatched selector")
	}
}

func TestStopBeforeInitializeIsHarmless(t *testing.T) {
	e := NewEngine(nil)
	if err := e.Stop(); err != nil {
		t.Fatalf("stop on a fresh engine: %v", err)
	}
	if err := e.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if e.CurrentState() != StateStopped {
		t.Fatalf("expected stopped state, got %s", e.CurrentState())
	}
}
