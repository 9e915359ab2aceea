// Package output drives the audio device. The engine owns a single render
// goroutine that pulls samples from a caller-supplied render function and
// pushes them to a PortAudio stream with blocking writes, so device pacing
// is the only clock in the loop.
package output

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// State tracks the engine lifecycle. Transitions are one way:
// Uninitialized -> Initialized -> Running -> Stopped.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

const (
	minBufferMS     = 1
	maxBufferMS     = 500
	defaultBufferMS = 20

	// Consecutive write failures tolerated before the render loop gives up.
	maxWriteErrors = 8
)

// RenderFunc fills dst with frames interleaved samples for channels
// channels. It runs on the render goroutine and must not block.
type RenderFunc func(dst []float32, frames, channels int)

// DeviceInfo describes one playback-capable device.
type DeviceInfo struct {
	Name       string
	Channels   int
	SampleRate float64
	Default    bool
}

// Options configures Initialize beyond device selection.
type Options struct {
	SampleRate   int
	Channels     int
	BufferMS     int
	SampleFormat string // "float32" or "int16"
	Logger       *slog.Logger
}

// Engine renders a continuous stream to one output device.
type Engine struct {
	mu      sync.Mutex
	state   State
	lastErr error
	logger  *slog.Logger

	stream     *portaudio.Stream
	device     *portaudio.DeviceInfo
	sampleRate int
	channels   int
	frames     int
	useInt16   bool

	float32Buf []float32
	int16Buf   []int16

	stop chan struct{}
	done chan struct{}

	writeErrors uint64
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		state:  StateUninitialized,
		logger: logger.With("component", "output"),
	}
}

// Devices enumerates playback-capable devices. PortAudio must be
// initialized for the duration of the call; Devices handles that itself so
// it is usable before Initialize.
func Devices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	defer portaudio.Terminate()
	return enumerateDevices()
}

func enumerateDevices() ([]DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	def, _ := portaudio.DefaultOutputDevice()

	var out []DeviceInfo
	for _, d := range devices {
		if d.MaxOutputChannels <= 0 {
			continue
		}
		out = append(out, DeviceInfo{
			Name:       d.Name,
			Channels:   d.MaxOutputChannels,
			SampleRate: d.DefaultSampleRate,
			Default:    def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

// Initialize opens the selected device and prepares the stream. An empty
// selector picks the default output device; otherwise the first device
// whose name contains the selector (case-insensitive) wins. On any failure
// the engine stays uninitialized and records the error.
func (e *Engine) Initialize(deviceSelector string, opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A stopped engine may be reinitialized, a running one may not.
	if e.state != StateUninitialized && e.state != StateStopped {
		return e.fail(fmt.Errorf("initialize called in state %s", e.state))
	}

	bufferMS := opts.BufferMS
	if bufferMS == 0 {
		bufferMS = defaultBufferMS
	}
	if bufferMS < minBufferMS {
		bufferMS = minBufferMS
	}
	if bufferMS > maxBufferMS {
		bufferMS = maxBufferMS
	}
	sampleRate := opts.SampleRate
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	channels := opts.Channels
	if channels <= 0 {
		channels = 2
	}

	if err := portaudio.Initialize(); err != nil {
		return e.fail(fmt.Errorf("initializing portaudio: %w", err))
	}

	device, err := selectDevice(deviceSelector)
	if err != nil {
		portaudio.Terminate()
		return e.fail(err)
	}
	if channels > device.MaxOutputChannels {
		channels = device.MaxOutputChannels
	}

	frames := sampleRate * bufferMS / 1000
	if frames < 1 {
		frames = 1
	}

	params := portaudio.LowLatencyParameters(nil, device)
	params.Output.Channels = channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = frames

	e.useInt16 = opts.SampleFormat == "int16"

	var stream *portaudio.Stream
	if e.useInt16 {
		e.int16Buf = make([]int16, frames*channels)
		stream, err = portaudio.OpenStream(params, &e.int16Buf)
	} else {
		stream, err = portaudio.OpenStream(params, &e.float32Buf)
	}
	if err != nil {
		portaudio.Terminate()
		return e.fail(fmt.Errorf("opening stream on %q: %w", device.Name, err))
	}

	e.stream = stream
	e.device = device
	e.sampleRate = sampleRate
	e.channels = channels
	e.frames = frames
	e.float32Buf = make([]float32, frames*channels)
	e.state = StateInitialized

	e.logger.Info("output device ready",
		"device", device.Name,
		"sample_rate", sampleRate,
		"channels", channels,
		"buffer_ms", bufferMS,
		"format", opts.SampleFormat)
	return nil
}

func selectDevice(selector string) (*portaudio.DeviceInfo, error) {
	if selector == "" {
		device, err := portaudio.DefaultOutputDevice()
		if err != nil {
			return nil, fmt.Errorf("resolving default output device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	needle := strings.ToLower(selector)
	for _, d := range devices {
		if d.MaxOutputChannels > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no output device matches %q", selector)
}

// Start begins playback. The render goroutine calls render once per device
// buffer and blocks on the stream write until the device wants more.
func (e *Engine) Start(render RenderFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateInitialized {
		return e.fail(fmt.Errorf("start called in state %s", e.state))
	}
	if render == nil {
		return e.fail(errors.New("start requires a render function"))
	}

	if err := e.stream.Start(); err != nil {
		return e.fail(fmt.Errorf("starting stream: %w", err))
	}

	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	e.state = StateRunning
	go e.renderLoop(render)

	e.logger.Info("playback started")
	return nil
}

func (e *Engine) renderLoop(render RenderFunc) {
	defer close(e.done)

	consecutive := 0
	for {
		select {
		case <-e.stop:
			return
		default:
		}

		render(e.float32Buf, e.frames, e.channels)

		var err error
		if e.useInt16 {
			convertToInt16(e.float32Buf, e.int16Buf)
			err = e.stream.Write()
		} else {
			err = e.stream.Write()
		}
		if err != nil {
			// Output underflow is routine right after start; keep going.
			e.mu.Lock()
			e.writeErrors++
			e.lastErr = err
			e.mu.Unlock()
			if errors.Is(err, portaudio.OutputUnderflowed) {
				consecutive = 0
				continue
			}
			consecutive++
			if consecutive >= maxWriteErrors {
				e.logger.Error("render loop stopping after repeated write failures", "error", err)
				return
			}
			continue
		}
		consecutive = 0
	}
}

// convertToInt16 clamps to [-1, 1] and scales to the full int16 range.
func convertToInt16(src []float32, dst []int16) {
	for i, s := range src {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		dst[i] = int16(s * 32767)
	}
}

// Stop halts playback and releases the device. It is safe to call in any
// state and safe to call more than once.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == StateUninitialized || e.state == StateStopped {
		e.state = StateStopped
		e.mu.Unlock()
		return nil
	}
	wasRunning := e.state == StateRunning
	stop := e.stop
	done := e.done
	stream := e.stream
	e.state = StateStopped
	e.mu.Unlock()

	if wasRunning {
		close(stop)
		<-done
	}

	var err error
	if stream != nil {
		if wasRunning {
			if stopErr := stream.Stop(); stopErr != nil {
				err = stopErr
			}
		}
		if closeErr := stream.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	portaudio.Terminate()

	e.mu.Lock()
	if err != nil {
		e.lastErr = err
	}
	e.mu.Unlock()

	e.logger.Info("playback stopped", "write_errors", e.WriteErrors())
	return err
}

// IsRunning reports whether the render loop is active.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateRunning
}

// CurrentState reports the engine state.
func (e *Engine) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// SampleRate reports the negotiated device rate. Valid after Initialize.
func (e *Engine) SampleRate() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleRate
}

// Channels reports the negotiated channel count. Valid after Initialize.
func (e *Engine) Channels() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channels
}

// WriteErrors reports the cumulative count of failed device writes.
func (e *Engine) WriteErrors() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writeErrors
}

// LastError reports the most recent failure, if any.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

func (e *Engine) fail(err error) error {
	e.lastErr = err
	return err
}
