// Package runtime assembles the daemon: speech synthesis, pitch shifting,
// the audio device, the optional display and bus trigger, and the HTTP
// surface for health and metrics.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/stratojets/notevox/internal/audio"
	"github.com/stratojets/notevox/internal/audio/output"
	"github.com/stratojets/notevox/internal/bus"
	"github.com/stratojets/notevox/internal/config"
	"github.com/stratojets/notevox/internal/display"
	"github.com/stratojets/notevox/internal/dsp/pitch"
	"github.com/stratojets/notevox/internal/eventlog"
	"github.com/stratojets/notevox/internal/mapping"
	"github.com/stratojets/notevox/internal/pipeline"
	"github.com/stratojets/notevox/internal/synth"
	"github.com/stratojets/notevox/internal/trigger"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer  *http.Server
	tracerClose func(context.Context) error

	notes    *mapping.Mapping
	adapter  *synth.Adapter
	relay    *audio.Relay
	engine   *output.Engine
	pipe     *pipeline.Pipeline
	busCli   *bus.Client
	busSrv   *bus.EmbeddedServer
	triggers *trigger.Service
	events   *eventlog.Store
	screen   *display.Client

	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the daemon up and blocks until ctx is cancelled, then tears
// everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if err := r.loadMapping(); err != nil {
		return err
	}
	if err := r.startAudio(); err != nil {
		return err
	}
	if err := r.startPipeline(ctx); err != nil {
		r.stopAudio()
		return err
	}
	r.startHTTP(metricsHandler)

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", r.httpServer.Addr),
		slog.Int("device_rate", r.engine.SampleRate()),
		slog.Bool("bus", r.cfg.Bus.Enabled))
	r.showStatus("READY")

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	if r.triggers != nil {
		r.triggers.Close()
	}
	r.busCli.Close()
	r.busSrv.Shutdown()
	r.stopAudio()
	if r.events != nil {
		if err := r.events.Close(); err != nil {
			r.logger.Error("event log close error", slog.String("error", err.Error()))
		}
	}
	if r.screen != nil {
		r.screen.Close()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}
	return nil
}

// loadMapping reads the note table and folds its global overrides into the
// runtime config before anything downstream consumes it.
func (r *Runtime) loadMapping() error {
	if r.cfg.Mapping.Path == "" {
		return nil
	}
	m, err := mapping.Load(r.cfg.Mapping.Path)
	if err != nil {
		return fmt.Errorf("loading note mapping: %w", err)
	}
	r.notes = m

	if g := m.Global.TTS; g != nil {
		if g.Voice != "" {
			r.cfg.Synth.Voice = g.Voice
		}
		if g.Rate != 0 {
			r.cfg.Synth.Rate = g.Rate
		}
		if g.Pitch != 0 {
			r.cfg.Synth.Pitch = g.Pitch
		}
		if g.Volume != 0 {
			r.cfg.Synth.Volume = g.Volume
		}
	}
	if g := m.Global.Audio; g != nil {
		if g.Device != "" {
			r.cfg.Output.Device = g.Device
		}
		if g.BufferMS != 0 {
			r.cfg.Output.BufferMS = g.BufferMS
		}
	}
	if g := m.Global.Server; g != nil && g.Host != "" {
		r.cfg.Display.Host = g.Host
		if g.Port != 0 {
			r.cfg.Display.Port = g.Port
		}
	}
	if g := m.Global.Display; g != nil {
		if g.Width != 0 {
			r.cfg.Display.Width = g.Width
		}
		if g.Height != 0 {
			r.cfg.Display.Height = g.Height
		}
		if g.FontScale != 0 {
			r.cfg.Display.FontScale = g.FontScale
		}
		r.cfg.Display.OffsetX = g.OffsetX
		r.cfg.Display.OffsetY = g.OffsetY
		r.cfg.Display.Layer = g.Layer
		r.cfg.Display.FlipHorizontal = g.FlipHorizontal
	}
	r.logger.Info("note mapping loaded",
		slog.String("path", r.cfg.Mapping.Path),
		slog.Int("notes", m.NoteCount()))
	return nil
}

func (r *Runtime) startAudio() error {
	r.relay = audio.NewRelay()
	r.engine = output.NewEngine(r.logger)

	if err := r.initAudioMetrics(); err != nil {
		r.logger.Warn("audio metrics unavailable", slog.String("error", err.Error()))
	}

	err := r.engine.Initialize(r.cfg.Output.Device, output.Options{
		SampleRate:   48000,
		Channels:     2,
		BufferMS:     r.cfg.Output.BufferMS,
		SampleFormat: r.cfg.Output.SampleFormat,
		Logger:       r.logger,
	})
	if err != nil {
		return fmt.Errorf("opening audio output: %w", err)
	}
	return r.engine.Start(func(dst []float32, frames, channels int) {
		r.relay.DrainInto(dst, frames, channels)
	})
}

// initAudioMetrics registers observable instruments over the relay and the
// output engine.
func (r *Runtime) initAudioMetrics() error {
	meter := otel.Meter("github.com/stratojets/notevox/runtime")

	depth, err := meter.Int64ObservableGauge("notevox.relay.depth",
		metric.WithDescription("Mono samples queued for playback"))
	if err != nil {
		return err
	}
	underruns, err := meter.Int64ObservableCounter("notevox.relay.underruns",
		metric.WithDescription("Drains that exhausted the queue mid-buffer"))
	if err != nil {
		return err
	}
	writeErrors, err := meter.Int64ObservableCounter("notevox.device.write_errors",
		metric.WithDescription("Failed device writes"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(depth, int64(r.relay.Len()))
		obs.ObserveInt64(underruns, int64(r.relay.Underruns()))
		obs.ObserveInt64(writeErrors, int64(r.engine.WriteErrors()))
		return nil
	}, depth, underruns, writeErrors)
	return err
}

func (r *Runtime) stopAudio() {
	if r.engine != nil {
		if err := r.engine.Stop(); err != nil {
			r.logger.Error("audio stop error", slog.String("error", err.Error()))
		}
	}
	if r.adapter != nil {
		if err := r.adapter.Shutdown(); err != nil {
			r.logger.Error("synth shutdown error", slog.String("error", err.Error()))
		}
	}
}

func (r *Runtime) startPipeline(ctx context.Context) error {
	engine, err := synth.NewEngine(r.cfg.Synth.Mode, r.cfg.Synth.Command, r.cfg.Synth.LibraryPaths)
	if err != nil {
		return fmt.Errorf("building speech engine: %w", err)
	}
	r.adapter = synth.NewAdapter(engine, r.logger)
	if err := r.adapter.Initialize(r.cfg.Synth.SampleRate); err != nil {
		return err
	}
	r.adapter.SetVoice(r.cfg.Synth.Voice)
	r.adapter.SetRate(r.cfg.Synth.Rate)
	r.adapter.SetPitch(r.cfg.Synth.Pitch)
	r.adapter.SetVolume(r.cfg.Synth.Volume)

	var shifter pitch.Shifter
	if r.cfg.Pitch.Mode != "off" {
		shifter = pitch.New(r.cfg.Pitch.Mode, pitch.Options{
			SampleRate:    r.adapter.NativeRate(),
			FramePeriodMS: r.cfg.Pitch.FramePeriodMS,
			F0Floor:       r.cfg.Pitch.F0Floor,
			F0Ceil:        r.cfg.Pitch.F0Ceil,
			ReferenceHz:   r.cfg.Pitch.ReferenceHz,
		})
	}

	if r.cfg.Display.Enabled {
		screen, err := display.Dial(r.cfg.Display.Host, r.cfg.Display.Port, display.Options{
			Width:          r.cfg.Display.Width,
			Height:         r.cfg.Display.Height,
			OffsetX:        r.cfg.Display.OffsetX,
			OffsetY:        r.cfg.Display.OffsetY,
			Layer:          r.cfg.Display.Layer,
			FlipHorizontal: r.cfg.Display.FlipHorizontal,
		})
		if err != nil {
			r.logger.Warn("display unavailable", slog.String("error", err.Error()))
		} else {
			r.screen = screen
		}
	}

	events, err := eventlog.Open(ctx, r.cfg.EventLog, r.logger)
	if err != nil {
		return fmt.Errorf("opening event log: %w", err)
	}
	r.events = events

	r.pipe, err = pipeline.New(pipeline.Options{
		Speaker:      r.adapter,
		Shifter:      shifter,
		Sink:         r.relay,
		DeviceRate:   r.engine.SampleRate(),
		OctaveOffset: r.cfg.Pitch.OctaveOffset,
		Logger:       r.logger,
		OnResult:     r.observeResult,
	})
	if err != nil {
		return err
	}

	if r.cfg.Bus.Enabled {
		busSrv, err := bus.StartEmbedded(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("starting embedded bus: %w", err)
		}
		r.busSrv = busSrv

		busCli, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
		if err != nil {
			if busSrv != nil {
				busSrv.Shutdown()
				r.busSrv = nil
			}
			return fmt.Errorf("connecting to bus: %w", err)
		}
		r.busCli = busCli
		r.triggers = trigger.NewService(ctx, r.cfg.Bus, busCli, r.pipe, r.notes, r.logger)
		if err := r.triggers.Start(); err != nil {
			busCli.Close()
			r.busCli = nil
			if busSrv != nil {
				busSrv.Shutdown()
				r.busSrv = nil
			}
			return fmt.Errorf("starting trigger service: %w", err)
		}
	}
	return nil
}

func (r *Runtime) observeResult(res pipeline.Result) {
	if r.events != nil {
		err := r.events.Append(context.Background(), eventlog.Utterance{
			UtteranceID: res.UtteranceID,
			Note:        res.Note,
			Syllable:    res.Syllable,
			TargetHz:    res.TargetHz,
			Samples:     res.Samples,
			DurationMS:  float64(res.Duration.Milliseconds()),
		})
		if err != nil {
			r.logger.Warn("event log append failed", slog.String("error", err.Error()))
		}
	}
	r.showStatus(res.Syllable)
}

// showStatus is best-effort: a dead display never blocks audio.
func (r *Runtime) showStatus(text string) {
	if r.screen == nil || text == "" {
		return
	}
	fg := display.Color{R: uint8(r.cfg.Display.ColorR), G: uint8(r.cfg.Display.ColorG), B: uint8(r.cfg.Display.ColorB)}
	bg := display.Color{R: uint8(r.cfg.Display.BgColorR), G: uint8(r.cfg.Display.BgColorG), B: uint8(r.cfg.Display.BgColorB)}
	if err := display.ShowTextCentered(r.screen, text, r.cfg.Display.FontScale, fg, bg); err != nil {
		r.logger.Warn("display send failed", slog.String("error", err.Error()))
	}
}

func (r *Runtime) startHTTP(metricsHandler http.Handler) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	mux.HandleFunc("/devices", r.handleDevices)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()
}

// Trigger voices a note using the mapping table. It is the entry point for
// local trigger sources such as the keyboard loop.
func (r *Runtime) Trigger(ctx context.Context, note int) error {
	if !r.ready.Load() {
		return fmt.Errorf("runtime not ready")
	}
	text := ""
	if r.notes != nil {
		text = r.notes.SyllableForNote(note)
	}
	if text == "" {
		return fmt.Errorf("note %d is not mapped", note)
	}
	_, err := r.pipe.Trigger(ctx, note, text)
	return err
}

// TogglePitchShift flips the shift-enabled state and reports the new one.
func (r *Runtime) TogglePitchShift() bool {
	if !r.ready.Load() {
		return false
	}
	next := !r.pipe.ShiftEnabled()
	r.pipe.SetShiftEnabled(next)
	if next {
		r.showStatus("PITCH ON")
	} else {
		r.showStatus("PITCH OFF")
	}
	return next
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := r.ready.Load() && r.engine.IsRunning()
	if r.cfg.Bus.Enabled && !r.busCli.Healthy() {
		ready = false
	}
	if ready {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func (r *Runtime) handleDevices(w http.ResponseWriter, _ *http.Request) {
	devices, err := output.Devices()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(devices)
}
