// Package trigger receives note requests from the bus and feeds them into
// the pipeline.
package trigger

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/stratojets/notevox/internal/bus"
	"github.com/stratojets/notevox/internal/config"
	"github.com/stratojets/notevox/internal/pipeline"
	"github.com/stratojets/notevox/internal/protocol"
)

// Syllables resolves a MIDI note to its mapped text.
type Syllables interface {
	SyllableForNote(note int) string
}

// Service subscribes to the trigger subject and voices each request. One
// goroutine per request; the pipeline serializes the actual synthesis.
type Service struct {
	cfg    config.BusConfig
	bus    *bus.Client
	pipe   *pipeline.Pipeline
	notes  Syllables
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewService(parent context.Context, cfg config.BusConfig, busClient *bus.Client, pipe *pipeline.Pipeline, notes Syllables, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:    cfg,
		bus:    busClient,
		pipe:   pipe,
		notes:  notes,
		ctx:    ctx,
		cancel: cancel,
		logger: log.With(slog.String("component", "trigger-service")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subject := s.cfg.Subject
	if subject == "" {
		subject = protocol.SubjectTrigger
	}
	sub, err := s.bus.Conn().Subscribe(subject, s.handleRequest)
	if err != nil {
		return err
	}
	s.sub = sub
	s.logger.Info("listening for triggers", slog.String("subject", subject))
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleRequest(msg *nats.Msg) {
	var req protocol.TriggerRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode trigger request", slog.String("error", err.Error()))
		return
	}

	text := req.Text
	if text == "" && s.notes != nil {
		text = s.notes.SyllableForNote(req.Note)
	}
	if text == "" {
		s.logger.Warn("trigger for unmapped note dropped", slog.Int("note", req.Note))
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
		defer cancel()

		res, err := s.pipe.Trigger(ctx, req.Note, text)
		s.publishResult(res, err)
	}()
}

func (s *Service) publishResult(res pipeline.Result, err error) {
	packet := protocol.TriggerResult{
		UtteranceID: res.UtteranceID,
		Note:        res.Note,
		Syllable:    res.Syllable,
		TargetHz:    res.TargetHz,
		Samples:     res.Samples,
		DurationMS:  float64(res.Duration.Milliseconds()),
		Timestamp:   time.Now().UTC(),
	}
	if err != nil {
		packet.Error = err.Error()
	}
	data, merr := json.Marshal(packet)
	if merr != nil {
		s.logger.Warn("failed to marshal trigger result", slog.String("error", merr.Error()))
		return
	}
	if perr := s.bus.Conn().Publish(protocol.SubjectTriggerResult, data); perr != nil {
		s.logger.Warn("failed to publish trigger result", slog.String("error", perr.Error()))
	}
}
