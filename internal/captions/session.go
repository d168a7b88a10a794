// Package captions runs the live recognition loop: it reads audio chunks,
// feeds them to a streaming recognizer and hands the results to a sink in
// order. A Session owns at most one loop goroutine at a time.
package captions

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/events"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
	"github.com/livecaptions/livecaptions/internal/recognizer"
)

// ComponentCaptions identifies errors raised by this package.
const ComponentCaptions = "captions"

// State is the controller state seen by callers.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Sink receives the loop's output. *events.Dispatcher implements it.
type Sink interface {
	Publish(caption events.Caption) bool
	PublishEnd(end events.SessionEnd) bool
	Flush(ctx context.Context) error
}

// run is one Start..loop-exit cycle.
type run struct {
	id       string
	language string
	started  time.Time
	done     chan struct{}

	// owned by the loop goroutine
	seq uint64
}

// Status is a point-in-time view of the session.
type Status struct {
	State     string    `json:"state"`
	SessionID string    `json:"session_id,omitempty"`
	Device    string    `json:"device"`
	Language  string    `json:"language,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}

// Session controls the recognition loop. Start and Stop are idempotent and
// all control methods are safe for concurrent use. The control mutex is
// never taken by the loop itself.
type Session struct {
	mu      sync.Mutex
	cfg     Config
	factory recognizer.Factory
	sink    Sink

	// device and current are written under both mu and viewMu. Readers
	// outside the control methods take only viewMu, since Start holds mu
	// while the previous loop drains.
	viewMu  sync.RWMutex
	device  audiocore.Device
	current *run

	active atomic.Bool

	errMu   sync.Mutex
	lastErr error

	metrics      *metrics.CaptionMetrics
	audioMetrics *metrics.AudioMetrics
	backend      string
	log          logger.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithCaptionMetrics records loop metrics.
func WithCaptionMetrics(m *metrics.CaptionMetrics) SessionOption {
	return func(s *Session) {
		s.metrics = m
	}
}

// WithAudioMetrics records capture metrics under backend.
func WithAudioMetrics(m *metrics.AudioMetrics, backend string) SessionOption {
	return func(s *Session) {
		s.audioMetrics = m
		s.backend = backend
	}
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) SessionOption {
	return func(s *Session) {
		s.log = l
	}
}

// New validates cfg and returns an idle session.
func New(cfg Config, device audiocore.Device, factory recognizer.Factory, sink Sink, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if device == nil || factory == nil || sink == nil {
		return nil, errors.Newf("session requires a device, a recognizer factory and a sink").
			Component(ComponentCaptions).
			Category(errors.CategoryValidation).
			Build()
	}

	s := &Session{
		cfg:     cfg,
		device:  device,
		factory: factory,
		sink:    sink,
		backend: "unknown",
		log:     GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the session configuration
func (s *Session) Config() Config {
	return s.cfg
}

// State reports Running while the loop is active.
func (s *Session) State() State {
	if s.active.Load() {
		return Running
	}
	return Idle
}

// Start opens the device, builds a recognizer and launches the loop. It
// returns once the loop goroutine is running. Starting a running session
// is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked()
}

func (s *Session) startLocked() error {
	if s.active.Load() {
		s.log.Info("session already running, start ignored",
			logger.String("session_id", s.current.id))
		return nil
	}

	// A stopped loop may still be draining its last chunk
	if s.current != nil {
		<-s.current.done
	}

	opts := []audiocore.Option{audiocore.WithReadTimeout(s.cfg.ReadTimeout)}
	if s.audioMetrics != nil {
		opts = append(opts, audiocore.WithMetrics(s.audioMetrics, s.backend))
	}
	src, err := audiocore.Open(s.device, s.cfg.SampleRate, s.cfg.BufferFrames, opts...)
	if err != nil {
		s.setErr(err)
		s.log.Error("failed to open audio device",
			logger.String("device", s.device.Name()),
			logger.Error(err))
		return err
	}

	rec, err := s.factory.NewRecognizer(s.cfg.SampleRate)
	if err != nil {
		_ = src.Close()
		s.setErr(err)
		s.log.Error("failed to create recognizer", logger.Error(err))
		return err
	}

	language := rec.Language()
	if language == "" {
		language = s.cfg.Language
	}
	r := &run{
		id:       uuid.NewString(),
		language: language,
		started:  time.Now(),
		done:     make(chan struct{}),
	}
	s.viewMu.Lock()
	s.current = r
	s.viewMu.Unlock()
	s.setErr(nil)
	s.active.Store(true)
	if s.metrics != nil {
		s.metrics.SetSessionRunning(true)
	}

	s.log.Info("session started",
		logger.String("session_id", r.id),
		logger.String("device", s.device.Name()),
		logger.String("language", language),
		logger.Int("sample_rate", s.cfg.SampleRate),
		logger.Int("chunk_frames", s.cfg.ChunkFrames),
		logger.Int("partial_interval", s.cfg.PartialInterval))

	go s.loop(r, src, rec)
	return nil
}

// Stop asks the loop to exit after its current iteration and returns
// without waiting. Use Wait or StopAndWait to join.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if !s.active.CompareAndSwap(true, false) {
		s.log.Info("session not running, stop ignored")
		return
	}
	s.log.Info("stopping session", logger.String("session_id", s.current.id))
}

// Done is closed when the current loop has exited. It is already closed
// when no loop was ever started.
func (s *Session) Done() <-chan struct{} {
	r := s.currentRun()
	if r == nil {
		return closedChan
	}
	return r.done
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Wait blocks until the loop has exited and the sink delivered every event
// of that run.
func (s *Session) Wait(ctx context.Context) error {
	return s.wait(ctx, s.currentRun())
}

func (s *Session) currentRun() *run {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.current
}

func (s *Session) wait(ctx context.Context, r *run) error {
	if r == nil {
		return nil
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return errors.New(ctx.Err()).
			Component(ComponentCaptions).
			Category(errors.CategoryTimeout).
			Context("operation", "wait").
			Context("session_id", r.id).
			Build()
	}
	return s.sink.Flush(ctx)
}

// StopAndWait stops the loop and joins it. After it returns nil no further
// events of the stopped run are delivered.
func (s *Session) StopAndWait(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return s.wait(ctx, s.current)
}

// SetModel swaps the recognizer factory. A running session is stopped,
// joined and restarted with the new model. If the restart fails the
// previous factory and language are put back and the session stays idle,
// so the caller still owns factory.
func (s *Session) SetModel(ctx context.Context, factory recognizer.Factory, language string) error {
	if factory == nil {
		return errors.Newf("recognizer factory cannot be nil").
			Component(ComponentCaptions).
			Category(errors.CategoryValidation).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wasRunning := s.active.Load()
	s.stopLocked()
	if err := s.wait(ctx, s.current); err != nil {
		return err
	}

	prevFactory, prevLanguage := s.factory, s.cfg.Language
	s.factory = factory
	s.cfg.Language = language

	if wasRunning {
		if err := s.startLocked(); err != nil {
			s.factory = prevFactory
			s.cfg.Language = prevLanguage
			s.log.Warn("restart with new model failed, previous model kept",
				logger.String("language", language),
				logger.String("previous_language", prevLanguage),
				logger.Error(err))
			return err
		}
	}
	s.log.Info("recognizer model changed", logger.String("language", language))
	return nil
}

// SetDevice swaps the capture device, restarting a running session. A
// failed restart puts the previous device back.
func (s *Session) SetDevice(ctx context.Context, device audiocore.Device) error {
	if device == nil {
		return errors.Newf("audio device cannot be nil").
			Component(ComponentCaptions).
			Category(errors.CategoryValidation).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wasRunning := s.active.Load()
	s.stopLocked()
	if err := s.wait(ctx, s.current); err != nil {
		return err
	}

	prev := s.device
	s.setDevice(device)

	if wasRunning {
		if err := s.startLocked(); err != nil {
			s.setDevice(prev)
			s.log.Warn("restart on new device failed, previous device kept",
				logger.String("device", device.Name()),
				logger.String("previous_device", prev.Name()),
				logger.Error(err))
			return err
		}
	}
	s.log.Info("audio device changed", logger.String("device", device.Name()))
	return nil
}

func (s *Session) setDevice(device audiocore.Device) {
	s.viewMu.Lock()
	s.device = device
	s.viewMu.Unlock()
}

// Err returns the error that ended the last run, or the last Start failure.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.lastErr
}

func (s *Session) setErr(err error) {
	s.errMu.Lock()
	s.lastErr = err
	s.errMu.Unlock()
}

// Status returns a snapshot for status endpoints.
func (s *Session) Status() Status {
	s.viewMu.RLock()
	r := s.current
	device := s.device.Name()
	s.viewMu.RUnlock()

	st := Status{
		State:  s.State().String(),
		Device: device,
	}
	if r != nil && s.active.Load() {
		st.SessionID = r.id
		st.Language = r.language
		st.StartedAt = r.started
	}
	if err := s.Err(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

// loop owns src and rec until it returns.
func (s *Session) loop(r *run, src *audiocore.FrameSource, rec *recognizer.Recognizer) {
	reason, err := s.process(r, src, rec)

	if cerr := src.Close(); cerr != nil {
		s.log.Warn("failed to close audio stream",
			logger.String("session_id", r.id),
			logger.Error(cerr))
	}
	rec.Close()

	s.active.Store(false)
	if s.metrics != nil {
		s.metrics.SetSessionRunning(false)
		s.metrics.RecordSessionEnd(string(reason))
	}

	if err != nil {
		s.setErr(err)
		category := errors.CategoryOf(err)
		if s.metrics != nil {
			s.metrics.RecordLoopFailure(string(category))
		}
		s.log.Error("recognition loop failed",
			logger.String("session_id", r.id),
			logger.String("category", string(category)),
			logger.Uint64("captions", r.seq),
			logger.Error(err))
	} else {
		s.log.Info("session ended",
			logger.String("session_id", r.id),
			logger.String("reason", string(reason)),
			logger.Uint64("captions", r.seq),
			logger.Duration("duration", time.Since(r.started)))
	}

	s.sink.PublishEnd(events.SessionEnd{
		SessionID: r.id,
		Reason:    reason,
		Err:       err,
		Captions:  r.seq,
		Time:      time.Now(),
	})
	close(r.done)
}

// process runs iterations until the active flag clears, the stream ends or
// an iteration fails. Any failure is fatal to the run.
func (s *Session) process(r *run, src *audiocore.FrameSource, rec *recognizer.Recognizer) (reason events.EndReason, err error) {
	defer func() {
		if p := recover(); p != nil {
			reason = events.ReasonFailed
			err = errors.Newf("recognition loop panicked: %v", p).
				Component(ComponentCaptions).
				Category(errors.CategoryProcessing).
				Priority(errors.PriorityCritical).
				Context("session_id", r.id).
				Build()
		}
	}()

	throttle := NewPartialThrottle(s.cfg.PartialInterval)

	for s.active.Load() {
		pcm, err := src.ReadChunk(s.cfg.ChunkFrames)
		if errors.Is(err, io.EOF) {
			text, err := rec.Flush()
			if err != nil {
				return events.ReasonFailed, err
			}
			s.emit(r, text, true)
			return events.ReasonEndOfStream, nil
		}
		if err != nil {
			return events.ReasonFailed, err
		}

		started := time.Now()
		final, err := rec.Accept(pcm)
		if s.metrics != nil {
			s.metrics.RecordFrame(time.Since(started))
		}
		if err != nil {
			return events.ReasonFailed, err
		}

		if final {
			throttle.Reset()
			text, err := rec.FinalResult()
			if err != nil {
				return events.ReasonFailed, err
			}
			s.emit(r, text, true)
			continue
		}

		if !throttle.Tick() {
			continue
		}
		text, err := rec.PartialResult()
		if err != nil {
			return events.ReasonFailed, err
		}
		if !s.emit(r, text, false) && s.metrics != nil {
			s.metrics.RecordSuppressedPartial()
		}
	}

	return events.ReasonStopped, nil
}

// emit publishes non-empty trimmed text and reports whether it did.
func (s *Session) emit(r *run, text string, final bool) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	r.seq++
	s.sink.Publish(events.Caption{
		SessionID: r.id,
		Seq:       r.seq,
		Text:      text,
		IsFinal:   final,
		Language:  r.language,
		Time:      time.Now(),
	})

	if s.metrics != nil {
		if final {
			s.metrics.RecordResult(metrics.ResultFinal)
		} else {
			s.metrics.RecordResult(metrics.ResultPartial)
		}
	}
	return true
}
