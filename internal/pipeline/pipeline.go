// Package pipeline assembles a captioning run from settings: the capture
// session, the result dispatcher and every enabled output.
package pipeline

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/captions"
	"github.com/livecaptions/livecaptions/internal/conf"
	"github.com/livecaptions/livecaptions/internal/datastore"
	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/events"
	"github.com/livecaptions/livecaptions/internal/httpcontroller"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/observability"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
	"github.com/livecaptions/livecaptions/internal/recognizer"
)

const componentPipeline = "pipeline"

// DefaultShutdownTimeout bounds the graceful stop of a run.
const DefaultShutdownTimeout = 10 * time.Second

// DeviceFunc creates the capture device once metrics exist.
type DeviceFunc func(m *metrics.AudioMetrics) (audiocore.Device, error)

// Options selects the input and overrides for a pipeline.
type Options struct {
	// Device creates the capture device
	Device DeviceFunc
	// Backend labels audio metrics
	Backend string
	// Factory replaces model loading, mainly for tests
	Factory recognizer.Factory
	// Console receives terminal captions when the console output is enabled
	Console io.Writer
	// ConsoleWidth limits the partial line; 0 means unlimited
	ConsoleWidth int
	// KeepServing keeps the HTTP API up after the session ends
	KeepServing bool
	// ShutdownTimeout bounds Close; 0 uses DefaultShutdownTimeout
	ShutdownTimeout time.Duration
}

// Pipeline is one assembled captioning run.
type Pipeline struct {
	Settings   *conf.Settings
	Metrics    *observability.Metrics
	Dispatcher *events.Dispatcher
	Transcript *captions.Transcript
	Session    *captions.Session
	Hub        *httpcontroller.Hub
	Store      *datastore.Store

	opts    Options
	server  *httpcontroller.Server
	console *captions.Console
	models  *recognizer.ModelCache
	closers []closer

	// modelMu serialises language switches and guards models and model
	modelMu sync.Mutex
	model   *recognizer.Model

	log     logger.Logger
}

// closer releases one output on shutdown
type closer struct {
	name string
	fn   func()
}

// New builds every enabled component. Outputs that need a network peer
// are skipped with a warning when the peer is unreachable; everything else
// fails the build. The session is created but not started.
func New(settings *conf.Settings, opts Options) (p *Pipeline, err error) {
	if opts.Device == nil {
		return nil, errors.Newf("pipeline requires a capture device").
			Component(componentPipeline).
			Category(errors.CategoryValidation).
			Build()
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = DefaultShutdownTimeout
	}

	p = &Pipeline{Settings: settings, opts: opts, log: GetLogger()}
	defer func() {
		if err != nil {
			p.release()
		}
	}()

	if p.Metrics, err = observability.NewMetrics(); err != nil {
		return nil, errors.New(err).
			Component(componentPipeline).
			Category(errors.CategorySystem).
			Context("operation", "create_metrics").
			Build()
	}

	p.Dispatcher = events.NewDispatcher(events.WithMetrics(p.Metrics.Captions))
	p.closers = append(p.closers, closer{"dispatcher", p.shutdownDispatcher})

	p.Transcript = captions.NewTranscript(settings.Output.Console.History)
	if err = p.Dispatcher.Register(p.Transcript); err != nil {
		return nil, err
	}

	if err = p.setupOutputs(); err != nil {
		return nil, err
	}

	factory, language, err := p.loadRecognizer()
	if err != nil {
		return nil, err
	}

	device, err := opts.Device(p.Metrics.Audio)
	if err != nil {
		return nil, err
	}

	cfg := captions.Config{
		SampleRate:      settings.Audio.SampleRate,
		BufferFrames:    settings.Audio.BufferFrames,
		ChunkFrames:     settings.Audio.ChunkFrames,
		PartialInterval: settings.Recognizer.PartialInterval,
		ReadTimeout:     settings.Audio.ReadTimeout,
		Language:        language,
	}
	p.Session, err = captions.New(cfg, device, factory, p.Dispatcher,
		captions.WithCaptionMetrics(p.Metrics.Captions),
		captions.WithAudioMetrics(p.Metrics.Audio, opts.Backend))
	if err != nil {
		return nil, err
	}

	if settings.Output.HTTP.Enabled {
		p.setupHTTP()
	}

	p.Dispatcher.Start()
	return p, nil
}

// loadRecognizer returns the injected factory or a cached model for the
// configured language.
func (p *Pipeline) loadRecognizer() (recognizer.Factory, string, error) {
	language := conf.CanonicalLanguage(p.Settings.Recognizer.Language)
	if p.opts.Factory != nil {
		return p.opts.Factory, language, nil
	}

	path, ok := p.Settings.ModelPath(language)
	if !ok {
		return nil, "", errors.Newf("no speech model configured for %s", language).
			Component(componentPipeline).
			Category(errors.CategoryModelLoad).
			Context("language", language).
			Build()
	}

	recognizer.SetEngineLogging(p.Settings.Debug && p.Settings.EnableLogging)
	p.models = recognizer.NewModelCache(p.Settings.Recognizer.ModelCacheTTL)
	model, err := p.models.Get(path, language)
	if err != nil {
		return nil, "", err
	}
	p.model = model
	return model, language, nil
}

// SwitchLanguage loads the model for language and restarts a running
// session with it. Models stay cached, so switching back is cheap.
func (p *Pipeline) SwitchLanguage(ctx context.Context, language string) error {
	p.modelMu.Lock()
	defer p.modelMu.Unlock()

	if p.models == nil {
		return errors.Newf("language switching needs loaded models").
			Component(componentPipeline).
			Category(errors.CategoryState).
			Build()
	}

	language = conf.CanonicalLanguage(language)
	path, ok := p.Settings.ModelPath(language)
	if !ok {
		return errors.Newf("no speech model configured for %s", language).
			Component(componentPipeline).
			Category(errors.CategoryValidation).
			Context("language", language).
			Build()
	}

	model, err := p.models.Get(path, language)
	if err != nil {
		return err
	}

	if err := p.Session.SetModel(ctx, model, language); err != nil {
		model.Close()
		return err
	}

	if p.model != nil {
		p.model.Close()
	}
	p.model = model
	p.log.Info("speech language switched", logger.String("language", language))
	return nil
}

func (p *Pipeline) setupHTTP() {
	p.Hub = httpcontroller.NewHub(httpcontroller.DefaultSubscriberBuffer, p.Metrics.Outputs)
	p.register(p.Hub)

	opts := []httpcontroller.Option{
		httpcontroller.WithStats(p.Dispatcher),
		httpcontroller.WithMetricsHandler(p.Metrics.Handler()),
		httpcontroller.WithLanguageSwitcher(p),
	}
	if p.Store != nil {
		opts = append(opts, httpcontroller.WithHistory(p.Store))
	}
	h := p.Settings.Output.HTTP
	cfg := httpcontroller.Config{
		Listen:         h.Listen,
		Debug:          p.Settings.Debug,
		MaxConnections: h.MaxConnections,
		AutoTLS:        h.AutoTLS,
		Host:           h.Host,
	}
	if h.AutoTLS {
		if paths, err := conf.GetDefaultConfigPaths(); err == nil {
			cfg.CertCache = paths[0]
		}
	}
	p.server = httpcontroller.New(cfg, p.Session, p.Transcript, p.Hub, opts...)
}

// register adds an output to the dispatcher; a duplicate is a programming
// error and only logged.
func (p *Pipeline) register(c events.Consumer) {
	if err := p.Dispatcher.Register(c); err != nil {
		p.log.Error("failed to register output",
			logger.String("output", c.Name()),
			logger.Error(err))
	}
}

// HTTPServer returns the API server, or nil when HTTP is disabled.
func (p *Pipeline) HTTPServer() *httpcontroller.Server {
	return p.server
}

// ShowError prints err on the console output if one is enabled.
func (p *Pipeline) ShowError(err error) {
	if p.console != nil {
		p.console.ShowError(err)
	}
}

func (p *Pipeline) shutdownDispatcher() {
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.ShutdownTimeout)
	defer cancel()
	if err := p.Dispatcher.Shutdown(ctx); err != nil {
		p.log.Warn("dispatcher did not drain before timeout", logger.Error(err))
	}
}

// Close stops the session, drains pending captions and releases every
// output. It is safe to call more than once.
func (p *Pipeline) Close() {
	if p.Session != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.opts.ShutdownTimeout)
		if err := p.Session.StopAndWait(ctx); err != nil {
			p.log.Warn("session did not stop before timeout", logger.Error(err))
		}
		cancel()
	}
	p.release()
}

// release runs closers in order: the dispatcher drains first so outputs
// still see the final captions.
func (p *Pipeline) release() {
	closers := p.closers
	p.closers = nil
	for _, c := range closers {
		p.log.Debug("closing component", logger.String("component", c.name))
		c.fn()
	}

	p.modelMu.Lock()
	if p.model != nil {
		p.model.Close()
		p.model = nil
	}
	if p.models != nil {
		p.models.Close()
		p.models = nil
	}
	p.modelMu.Unlock()
}

// GetLogger returns the pipeline module logger
func GetLogger() logger.Logger {
	return logger.Global().Module(componentPipeline)
}
