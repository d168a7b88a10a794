// Package httpcontroller serves the caption HTTP API: transcript snapshots,
// live SSE and WebSocket streams, session control and metrics.
package httpcontroller

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	gommonlog "github.com/labstack/gommon/log"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/netutil"

	"github.com/livecaptions/livecaptions/internal/captions"
	"github.com/livecaptions/livecaptions/internal/datastore"
	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/events"
	"github.com/livecaptions/livecaptions/internal/logger"
)

const componentHTTP = "http"

// Config holds the HTTP server settings.
type Config struct {
	Listen            string
	Debug             bool
	HeartbeatInterval time.Duration
	ShutdownTimeout   time.Duration

	// MaxConnections caps concurrent plain HTTP connections, 0 is unlimited.
	// Every open stream holds one.
	MaxConnections int

	// AutoTLS serves HTTPS with a Let's Encrypt certificate for Host,
	// cached in CertCache.
	AutoTLS   bool
	Host      string
	CertCache string
}

// DefaultConfig returns listen address and timeouts used when unset.
func DefaultConfig() Config {
	return Config{
		Listen:            "127.0.0.1:8080",
		HeartbeatInterval: 30 * time.Second,
		ShutdownTimeout:   5 * time.Second,
	}
}

// SessionController is the part of the caption session the API drives.
type SessionController interface {
	Start() error
	Stop()
	Status() captions.Status
}

// HistoryReader reads stored final captions.
type HistoryReader interface {
	Recent(ctx context.Context, n int) ([]datastore.CaptionRecord, error)
	BySession(ctx context.Context, sessionID string) ([]datastore.CaptionRecord, error)
}

// LanguageSwitcher reloads the recognizer for another language.
type LanguageSwitcher interface {
	SwitchLanguage(ctx context.Context, language string) error
}

// StatsProvider reports dispatcher counters.
type StatsProvider interface {
	Stats() events.DispatcherStats
}

// Server encapsulates the Echo server and its dependencies.
type Server struct {
	Echo *echo.Echo

	cfg        Config
	session    SessionController
	transcript *captions.Transcript
	hub        *Hub
	history    HistoryReader
	stats      StatsProvider
	languages  LanguageSwitcher
	metrics    http.Handler
	started    time.Time
	log        logger.Logger
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithHistory enables the history endpoints.
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// WithStats adds dispatcher counters to the status endpoint.
func WithStats(p StatsProvider) Option {
	return func(s *Server) { s.stats = p }
}

// WithLanguageSwitcher enables POST /api/v1/session/language.
func WithLanguageSwitcher(l LanguageSwitcher) Option {
	return func(s *Server) { s.languages = l }
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger overrides the module logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New builds the server and registers its routes.
func New(cfg Config, session SessionController, transcript *captions.Transcript, hub *Hub, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	s := &Server{
		Echo:       echo.New(),
		cfg:        cfg,
		session:    session,
		transcript: transcript,
		hub:        hub,
		started:    time.Now(),
		log:        GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Logger.SetOutput(&echoLogAdapter{log: s.log})
	if cfg.Debug {
		s.Echo.Logger.SetLevel(gommonlog.DEBUG)
	} else {
		s.Echo.Logger.SetLevel(gommonlog.WARN)
	}

	s.configureMiddleware()
	s.initRoutes()
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	start, err := s.starter()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening",
			logger.String("address", s.cfg.Listen),
			logger.Bool("auto_tls", s.cfg.AutoTLS))
		errCh <- start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.New(err).
			Component(componentHTTP).
			Category(errors.CategoryNetwork).
			Context("listen", s.cfg.Listen).
			Build()
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// starter prepares the listener and returns the blocking start call.
func (s *Server) starter() (func() error, error) {
	if s.cfg.AutoTLS {
		s.Echo.AutoTLSManager.Prompt = autocert.AcceptTOS
		s.Echo.AutoTLSManager.HostPolicy = autocert.HostWhitelist(s.cfg.Host)
		if s.cfg.CertCache != "" {
			s.Echo.AutoTLSManager.Cache = autocert.DirCache(s.cfg.CertCache)
		}
		return func() error { return s.Echo.StartAutoTLS(s.cfg.Listen) }, nil
	}

	if s.cfg.MaxConnections > 0 {
		ln, err := net.Listen("tcp", s.cfg.Listen)
		if err != nil {
			return nil, errors.New(err).
				Component(componentHTTP).
				Category(errors.CategoryNetwork).
				Context("listen", s.cfg.Listen).
				Build()
		}
		s.Echo.Listener = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	return func() error { return s.Echo.Start(s.cfg.Listen) }, nil
}

// Shutdown disconnects stream subscribers and stops the listener.
func (s *Server) Shutdown() error {
	// Streams never finish on their own; close them first
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(ctx); err != nil {
		return errors.New(err).
			Component(componentHTTP).
			Category(errors.CategoryNetwork).
			Context("operation", "shutdown").
			Build()
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// echoLogAdapter adapts Logger to the io.Writer Echo logs to
type echoLogAdapter struct {
	log logger.Logger
}

func (a *echoLogAdapter) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		a.log.Info(msg)
	}
	return len(p), nil
}

// GetLogger returns the HTTP module logger
func GetLogger() logger.Logger {
	return logger.Global().Module(componentHTTP)
}
