package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/livecaptions/livecaptions/internal/events"
	"github.com/livecaptions/livecaptions/internal/logger"
)

const componentNotification = "notification"

// Config controls the notification service.
type Config struct {
	// MinInterval is the minimum gap between notifications; Burst allows
	// that many back to back before the interval applies
	MinInterval time.Duration
	Burst       int
	QueueSize   int
	SendTimeout time.Duration
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		MinInterval: time.Minute,
		Burst:       3,
		QueueSize:   16,
		SendTimeout: 30 * time.Second,
	}
}

// Service is an events consumer that turns failed sessions into
// notifications. Delivery runs on its own worker so slow push services never
// hold up caption delivery.
type Service struct {
	providers []Provider
	limiter   *rate.Limiter
	timeout   time.Duration
	queue     chan *Notification
	log       logger.Logger

	wg sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	sent    uint64
	limited uint64
	dropped uint64
}

// NewService validates every enabled provider and starts the worker.
func NewService(cfg Config, providers ...Provider) (*Service, error) {
	def := DefaultConfig()
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = def.SendTimeout
	}

	s := &Service{
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), cfg.Burst),
		timeout: cfg.SendTimeout,
		queue:   make(chan *Notification, cfg.QueueSize),
		log:     GetLogger(),
	}
	for _, p := range providers {
		if !p.IsEnabled() {
			continue
		}
		if err := p.ValidateConfig(); err != nil {
			return nil, err
		}
		s.providers = append(s.providers, p)
	}

	s.wg.Add(1)
	go s.worker()
	return s, nil
}

// Name implements events.Consumer
func (s *Service) Name() string {
	return "notification"
}

// HandleCaption implements events.Consumer; captions are not notified.
func (s *Service) HandleCaption(events.Caption) error {
	return nil
}

// HandleSessionEnd notifies about failed sessions.
func (s *Service) HandleSessionEnd(end events.SessionEnd) error {
	if end.Reason != events.ReasonFailed {
		return nil
	}
	s.Notify(&Notification{
		Type:    TypeError,
		Title:   "captioning stopped",
		Message: fmt.Sprintf("Session %s stopped unexpectedly: %s", shortID(end.SessionID), end.Error()),
		Time:    end.Time,
	})
	return nil
}

// Notify queues n unless the rate limit or the queue is exhausted.
func (s *Service) Notify(n *Notification) bool {
	if len(s.providers) == 0 {
		return false
	}
	if !s.limiter.Allow() {
		s.count(&s.limited)
		s.log.Debug("notification rate limited", logger.String("title", n.Title))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- n:
		return true
	default:
		s.dropped++
		s.log.Warn("notification queue full, dropping", logger.String("title", n.Title))
		return false
	}
}

func (s *Service) count(c *uint64) {
	s.mu.Lock()
	*c++
	s.mu.Unlock()
}

// Stats returns sent, rate-limited and dropped counts.
func (s *Service) Stats() (sent, limited, dropped uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.limited, s.dropped
}

func (s *Service) worker() {
	defer s.wg.Done()
	for n := range s.queue {
		s.deliver(n)
	}
}

func (s *Service) deliver(n *Notification) {
	for _, p := range s.providers {
		if !p.SupportsType(n.Type) {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := p.Send(ctx, n)
		cancel()
		if err != nil {
			s.log.Warn("notification delivery failed",
				logger.String("provider", p.GetName()),
				logger.Error(err))
			continue
		}
		s.count(&s.sent)
	}
}

// Close delivers queued notifications and stops the worker.
func (s *Service) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// GetLogger returns the notification module logger
func GetLogger() logger.Logger {
	return logger.Global().Module(componentNotification)
}
