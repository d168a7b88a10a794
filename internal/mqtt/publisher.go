package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/livecaptions/livecaptions/internal/events"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
)

// CaptionMessage is the JSON payload published for each caption.
type CaptionMessage struct {
	SessionID string    `json:"sessionId"`
	Seq       uint64    `json:"seq"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
	Language  string    `json:"language,omitempty"`
	Time      time.Time `json:"time"`
}

// StatusMessage is published to <Topic>/status when a session ends.
type StatusMessage struct {
	SessionID string    `json:"sessionId"`
	Reason    string    `json:"reason"`
	Error     string    `json:"error,omitempty"`
	Captions  uint64    `json:"captions"`
	Time      time.Time `json:"time"`
}

// Publisher is an events.Consumer forwarding captions to MQTT.
type Publisher struct {
	client   Client
	topic    string
	partials bool
	timeout  time.Duration
	metrics  *metrics.OutputMetrics
	log      logger.Logger
}

// NewPublisher wraps a connected client.
func NewPublisher(client Client, cfg Config, m *metrics.OutputMetrics) *Publisher {
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().PublishTimeout
	}
	return &Publisher{
		client:   client,
		topic:    cfg.Topic,
		partials: cfg.Partials,
		timeout:  timeout,
		metrics:  m,
		log:      GetLogger(),
	}
}

// Name implements events.Consumer
func (p *Publisher) Name() string {
	return "mqtt"
}

// HandleCaption implements events.Consumer
func (p *Publisher) HandleCaption(c events.Caption) error {
	if !c.IsFinal && !p.partials {
		return nil
	}
	return p.publish(p.topic+"/"+c.Kind(), CaptionMessage{
		SessionID: c.SessionID,
		Seq:       c.Seq,
		Text:      c.Text,
		Final:     c.IsFinal,
		Language:  c.Language,
		Time:      c.Time,
	})
}

// HandleSessionEnd implements events.SessionObserver
func (p *Publisher) HandleSessionEnd(e events.SessionEnd) error {
	return p.publish(p.topic+"/status", StatusMessage{
		SessionID: e.SessionID,
		Reason:    string(e.Reason),
		Error:     e.Error(),
		Captions:  e.Captions,
		Time:      e.Time,
	})
}

func (p *Publisher) publish(topic string, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	start := time.Now()
	err = p.client.Publish(ctx, topic, payload)
	if p.metrics != nil {
		p.metrics.RecordPublish(p.Name(), time.Since(start), err)
	}
	if err != nil {
		p.log.Debug("caption publish failed", logger.String("topic", topic), logger.Error(err))
	}
	return err
}
