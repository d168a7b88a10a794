package natsbus

import (
	"encoding/json"
	"time"

	"github.com/livecaptions/livecaptions/internal/events"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
)

// Publisher is an events.Consumer publishing captions to
// <subject>.final, <subject>.partial and session ends to <subject>.status.
type Publisher struct {
	client   *Client
	subject  string
	partials bool
	metrics  *metrics.OutputMetrics
}

// NewPublisher publishes through client.
func NewPublisher(client *Client, cfg Config, m *metrics.OutputMetrics) *Publisher {
	subject := cfg.Subject
	if subject == "" {
		subject = DefaultConfig().Subject
	}
	return &Publisher{client: client, subject: subject, partials: cfg.Partials, metrics: m}
}

// Name implements events.Consumer
func (p *Publisher) Name() string {
	return "nats"
}

// HandleCaption implements events.Consumer
func (p *Publisher) HandleCaption(c events.Caption) error {
	if !c.IsFinal && !p.partials {
		return nil
	}
	return p.publish(p.subject+"."+c.Kind(), c)
}

// HandleSessionEnd implements events.SessionObserver
func (p *Publisher) HandleSessionEnd(e events.SessionEnd) error {
	return p.publish(p.subject+".status", struct {
		events.SessionEnd
		Error string `json:"error,omitempty"`
	}{e, e.Error()})
}

func (p *Publisher) publish(subject string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	start := time.Now()
	err = p.client.conn.Publish(subject, payload)
	if p.metrics != nil {
		p.metrics.RecordPublish(p.Name(), time.Since(start), err)
	}
	return err
}
