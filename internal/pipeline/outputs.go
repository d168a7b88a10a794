package pipeline

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/livecaptions/livecaptions/internal/captions"
	"github.com/livecaptions/livecaptions/internal/datastore"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/mqtt"
	"github.com/livecaptions/livecaptions/internal/natsbus"
	"github.com/livecaptions/livecaptions/internal/notification"
)

const pushTimeout = 30 * time.Second

// setupOutputs registers every enabled caption output.
func (p *Pipeline) setupOutputs() error {
	out := p.Settings.Output

	if out.Console.Enabled && p.opts.Console != nil {
		p.console = captions.NewConsole(p.opts.Console, p.opts.ConsoleWidth)
		p.register(p.console)
	}

	if out.Store.Enabled {
		store, err := datastore.Open(datastore.Config{
			Type: out.Store.Type,
			Path: out.Store.Path,
			DSN:  out.Store.DSN,
		})
		if err != nil {
			return err
		}
		p.Store = store
		p.closers = append(p.closers, closer{"store", func() { _ = store.Close() }})
		p.register(datastore.NewRecorder(store))
	}

	if out.MQTT.Enabled {
		p.setupMQTT()
	}

	if out.NATS.Enabled {
		p.setupNATS()
	}

	if p.Settings.Notification.Enabled {
		if err := p.setupNotifications(); err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) setupMQTT() {
	s := p.Settings.Output.MQTT
	cfg := mqtt.DefaultConfig()
	cfg.Broker = s.Broker
	cfg.Topic = s.Topic
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.QoS = s.QoS
	cfg.Retain = s.Retain
	cfg.Partials = s.Partials
	if s.ClientID != "" {
		cfg.ClientID = s.ClientID
	}

	client, err := mqtt.NewClient(cfg)
	if err != nil {
		p.log.Warn("MQTT output disabled", logger.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		p.log.Warn("MQTT output disabled, broker unreachable",
			logger.String("broker", s.Broker),
			logger.Error(err))
		return
	}

	p.closers = append(p.closers, closer{"mqtt", client.Disconnect})
	p.register(mqtt.NewPublisher(client, cfg, p.Metrics.Outputs))
}

func (p *Pipeline) setupNATS() {
	s := p.Settings.Output.NATS
	cfg := natsbus.DefaultConfig()
	cfg.Subject = s.Subject
	cfg.Partials = s.Partials
	if s.URL != "" {
		cfg.Servers = []string{s.URL}
	}

	var embedded *natsbus.EmbeddedServer
	if s.Embedded {
		host, port := embeddedAddress(s.URL)
		srv, err := natsbus.StartEmbedded(host, port)
		if err != nil {
			p.log.Warn("NATS output disabled, embedded server failed", logger.Error(err))
			return
		}
		embedded = srv
		cfg.Servers = []string{srv.URL()}
	}

	client, err := natsbus.Connect(cfg)
	if err != nil {
		embedded.Shutdown()
		p.log.Warn("NATS output disabled, server unreachable", logger.Error(err))
		return
	}

	// The connection drains before the embedded server stops
	p.closers = append(p.closers, closer{"nats", client.Close})
	if embedded != nil {
		p.closers = append(p.closers, closer{"nats-server", embedded.Shutdown})
	}
	p.register(natsbus.NewPublisher(client, cfg, p.Metrics.Outputs))
}

// embeddedAddress extracts host and port from a nats:// URL, falling back
// to the NATS defaults.
func embeddedAddress(raw string) (string, int) {
	host, port := "127.0.0.1", 4222
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return host, port
	}
	h, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		return u.Host, port
	}
	if n, err := strconv.Atoi(portStr); err == nil {
		port = n
	}
	if h != "" {
		host = h
	}
	return host, port
}

func (p *Pipeline) setupNotifications() error {
	s := p.Settings.Notification

	var providers []notification.Provider
	if len(s.URLs) > 0 {
		providers = append(providers, notification.NewShoutrrrProvider("push", true, s.URLs, pushTimeout))
	}
	if s.Desktop {
		providers = append(providers, notification.NewDesktopProvider(true))
	}
	if len(providers) == 0 {
		p.log.Warn("notifications enabled but no URLs or desktop delivery configured")
		return nil
	}

	cfg := notification.DefaultConfig()
	if s.MinInterval > 0 {
		cfg.MinInterval = s.MinInterval
	}
	svc, err := notification.NewService(cfg, providers...)
	if err != nil {
		return err
	}

	// Runs after the dispatcher drained, so the last failure still goes out
	p.closers = append(p.closers, closer{"notification", svc.Close})
	p.register(svc)
	return nil
}
