// Package natsbus publishes captions on a NATS bus, optionally hosting an
// embedded server for single-machine setups.
package natsbus

import (
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
)

const componentNATS = "natsbus"

// Config holds connection settings.
type Config struct {
	Servers        []string
	Subject        string
	Username       string
	Password       string
	Token          string
	ConnectTimeout time.Duration
	Partials       bool
}

// DefaultConfig returns local defaults.
func DefaultConfig() Config {
	return Config{
		Servers:        []string{nats.DefaultURL},
		Subject:        "captions",
		ConnectTimeout: 5 * time.Second,
	}
}

// Client wraps a NATS connection.
type Client struct {
	conn *nats.Conn
	log  logger.Logger
}

// Connect dials the configured servers.
func Connect(cfg Config) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.Newf("no NATS servers configured").
			Component(componentNATS).
			Category(errors.CategoryConfiguration).
			Build()
	}

	options := []nats.Option{
		nats.Name("livecaptions"),
		nats.Timeout(cfg.ConnectTimeout),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	log := GetLogger()
	options = append(options,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from NATS", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("reconnected to NATS", logger.String("server", c.ConnectedUrl()))
		}))

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, errors.NetworkError(err, cfg.Servers[0], cfg.ConnectTimeout).
			Component(componentNATS).
			Context("servers", len(cfg.Servers)).
			Context("operation", "connect").
			Build()
	}

	log.Info("connected to NATS", logger.String("servers", url))
	return &Client{conn: conn, log: log}, nil
}

// Conn exposes the underlying connection.
func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// Healthy reports whether the connection is up.
func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.log.Info("closing NATS connection")
	_ = c.conn.Drain()
	c.conn.Close()
}

// GetLogger returns the natsbus module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("nats")
}
