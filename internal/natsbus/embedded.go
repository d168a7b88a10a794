package natsbus

import (
	"time"

	"github.com/nats-io/nats-server/v2/server"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
)

// EmbeddedServer is an in-process NATS server.
type EmbeddedServer struct {
	ns  *server.Server
	log logger.Logger
}

// StartEmbedded starts a server on host:port. Port -1 picks a free port.
func StartEmbedded(host string, port int) (*EmbeddedServer, error) {
	opts := &server.Options{
		Host:   host,
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, errors.New(err).
			Component(componentNATS).
			Category(errors.CategoryConfiguration).
			Context("port", port).
			Build()
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, errors.Newf("embedded NATS server failed to start within 5 seconds").
			Component(componentNATS).
			Category(errors.CategoryTimeout).
			Build()
	}

	log := GetLogger()
	log.Info("embedded NATS server started", logger.String("url", ns.ClientURL()))
	return &EmbeddedServer{ns: ns, log: log}, nil
}

// URL returns the client URL.
func (e *EmbeddedServer) URL() string {
	return e.ns.ClientURL()
}

// Shutdown stops the server and waits for it to exit.
func (e *EmbeddedServer) Shutdown() {
	if e == nil || e.ns == nil {
		return
	}
	e.log.Info("shutting down embedded NATS server")
	e.ns.Shutdown()
	e.ns.WaitForShutdown()
}
