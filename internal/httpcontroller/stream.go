package httpcontroller

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/livecaptions/livecaptions/internal/logger"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamSSE pushes captions as Server-Sent Events. Delivery is best
// effort: a client that falls DefaultSubscriberBuffer messages behind
// loses messages, finals and session_end included.
// API: GET /api/v1/captions/stream
func (s *Server) streamSSE(c echo.Context) error {
	sub := s.hub.Subscribe(TransportSSE)
	if sub == nil {
		return s.errorJSON(c, http.StatusServiceUnavailable, nil, "Server is shutting down")
	}
	defer s.hub.Unsubscribe(sub)

	log := s.log.With(
		logger.String("request_id", c.Request().Header.Get(headerRequestID)),
		logger.String("remote_ip", c.RealIP()))
	log.Debug("SSE client connected")
	defer log.Debug("SSE client disconnected")

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				return nil
			}
			data, err := json.Marshal(msg)
			if err != nil {
				log.Warn("failed to encode SSE message", logger.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", msg.Type, data); err != nil {
				return nil
			}
			res.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": heartbeat\n\n"); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

// streamWebSocket pushes captions as JSON WebSocket messages, with the
// same best-effort delivery as the SSE stream.
// API: GET /api/v1/captions/ws
func (s *Server) streamWebSocket(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.log.Debug("WebSocket upgrade failed", logger.Error(err))
		return nil
	}
	defer func() { _ = ws.Close() }()

	sub := s.hub.Subscribe(TransportWebSocket)
	if sub == nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteTimeout))
		return nil
	}
	defer s.hub.Unsubscribe(sub)

	log := s.log.With(
		logger.String("request_id", c.Request().Header.Get(headerRequestID)),
		logger.String("remote_ip", c.RealIP()))
	log.Debug("WebSocket client connected")
	defer log.Debug("WebSocket client disconnected")

	// Reader detects client close; incoming messages are ignored
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return nil
		case msg, ok := <-sub.C:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				return nil
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteJSON(msg); err != nil {
				log.Debug("WebSocket write failed", logger.Error(err))
				return nil
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return nil
			}
		}
	}
}
