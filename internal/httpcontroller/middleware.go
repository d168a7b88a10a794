package httpcontroller

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/livecaptions/livecaptions/internal/logger"
)

const headerRequestID = "X-Request-ID"

// configureMiddleware sets up middleware for the server.
func (s *Server) configureMiddleware() {
	s.Echo.Use(middleware.Recover())
	s.Echo.Use(requestIDMiddleware)
	s.Echo.Use(s.requestLogger())
	s.Echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level:   5,
		Skipper: isStreamRequest,
	}))
}

// requestIDMiddleware tags each request with a short unique ID.
func requestIDMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(headerRequestID)
		if id == "" {
			id = uuid.New().String()[:8]
			c.Request().Header.Set(headerRequestID, id)
		}
		c.Response().Header().Set(headerRequestID, id)
		return next(c)
	}
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	reqLog := s.log.Module("request")

	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("request_id", c.Request().Header.Get(headerRequestID)),
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Duration("latency", v.Latency),
				logger.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				fields = append(fields, logger.Error(v.Error))
			}

			switch {
			case v.Status >= 500:
				reqLog.Error("request failed", fields...)
			case v.Status >= 400:
				reqLog.Warn("request rejected", fields...)
			default:
				reqLog.Debug("request served", fields...)
			}
			return nil
		},
	})
}

// isStreamRequest skips compression for long-lived streams.
func isStreamRequest(c echo.Context) bool {
	path := c.Request().URL.Path
	return strings.HasSuffix(path, "/stream") ||
		strings.HasSuffix(path, "/ws") ||
		path == "/metrics"
}
