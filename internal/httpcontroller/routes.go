package httpcontroller

import (
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/cpuid/v2"
	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/livecaptions/livecaptions/internal/captions"
	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/events"
	"github.com/livecaptions/livecaptions/internal/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// LanguageRequest is the body of POST /api/v1/session/language.
type LanguageRequest struct {
	Language string `json:"language"`
}

// SystemStatus is returned by /api/v1/status.
type SystemStatus struct {
	Session     captions.Status         `json:"session"`
	Subscribers int                     `json:"subscribers"`
	Dropped     uint64                  `json:"dropped"`
	Dispatcher  *events.DispatcherStats `json:"dispatcher,omitempty"`
	Uptime      string                  `json:"uptime"`
	Goroutines  int                     `json:"goroutines"`
	CPUModel    string                  `json:"cpu_model"`
	CPUCores    int                     `json:"cpu_cores"`
	CPUPercent  float64                 `json:"cpu_percent"`
	MemoryUsed  float64                 `json:"memory_used_percent"`
	ProcessRSS  uint64                  `json:"process_rss_bytes"`
}

func (s *Server) initRoutes() {
	api := s.Echo.Group("/api/v1")

	api.GET("/captions", s.getCaptions)
	api.GET("/captions/stream", s.streamSSE)
	api.GET("/captions/ws", s.streamWebSocket)

	api.GET("/session", s.getSession)
	api.POST("/session/start", s.startSession)
	api.POST("/session/stop", s.stopSession)
	api.POST("/session/language", s.switchLanguage)

	api.GET("/status", s.getStatus)

	api.GET("/history", s.getHistory)
	api.GET("/history/:sessionID", s.getSessionHistory)

	if s.metrics != nil {
		s.Echo.GET("/metrics", echo.WrapHandler(s.metrics))
	}
}

// getCaptions returns the current transcript.
// API: GET /api/v1/captions
func (s *Server) getCaptions(c echo.Context) error {
	return c.JSON(http.StatusOK, s.transcript.Snapshot())
}

// API: GET /api/v1/session
func (s *Server) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, s.session.Status())
}

// startSession starts capturing. Starting a running session is a no-op.
// API: POST /api/v1/session/start
func (s *Server) startSession(c echo.Context) error {
	if err := s.session.Start(); err != nil {
		return s.errorJSON(c, sessionErrorStatus(err), err, "Failed to start captioning session")
	}
	return c.JSON(http.StatusOK, s.session.Status())
}

// switchLanguage loads the model for another language. A running session
// restarts with it; on failure the previous model stays in use and the
// session is left idle if the restart was what failed.
// API: POST /api/v1/session/language {"language": "Japanese"}
func (s *Server) switchLanguage(c echo.Context) error {
	if s.languages == nil {
		return s.errorJSON(c, http.StatusNotFound, nil, "Language switching is disabled")
	}

	var req LanguageRequest
	if err := c.Bind(&req); err != nil {
		return s.errorJSON(c, http.StatusBadRequest, err, "Invalid request body")
	}
	if strings.TrimSpace(req.Language) == "" {
		return s.errorJSON(c, http.StatusBadRequest, nil, "language is required")
	}

	if err := s.languages.SwitchLanguage(c.Request().Context(), req.Language); err != nil {
		return s.errorJSON(c, sessionErrorStatus(err), err, "Failed to switch language")
	}
	return c.JSON(http.StatusOK, s.session.Status())
}

// sessionErrorStatus maps a session control error to an HTTP status.
func sessionErrorStatus(err error) int {
	switch errors.CategoryOf(err) {
	case errors.CategoryValidation, errors.CategoryConfiguration:
		return http.StatusBadRequest
	case errors.CategoryState:
		return http.StatusConflict
	case errors.CategoryTimeout, errors.CategoryCancellation:
		return http.StatusGatewayTimeout
	case errors.CategoryModelLoad, errors.CategoryAudioSource, errors.CategoryAudio:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// stopSession requests a stop. The loop exits after its current chunk,
// so the response is 202 and the state may still read running.
// API: POST /api/v1/session/stop
func (s *Server) stopSession(c echo.Context) error {
	s.session.Stop()
	return c.JSON(http.StatusAccepted, s.session.Status())
}

// API: GET /api/v1/status
func (s *Server) getStatus(c echo.Context) error {
	status := SystemStatus{
		Session:     s.session.Status(),
		Subscribers: s.hub.Subscribers(),
		Dropped:     s.hub.Dropped(),
		Uptime:      time.Since(s.started).Round(time.Second).String(),
		Goroutines:  runtime.NumGoroutine(),
		CPUModel:    cpuid.CPU.BrandName,
		CPUCores:    cpuid.CPU.LogicalCores,
	}
	if s.stats != nil {
		stats := s.stats.Stats()
		status.Dispatcher = &stats
	}

	// Host figures are best effort
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		status.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		status.MemoryUsed = vm.UsedPercent
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			status.ProcessRSS = info.RSS
		}
	}

	return c.JSON(http.StatusOK, status)
}

// getHistory returns the latest stored finals, oldest first.
// API: GET /api/v1/history?limit=N
func (s *Server) getHistory(c echo.Context) error {
	if s.history == nil {
		return s.errorJSON(c, http.StatusNotFound, nil, "Caption store is disabled")
	}

	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return s.errorJSON(c, http.StatusBadRequest, err, "limit must be a positive integer")
		}
		limit = min(n, maxHistoryLimit)
	}

	records, err := s.history.Recent(c.Request().Context(), limit)
	if err != nil {
		return s.errorJSON(c, http.StatusInternalServerError, err, "Failed to read caption history")
	}
	return c.JSON(http.StatusOK, records)
}

// API: GET /api/v1/history/:sessionID
func (s *Server) getSessionHistory(c echo.Context) error {
	if s.history == nil {
		return s.errorJSON(c, http.StatusNotFound, nil, "Caption store is disabled")
	}

	records, err := s.history.BySession(c.Request().Context(), c.Param("sessionID"))
	if err != nil {
		return s.errorJSON(c, http.StatusInternalServerError, err, "Failed to read session history")
	}
	if len(records) == 0 {
		return s.errorJSON(c, http.StatusNotFound, nil, "Session not found")
	}
	return c.JSON(http.StatusOK, records)
}

func (s *Server) errorJSON(c echo.Context, code int, err error, message string) error {
	resp := ErrorResponse{
		Message:   message,
		Code:      code,
		RequestID: c.Request().Header.Get(headerRequestID),
	}
	if err != nil {
		resp.Error = err.Error()
		if code >= http.StatusInternalServerError {
			s.log.Error(message,
				logger.String("path", c.Path()),
				logger.String("request_id", resp.RequestID),
				logger.Error(err))
		}
	} else {
		resp.Error = http.StatusText(code)
	}
	return c.JSON(code, resp)
}
