package events

import "github.com/livecaptions/livecaptions/internal/logger"

// GetLogger returns the events module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("events")
}
