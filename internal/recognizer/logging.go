package recognizer

import "github.com/livecaptions/livecaptions/internal/logger"

// GetLogger returns the recognizer logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("recognizer")
}
