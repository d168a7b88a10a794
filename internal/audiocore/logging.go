package audiocore

import "github.com/livecaptions/livecaptions/internal/logger"

// GetLogger returns the audio logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audio")
}
