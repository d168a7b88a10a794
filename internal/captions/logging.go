package captions

import "github.com/livecaptions/livecaptions/internal/logger"

// GetLogger returns the captions module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("captions")
}
