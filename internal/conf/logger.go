// Package conf provides configuration management for livecaptions.
package conf

import "github.com/livecaptions/livecaptions/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched from the global logger each time because the central logger
// is set up after configuration has been read.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
