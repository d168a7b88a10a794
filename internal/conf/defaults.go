// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with validation, which falls back to them.
const (
	DefaultSampleRate      = 16000
	DefaultBufferFrames    = 16000
	DefaultChunkFrames     = 3200
	DefaultPartialInterval = 5
	DefaultChannels        = 1
	DefaultLanguage        = "Japanese"
	DefaultModelCacheTTL   = 30 * time.Minute
	DefaultConsoleHistory  = 200
)

// setDefaultConfig sets default values for every configuration key.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("enable_logging", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", "logs/livecaptions.log")
	v.SetDefault("logging.file.level", "debug")

	v.SetDefault("audio.backend", "malgo")
	v.SetDefault("audio.source", "")
	v.SetDefault("audio.channels", DefaultChannels)
	v.SetDefault("audio.samplerate", DefaultSampleRate)
	v.SetDefault("audio.bufferframes", DefaultBufferFrames)
	v.SetDefault("audio.chunkframes", DefaultChunkFrames)
	v.SetDefault("audio.readtimeout", 5*time.Second)

	v.SetDefault("recognizer.language", DefaultLanguage)
	v.SetDefault("recognizer.partialinterval", DefaultPartialInterval)
	v.SetDefault("recognizer.modelcachettl", DefaultModelCacheTTL)
	v.SetDefault("recognizer.models", map[string]string{
		"English":  "models/vosk-model-en-us-0.22",
		"Chinese":  "models/vosk-model-cn-0.22",
		"Japanese": "models/vosk-model-ja-0.22",
	})

	v.SetDefault("output.console.enabled", true)
	v.SetDefault("output.console.history", DefaultConsoleHistory)

	v.SetDefault("output.http.enabled", false)
	v.SetDefault("output.http.listen", "127.0.0.1:8088")
	v.SetDefault("output.http.maxconnections", 0)
	v.SetDefault("output.http.autotls", false)
	v.SetDefault("output.http.host", "")

	v.SetDefault("output.mqtt.enabled", false)
	v.SetDefault("output.mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("output.mqtt.topic", "livecaptions/captions")
	v.SetDefault("output.mqtt.clientid", "livecaptions")
	v.SetDefault("output.mqtt.qos", 0)
	v.SetDefault("output.mqtt.retain", false)
	v.SetDefault("output.mqtt.partials", false)

	v.SetDefault("output.nats.enabled", false)
	v.SetDefault("output.nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("output.nats.subject", "captions")
	v.SetDefault("output.nats.partials", true)
	v.SetDefault("output.nats.embedded", false)

	v.SetDefault("output.store.enabled", false)
	v.SetDefault("output.store.type", "sqlite")
	v.SetDefault("output.store.path", "captions.db")
	v.SetDefault("output.store.dsn", "")

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.desktop", false)
	v.SetDefault("notification.mininterval", 5*time.Minute)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
}
