// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/livecaptions/livecaptions/internal/logger"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates settings in place. Recoverable problems are
// corrected with a warning; the rest are collected into a ValidationError.
func ValidateSettings(settings *Settings) error {
	return validateSettings(settings, true)
}

func validateSettings(settings *Settings, requireModels bool) error {
	ve := ValidationError{}

	if err := validateAudioSettings(&settings.Audio); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateRecognizerSettings(&settings.Recognizer, requireModels); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateOutputSettings(&settings.Output); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is set")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// positiveOrDefault replaces a non-positive value with its default.
func positiveOrDefault(key string, value *int, def int) {
	if *value > 0 {
		return
	}
	GetLogger().Warn("invalid value, using default",
		logger.String("key", key),
		logger.Int("value", *value),
		logger.Int("default", def))
	*value = def
}

func validateAudioSettings(settings *AudioSettings) error {
	positiveOrDefault("audio.samplerate", &settings.SampleRate, DefaultSampleRate)
	positiveOrDefault("audio.bufferframes", &settings.BufferFrames, DefaultBufferFrames)
	positiveOrDefault("audio.chunkframes", &settings.ChunkFrames, DefaultChunkFrames)
	positiveOrDefault("audio.channels", &settings.Channels, DefaultChannels)

	var errs []string

	if settings.ChunkFrames > settings.BufferFrames {
		errs = append(errs, fmt.Sprintf("audio.chunkframes (%d) must not exceed audio.bufferframes (%d)",
			settings.ChunkFrames, settings.BufferFrames))
	}

	settings.Backend = strings.ToLower(strings.TrimSpace(settings.Backend))
	switch settings.Backend {
	case "":
		settings.Backend = "malgo"
	case "malgo", "portaudio":
	default:
		errs = append(errs, fmt.Sprintf("audio.backend must be malgo or portaudio, got %q", settings.Backend))
	}

	if settings.ReadTimeout < 0 {
		errs = append(errs, "audio.readtimeout must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("audio settings errors: %v", errs)
	}
	return nil
}

func validateRecognizerSettings(settings *RecognizerSettings, requireModels bool) error {
	positiveOrDefault("recognizer.partialinterval", &settings.PartialInterval, DefaultPartialInterval)

	if settings.ModelCacheTTL <= 0 {
		settings.ModelCacheTTL = DefaultModelCacheTTL
	}

	configured := make(map[string]string, len(settings.Models))
	available := make(map[string]string, len(settings.Models))
	for lang, path := range settings.Models {
		name := CanonicalLanguage(lang)
		path = os.ExpandEnv(path)
		configured[name] = path
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			GetLogger().Warn("speech model not found, language disabled",
				logger.String("language", name),
				logger.String("path", path))
			continue
		}
		available[name] = path
	}

	// Commands that never load a model still list the missing ones
	if !requireModels {
		settings.Models = configured
		settings.Language = CanonicalLanguage(settings.Language)
		return nil
	}

	settings.Models = available
	if len(available) == 0 {
		return fmt.Errorf("no speech models available, download a Vosk model and set recognizer.models")
	}

	requested := CanonicalLanguage(settings.Language)
	if _, ok := available[requested]; !ok {
		languages := make([]string, 0, len(available))
		for lang := range available {
			languages = append(languages, lang)
		}
		slices.Sort(languages)

		GetLogger().Warn("default language has no model, falling back",
			logger.String("requested", settings.Language),
			logger.String("language", languages[0]))
		requested = languages[0]
	}
	settings.Language = requested

	return nil
}

func validateOutputSettings(settings *OutputSettings) error {
	var errs []string

	if settings.Console.History <= 0 {
		settings.Console.History = DefaultConsoleHistory
	}

	if settings.HTTP.Enabled {
		if _, _, err := net.SplitHostPort(settings.HTTP.Listen); err != nil {
			errs = append(errs, fmt.Sprintf("output.http.listen %q is not host:port", settings.HTTP.Listen))
		}
		if settings.HTTP.AutoTLS && settings.HTTP.Host == "" {
			errs = append(errs, "output.http.host is required with autotls")
		}
		if settings.HTTP.MaxConnections < 0 {
			settings.HTTP.MaxConnections = 0
		}
	}

	if settings.MQTT.Enabled {
		if err := validateBrokerURL(settings.MQTT.Broker); err != nil {
			errs = append(errs, err.Error())
		}
		if settings.MQTT.Topic == "" {
			errs = append(errs, "output.mqtt.topic is required")
		}
		if settings.MQTT.QoS > 2 {
			errs = append(errs, "output.mqtt.qos must be 0, 1 or 2")
		}
	}

	if settings.NATS.Enabled && settings.NATS.Subject == "" {
		errs = append(errs, "output.nats.subject is required")
	}

	if settings.Store.Enabled {
		switch settings.Store.Type {
		case "sqlite":
			if settings.Store.Path == "" {
				errs = append(errs, "output.store.path is required for sqlite")
			}
		case "mysql":
			if _, err := mysql.ParseDSN(settings.Store.DSN); err != nil {
				errs = append(errs, fmt.Sprintf("output.store.dsn is invalid: %v", err))
			}
		default:
			errs = append(errs, fmt.Sprintf("output.store.type must be sqlite or mysql, got %q", settings.Store.Type))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("output settings errors: %v", errs)
	}
	return nil
}

func validateBrokerURL(broker string) error {
	u, err := url.Parse(broker)
	if err != nil {
		return fmt.Errorf("output.mqtt.broker is invalid: %w", err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("output.mqtt.broker has unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("output.mqtt.broker has no host")
	}
	return nil
}
