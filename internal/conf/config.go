// conf/config.go
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings contains all configuration options for the captions pipeline.
type Settings struct {
	Debug         bool `yaml:"debug"`
	EnableLogging bool `yaml:"enable_logging" mapstructure:"enable_logging"` // false silences everything below error

	Logging      LoggingSettings      `yaml:"logging"`
	Audio        AudioSettings        `yaml:"audio"`
	Recognizer   RecognizerSettings   `yaml:"recognizer"`
	Output       OutputSettings       `yaml:"output"`
	Notification NotificationSettings `yaml:"notification"`
	Sentry       SentrySettings       `yaml:"sentry"`
}

// LoggingSettings configures the central logger.
type LoggingSettings struct {
	Level        string            `yaml:"level"`
	Timezone     string            `yaml:"timezone"`
	File         LogFileSettings   `yaml:"file"`
	ModuleLevels map[string]string `yaml:"modulelevels"`
}

// LogFileSettings configures the JSON log file.
type LogFileSettings struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	Level   string `yaml:"level"`
}

// AudioSettings selects and sizes the capture stream.
type AudioSettings struct {
	Backend      string        `yaml:"backend"`      // malgo or portaudio
	Source       string        `yaml:"source"`       // device name or id, empty for the system default, "loopback[:name]" for an output device
	Channels     int           `yaml:"channels"`     // channels requested from the device
	SampleRate   int           `yaml:"samplerate"`   // Hz
	BufferFrames int           `yaml:"bufferframes"` // device buffer size in frames
	ChunkFrames  int           `yaml:"chunkframes"`  // frames fed to the recognizer per iteration
	ReadTimeout  time.Duration `yaml:"readtimeout"`  // 0 disables the read deadline
}

// RecognizerSettings configures speech models.
type RecognizerSettings struct {
	Language        string            `yaml:"language"`        // default language
	PartialInterval int               `yaml:"partialinterval"` // non-final frames between partial fetches
	ModelCacheTTL   time.Duration     `yaml:"modelcachettl"`   // idle time before an unused model is released
	Models          map[string]string `yaml:"models"`          // language name -> model directory
}

// OutputSettings enables caption consumers.
type OutputSettings struct {
	Console ConsoleSettings `yaml:"console"`
	HTTP    HTTPSettings    `yaml:"http"`
	MQTT    MQTTSettings    `yaml:"mqtt"`
	NATS    NATSSettings    `yaml:"nats"`
	Store   StoreSettings   `yaml:"store"`
}

// ConsoleSettings controls the terminal caption view.
type ConsoleSettings struct {
	Enabled bool `yaml:"enabled"`
	History int  `yaml:"history"` // committed lines kept in the caption buffer
}

// HTTPSettings controls the caption web API.
type HTTPSettings struct {
	Enabled        bool   `yaml:"enabled"`
	Listen         string `yaml:"listen"`
	MaxConnections int    `yaml:"maxconnections"` // 0 is unlimited
	AutoTLS        bool   `yaml:"autotls"`        // Let's Encrypt certificate for Host
	Host           string `yaml:"host"`
}

// MQTTSettings controls the MQTT caption publisher.
type MQTTSettings struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"clientid"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      byte   `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
	Partials bool   `yaml:"partials"` // also publish partial captions
}

// NATSSettings controls the NATS caption publisher.
type NATSSettings struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Subject  string `yaml:"subject"`
	Partials bool   `yaml:"partials"`
	Embedded bool   `yaml:"embedded"` // run an in-process server on the URL's port
}

// StoreSettings controls the transcript database.
type StoreSettings struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"` // sqlite or mysql
	Path    string `yaml:"path"` // sqlite file
	DSN     string `yaml:"dsn"`  // mysql data source name
}

// NotificationSettings controls push notifications on unexpected session stops.
type NotificationSettings struct {
	Enabled     bool          `yaml:"enabled"`
	URLs        []string      `yaml:"urls"` // shoutrrr service URLs
	Desktop     bool          `yaml:"desktop"`
	MinInterval time.Duration `yaml:"mininterval"` // minimum time between notifications
}

// SentrySettings controls opt-in error reporting.
type SentrySettings struct {
	Enabled     bool   `yaml:"enabled"`
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// LoadOption adjusts how settings are loaded.
type LoadOption func(*loadOptions)

type loadOptions struct {
	modelsOptional bool
}

// ModelsOptional accepts a configuration without any usable speech model,
// for commands that never load one.
func ModelsOptional() LoadOption {
	return func(o *loadOptions) { o.modelsOptional = true }
}

// Load reads the configuration file and environment variables into the
// global settings instance.
func Load(opts ...LoadOption) (*Settings, error) {
	return LoadWith(viper.GetViper(), opts...)
}

// LoadWith loads settings through the given viper instance. A config file
// set with SetConfigFile takes precedence over the search paths.
func LoadWith(v *viper.Viper, opts ...LoadOption) (*Settings, error) {
	var lo loadOptions
	for _, opt := range opts {
		opt(&lo)
	}

	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(v); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := validateSettings(settings, !lo.modelsOptional); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settings, nil
}

func initViper(v *viper.Viper) error {
	setDefaultConfig(v)

	v.SetEnvPrefix("LIVECAPTIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if v.ConfigFileUsed() == "" {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range configPaths {
			v.AddConfigPath(path)
		}
	}

	err := v.ReadInConfig()
	if err == nil {
		GetLogger().Debug("configuration loaded", logger.String("path", v.ConfigFileUsed()))
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return createDefaultConfig(v)
	}

	return errors.New(err).
		Category(errors.CategoryConfiguration).
		Context("operation", "read_config").
		Build()
}

// createDefaultConfig writes the embedded default config to the first
// default config path and reads it back.
func createDefaultConfig(v *viper.Viper) error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "create_config_dir").
			Build()
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("operation", "write_default_config").
			Build()
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))

	v.SetConfigFile(configPath)
	return v.ReadInConfig()
}

// GetSettings returns the most recently loaded settings
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath via a temp file and rename.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	return os.Rename(tempFileName, configPath)
}

// Languages returns the configured model languages in sorted order.
func (s *Settings) Languages() []string {
	languages := make([]string, 0, len(s.Recognizer.Models))
	for lang := range s.Recognizer.Models {
		languages = append(languages, lang)
	}
	slices.Sort(languages)
	return languages
}

// ModelPath returns the model directory for a language given by name or code.
func (s *Settings) ModelPath(language string) (string, bool) {
	path, ok := s.Recognizer.Models[CanonicalLanguage(language)]
	return path, ok
}

// LoggingConfig converts the settings into a central logger configuration.
func (s *Settings) LoggingConfig() *logger.LoggingConfig {
	level := s.Logging.Level
	if s.Debug {
		level = string(logger.LogLevelDebug)
	}
	if !s.EnableLogging {
		level = string(logger.LogLevelError)
	}

	cfg := &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     s.Logging.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
		ModuleLevels: s.Logging.ModuleLevels,
	}

	if s.EnableLogging && s.Logging.File.Enabled {
		cfg.FileOutput = &logger.FileOutput{
			Enabled: true,
			Path:    s.Logging.File.Path,
			Level:   s.Logging.File.Level,
		}
	}

	return cfg
}
