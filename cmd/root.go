package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livecaptions/livecaptions/cmd/devices"
	"github.com/livecaptions/livecaptions/cmd/file"
	"github.com/livecaptions/livecaptions/cmd/history"
	"github.com/livecaptions/livecaptions/cmd/models"
	"github.com/livecaptions/livecaptions/cmd/realtime"
	"github.com/livecaptions/livecaptions/internal/conf"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/telemetry"
)

// annotationModelsOptional marks commands that run without a speech model
const annotationModelsOptional = "models-optional"

const telemetryFlushTimeout = 2 * time.Second

// RootCommand creates and returns the root command. settings is filled in
// before any subcommand runs.
func RootCommand(settings *conf.Settings, version string) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "livecaptions",
		Short:         "Live speech captions from an audio device",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		realtime.Command(settings),
		file.Command(settings),
		withoutModels(devices.Command(settings)),
		withoutModels(models.Command(settings)),
		withoutModels(history.Command(settings)),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			viper.SetConfigFile(configFile)
		}

		var opts []conf.LoadOption
		if cmd.Annotations[annotationModelsOptional] == "true" {
			opts = append(opts, conf.ModelsOptional())
		}

		loaded, err := conf.Load(opts...)
		if err != nil {
			return err
		}
		*settings = *loaded

		central, err = logger.NewCentralLogger(settings.LoggingConfig())
		if err != nil {
			return fmt.Errorf("error initializing logger: %w", err)
		}
		logger.SetGlobal(central)

		return telemetry.Init(telemetry.Config{
			Enabled:     settings.Sentry.Enabled,
			DSN:         settings.Sentry.DSN,
			Environment: settings.Sentry.Environment,
			Release:     "livecaptions@" + version,
			Debug:       settings.Debug,
		})
	}

	// Runs on failed commands too, unlike PersistentPostRun
	cobra.OnFinalize(func() {
		telemetry.Shutdown(telemetryFlushTimeout)
		if central != nil {
			_ = central.Close()
		}
	})

	return rootCmd
}

func withoutModels(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationModelsOptional] = "true"
	return cmd
}

// setupFlags defines flags that are global to the command line interface
// and binds them to their configuration keys.
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Path to the configuration file")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.StringP("language", "l", "", "Speech language by name or code, e.g. Japanese or ja")
	flags.StringP("source", "s", "", "Audio capture source, empty for the system default; \"loopback\" captures the default speaker on Windows")
	flags.String("backend", "", "Audio backend: malgo or portaudio")
	flags.Bool("store", false, "Save final captions to the transcript database")

	bindings := map[string]string{
		"debug":    "debug",
		"language": "recognizer.language",
		"source":   "audio.source",
		"backend":  "audio.backend",
		"store":    "output.store.enabled",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}

	return nil
}
