package realtime

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/audiocore/sources"
	"github.com/livecaptions/livecaptions/internal/conf"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
	"github.com/livecaptions/livecaptions/internal/pipeline"
)

// Command creates a new command for captioning a live capture device.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "realtime",
		Short: "Caption live audio in realtime mode",
		Long:  "Capture audio from the selected device and print captions as speech is recognized.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(settings, pipeline.Options{
		Device: func(m *metrics.AudioMetrics) (audiocore.Device, error) {
			return sources.NewDevice(settings.Audio.Backend, settings.Audio.Source, settings.Audio.Channels, m)
		},
		Backend:     settings.Audio.Backend,
		Console:     cmd.OutOrStdout(),
		KeepServing: true,
	})
	if err != nil {
		return err
	}
	defer p.Close()

	return p.Run(ctx)
}

// setupFlags configures flags specific to the realtime command.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().Bool("http", false, "Serve captions over the HTTP API")
	cmd.Flags().String("listen", "", "Listen address of the HTTP API")

	bindings := map[string]string{
		"http":   "output.http.enabled",
		"listen": "output.http.listen",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}

	return nil
}
