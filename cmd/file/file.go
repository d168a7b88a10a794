package file

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	audiofile "github.com/livecaptions/livecaptions/internal/audiocore/sources/file"
	"github.com/livecaptions/livecaptions/internal/conf"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
	"github.com/livecaptions/livecaptions/internal/pipeline"
)

// Command creates a new file command for captioning a recorded audio file.
func Command(settings *conf.Settings) *cobra.Command {
	var pace bool

	cmd := &cobra.Command{
		Use:   "file [input.wav|input.flac]",
		Short: "Caption an audio file",
		Long:  `Run a recording through the recognizer and print its captions. The run ends with the file.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, settings, args[0], pace)
		},
	}

	cmd.Flags().BoolVar(&pace, "pace", false, "Feed audio no faster than real time")

	return cmd
}

func run(cmd *cobra.Command, settings *conf.Settings, path string, pace bool) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot open audio file: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(settings, pipeline.Options{
		Device: func(*metrics.AudioMetrics) (audiocore.Device, error) {
			return audiofile.NewDevice(path, audiofile.WithPacing(pace)), nil
		},
		Backend: audiofile.BackendName,
		Console: cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Run(ctx); err != nil {
		return err
	}

	stats := p.Dispatcher.Stats()
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d captions delivered, %d dropped\n",
		path, stats.Delivered, stats.Dropped)
	return nil
}
