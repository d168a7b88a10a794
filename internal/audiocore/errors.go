package audiocore

import (
	"github.com/livecaptions/livecaptions/internal/errors"
)

// Component identifier for audiocore errors
const ComponentAudioCore = "audiocore"

var (
	// ErrReadTimeout is returned when a stream read misses its deadline
	ErrReadTimeout = errors.NewStd("audio read timed out")

	// ErrStreamClosed is returned when reading from a closed stream
	ErrStreamClosed = errors.NewStd("audio stream closed")

	// ErrInvalidChannels is returned for streams reporting fewer than one channel
	ErrInvalidChannels = errors.NewStd("invalid channel count")
)

// deviceError wraps a device-level failure with the audio-source category.
func deviceError(err error, device, operation string) error {
	return errors.New(err).
		Component(ComponentAudioCore).
		Category(errors.CategoryAudioSource).
		Context("device", device).
		Context("operation", operation).
		Build()
}
