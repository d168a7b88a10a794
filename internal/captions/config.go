package captions

import (
	"time"

	"github.com/livecaptions/livecaptions/internal/errors"
)

// Default session parameters.
const (
	DefaultSampleRate      = 16000
	DefaultBufferFrames    = 16000
	DefaultChunkFrames     = 3200
	DefaultPartialInterval = 5
)

// Config is fixed for the lifetime of a session run.
type Config struct {
	SampleRate      int
	BufferFrames    int
	ChunkFrames     int
	PartialInterval int
	// ReadTimeout bounds each audio read; zero waits forever
	ReadTimeout time.Duration
	Language    string
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:      DefaultSampleRate,
		BufferFrames:    DefaultBufferFrames,
		ChunkFrames:     DefaultChunkFrames,
		PartialInterval: DefaultPartialInterval,
	}
}

// Validate checks the invariants between fields.
func (c Config) Validate() error {
	var problem string
	switch {
	case c.SampleRate <= 0:
		problem = "sample rate must be positive"
	case c.BufferFrames <= 0:
		problem = "buffer frames must be positive"
	case c.ChunkFrames <= 0:
		problem = "chunk frames must be positive"
	case c.ChunkFrames > c.BufferFrames:
		problem = "chunk frames must not exceed buffer frames"
	case c.PartialInterval < 1:
		problem = "partial interval must be at least 1"
	case c.ReadTimeout < 0:
		problem = "read timeout must not be negative"
	default:
		return nil
	}

	return errors.Newf("invalid session config: %s", problem).
		Component(ComponentCaptions).
		Category(errors.CategoryValidation).
		Context("sample_rate", c.SampleRate).
		Context("buffer_frames", c.BufferFrames).
		Context("chunk_frames", c.ChunkFrames).
		Context("partial_interval", c.PartialInterval).
		Build()
}
