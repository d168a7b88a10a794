package audiocore

import (
	"io"
	"sync"
	"time"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
)

// FrameSource is a scoped capture stream that yields mono PCM16 chunks.
// It is used by a single goroutine; only Close may be called concurrently.
type FrameSource struct {
	device      Device
	stream      Stream
	channels    int
	readTimeout time.Duration

	metrics *metrics.AudioMetrics
	backend string
	log     logger.Logger

	// inflight carries the result of a watchdog read that outlived its deadline
	inflight chan readResult

	closeOnce sync.Once
	closeErr  error
}

type readResult struct {
	samples []float32
	err     error
}

// Option configures a FrameSource.
type Option func(*FrameSource)

// WithReadTimeout bounds every read. Zero disables the deadline.
func WithReadTimeout(timeout time.Duration) Option {
	return func(f *FrameSource) {
		f.readTimeout = timeout
	}
}

// WithMetrics records reads under the given backend label.
func WithMetrics(m *metrics.AudioMetrics, backend string) Option {
	return func(f *FrameSource) {
		f.metrics = m
		f.backend = backend
	}
}

// Open opens device and wraps the resulting stream.
func Open(device Device, sampleRate, bufferFrames int, opts ...Option) (*FrameSource, error) {
	f := &FrameSource{
		device:  device,
		backend: "unknown",
		log:     GetLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}

	if sampleRate <= 0 || bufferFrames <= 0 {
		return nil, errors.Newf("invalid stream parameters: sample rate %d, buffer frames %d", sampleRate, bufferFrames).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}

	stream, err := device.Open(sampleRate, bufferFrames)
	if f.metrics != nil {
		f.metrics.RecordDeviceOpen(f.backend, err)
	}
	if err != nil {
		if errors.CategoryOf(err) != errors.CategoryGeneric {
			return nil, err
		}
		return nil, deviceError(err, device.Name(), "open")
	}

	channels := stream.Channels()
	if channels < 1 {
		_ = stream.Close()
		return nil, deviceError(ErrInvalidChannels, device.Name(), "open")
	}

	if ds, ok := stream.(DeadlineStream); ok && f.readTimeout > 0 {
		ds.SetReadTimeout(f.readTimeout)
	}

	f.stream = stream
	f.channels = channels

	f.log.Info("audio stream opened",
		logger.String("device", device.Name()),
		logger.String("backend", f.backend),
		logger.Int("sample_rate", sampleRate),
		logger.Int("buffer_frames", bufferFrames),
		logger.Int("channels", channels))

	return f, nil
}

// Channels returns the channel count of the underlying stream.
func (f *FrameSource) Channels() int {
	return f.channels
}

// ReadChunk reads frames frames, downmixes them to mono and returns PCM16
// bytes. io.EOF is returned unwrapped so callers can treat it as a clean end.
func (f *FrameSource) ReadChunk(frames int) ([]byte, error) {
	start := time.Now()

	samples, err := f.read(frames)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, f.readError(err)
	}

	pcm, clipped := AppendPCM16(make([]byte, 0, frames*2), Downmix(samples, f.channels))
	if f.metrics != nil {
		f.metrics.RecordRead(f.backend, time.Since(start))
		f.metrics.RecordClipped(clipped)
	}
	return pcm, nil
}

func (f *FrameSource) read(frames int) ([]float32, error) {
	if f.readTimeout <= 0 {
		return f.stream.Read(frames)
	}
	if _, ok := f.stream.(DeadlineStream); ok {
		return f.stream.Read(frames)
	}

	// Watchdog path: the read itself cannot be interrupted, so a late result
	// is parked in inflight and consumed by the next call.
	results := f.inflight
	if results == nil {
		results = make(chan readResult, 1)
		go func(ch chan<- readResult) {
			s, err := f.stream.Read(frames)
			ch <- readResult{samples: s, err: err}
		}(results)
	}

	timer := time.NewTimer(f.readTimeout)
	defer timer.Stop()

	select {
	case r := <-results:
		f.inflight = nil
		return r.samples, r.err
	case <-timer.C:
		f.inflight = results
		return nil, ErrReadTimeout
	}
}

func (f *FrameSource) readError(err error) error {
	category := errors.CategoryAudioSource
	reason := "device"
	if errors.Is(err, ErrReadTimeout) {
		category = errors.CategoryTimeout
		reason = "timeout"
	}
	if f.metrics != nil {
		f.metrics.RecordReadError(f.backend, reason)
	}
	return errors.New(err).
		Component(ComponentAudioCore).
		Category(category).
		Context("device", f.device.Name()).
		Context("operation", "read").
		Context("timeout_ms", f.readTimeout.Milliseconds()).
		Build()
}

// Close closes the underlying stream. Safe to call more than once.
func (f *FrameSource) Close() error {
	f.closeOnce.Do(func() {
		f.closeErr = f.stream.Close()
		f.log.Debug("audio stream closed", logger.String("device", f.device.Name()))
	})
	return f.closeErr
}
