// Package malgo provides a malgo-based soundcard capture device
package malgo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
)

// BackendName labels metrics and logs for this backend.
const BackendName = "malgo"

// bufferPeriods is how many host buffers the capture ring can hold
const bufferPeriods = 4

// Device implements audiocore.Device using malgo for cross-platform audio capture
type Device struct {
	source   string
	channels int
	metrics  *metrics.AudioMetrics
	log      logger.Logger
}

// NewDevice returns a device that resolves source on every Open. An empty
// source selects the system default capture device.
func NewDevice(source string, channels int, m *metrics.AudioMetrics) *Device {
	if channels <= 0 {
		channels = 1
	}
	return &Device{
		source:   source,
		channels: channels,
		metrics:  m,
		log:      audiocore.GetLogger().Module(BackendName),
	}
}

// Name returns the configured source name
func (d *Device) Name() string {
	if d.source == "" {
		return "default"
	}
	return d.source
}

// Open starts capture from the selected device, or loopback capture of an
// output device for a "loopback" source.
func (d *Device) Open(sampleRate, bufferFrames int) (audiocore.Stream, error) {
	backend, err := getBackendForPlatform()
	if err != nil {
		return nil, err
	}
	name, deviceType, err := resolveSource(d.source, backend)
	if err != nil {
		return nil, err
	}

	ctx, err := initContext()
	if err != nil {
		return nil, err
	}

	s := &captureStream{
		ctx:      ctx,
		channels: d.channels,
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
		metrics:  d.metrics,
		log:      d.log,
	}

	// Loopback selects among output devices and reads them through the
	// capture side of the config
	listKind := malgo.Capture
	if deviceType == malgo.Loopback {
		listKind = malgo.Playback
	}
	devices, err := listDevices(ctx, listKind)
	if err != nil {
		s.releaseContext()
		return nil, err
	}

	info, err := SelectDevice(devices, name)
	if err != nil {
		s.releaseContext()
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(deviceType)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(d.channels)
	deviceConfig.Capture.DeviceID = info.ID.Pointer()
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(bufferFrames)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onAudioData,
		Stop: s.onDeviceStop,
	})
	if err != nil {
		s.releaseContext()
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("device_name", info.Name()).
			Context("operation", "init_device").
			Build()
	}
	s.device = device
	s.format = device.CaptureFormat()
	s.frameBytes = CalculateBufferSize(s.format, d.channels, 1)
	s.rb = ringbuffer.New(s.frameBytes * bufferFrames * bufferPeriods)

	if err := device.Start(); err != nil {
		device.Uninit()
		s.releaseContext()
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("device_name", info.Name()).
			Context("operation", "start_device").
			Build()
	}
	s.running.Store(true)

	_, formatName := GetFormatInfo(s.format)
	d.log.Info("capture device started",
		logger.String("device", info.Name()),
		logger.Bool("loopback", deviceType == malgo.Loopback),
		logger.String("format", formatName),
		logger.Int("sample_rate", int(device.SampleRate())),
		logger.Int("period_frames", bufferFrames))

	return s, nil
}

// captureStream bridges the malgo data callback to blocking reads. The
// callback only copies into the ring buffer and never blocks.
type captureStream struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	rb     *ringbuffer.RingBuffer

	format     malgo.FormatType
	channels   int
	frameBytes int

	ready   chan struct{}
	done    chan struct{}
	running atomic.Bool
	lost    atomic.Bool

	readTimeout time.Duration
	scratch     []byte
	decoded     []float32

	metrics *metrics.AudioMetrics
	log     logger.Logger

	closeOnce sync.Once
}

// onAudioData is called by malgo when audio data is available
func (s *captureStream) onAudioData(_, input []byte, _ uint32) {
	free := s.rb.Free()
	n := min(len(input), free-free%s.frameBytes)
	if n > 0 {
		_, _ = s.rb.Write(input[:n])
	}
	if dropped := len(input) - n; dropped > 0 && s.metrics != nil {
		s.metrics.RecordOverflow(BackendName, dropped)
	}

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// onDeviceStop fires when the device stops, including unplugging
func (s *captureStream) onDeviceStop() {
	if s.running.Load() {
		s.lost.Store(true)
		s.log.Warn("capture device stopped unexpectedly")
	}
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// SetReadTimeout implements audiocore.DeadlineStream
func (s *captureStream) SetReadTimeout(timeout time.Duration) {
	s.readTimeout = timeout
}

// Channels returns the capture channel count
func (s *captureStream) Channels() int {
	return s.channels
}

// Read blocks until frames frames are buffered
func (s *captureStream) Read(frames int) ([]float32, error) {
	need := frames * s.frameBytes

	var deadline <-chan time.Time
	if s.readTimeout > 0 {
		timer := time.NewTimer(s.readTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for s.rb.Length() < need {
		if s.lost.Load() {
			return nil, errors.NewStd("capture device disconnected")
		}
		select {
		case <-s.ready:
		case <-s.done:
			return nil, audiocore.ErrStreamClosed
		case <-deadline:
			return nil, audiocore.ErrReadTimeout
		}
	}

	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	buf := s.scratch[:need]
	if _, err := s.rb.Read(buf); err != nil {
		return nil, err
	}

	decoded, err := DecodeSamples(buf, s.format, s.decoded)
	if err != nil {
		return nil, err
	}
	s.decoded = decoded

	out := make([]float32, len(decoded))
	copy(out, decoded)
	return out, nil
}

// Close stops the device and releases the malgo context
func (s *captureStream) Close() error {
	s.closeOnce.Do(func() {
		s.running.Store(false)
		close(s.done)
		if s.device != nil {
			_ = s.device.Stop()
			s.device.Uninit()
		}
		s.releaseContext()
	})
	return nil
}

func (s *captureStream) releaseContext() {
	if s.ctx != nil {
		_ = s.ctx.Uninit()
		s.ctx.Free()
		s.ctx = nil
	}
}
