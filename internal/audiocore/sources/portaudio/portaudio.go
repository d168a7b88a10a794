// Package portaudio provides a PortAudio capture device using blocking reads
package portaudio

import (
	"strconv"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
)

// BackendName labels metrics and logs for this backend.
const BackendName = "portaudio"

// Device implements audiocore.Device on top of PortAudio
type Device struct {
	source   string
	channels int
	metrics  *metrics.AudioMetrics
	log      logger.Logger
}

// NewDevice returns a device resolved by name on every Open.
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

// EnumerateDevices lists devices with at least one input channel
func EnumerateDevices() ([]audiocore.DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, initError(err)
	}
	defer func() { _ = portaudio.Terminate() }()

	infos, err := inputDevices()
	if err != nil {
		return nil, err
	}

	devices := make([]audiocore.DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, describe(i, info))
	}
	return devices, nil
}

func inputDevices() ([]*portaudio.DeviceInfo, error) {
	all, err := portaudio.Devices()
	if err != nil {
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	inputs := make([]*portaudio.DeviceInfo, 0, len(all))
	for _, info := range all {
		if info.MaxInputChannels > 0 {
			inputs = append(inputs, info)
		}
	}
	return inputs, nil
}

func describe(index int, info *portaudio.DeviceInfo) audiocore.DeviceInfo {
	isDefault := false
	if info.HostApi != nil && info.HostApi.DefaultInputDevice != nil {
		isDefault = info.HostApi.DefaultInputDevice.Name == info.Name
	}
	id := info.Name
	if info.HostApi != nil {
		id = info.HostApi.Name + ":" + strconv.Itoa(index)
	}
	return audiocore.DeviceInfo{
		Index:     index,
		Name:      info.Name,
		ID:        id,
		IsDefault: isDefault,
	}
}

func initError(err error) error {
	return errors.New(err).
		Component(audiocore.ComponentAudioCore).
		Category(errors.CategoryAudioSource).
		Context("operation", "initialize").
		Context("backend", BackendName).
		Build()
}

// Open initializes PortAudio and starts a blocking input stream
func (d *Device) Open(sampleRate, bufferFrames int) (audiocore.Stream, error) {
	if _, loopback := audiocore.ParseLoopback(d.source); loopback {
		return nil, errors.Newf("loopback capture needs the %s backend", "malgo").
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("source", d.source).
			Context("backend", BackendName).
			Build()
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, initError(err)
	}

	info, err := d.resolve()
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}

	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = d.channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = bufferFrames

	s := &blockingStream{
		buffer:   make([]float32, bufferFrames*d.channels),
		channels: d.channels,
		metrics:  d.metrics,
		log:      d.log,
	}

	stream, err := portaudio.OpenStream(params, s.buffer)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("device_name", info.Name).
			Context("operation", "open_stream").
			Build()
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, errors.New(err).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("device_name", info.Name).
			Context("operation", "start_stream").
			Build()
	}
	s.stream = stream
	s.terminate = portaudio.Terminate

	d.log.Info("capture stream started",
		logger.String("device", info.Name),
		logger.Int("sample_rate", sampleRate),
		logger.Int("frames_per_buffer", bufferFrames))

	return s, nil
}

func (d *Device) resolve() (*portaudio.DeviceInfo, error) {
	if d.source == "" || d.source == "default" {
		info, err := portaudio.DefaultInputDevice()
		if err == nil {
			return info, nil
		}
	}

	infos, err := inputDevices()
	if err != nil {
		return nil, err
	}

	candidates := make([]audiocore.DeviceInfo, len(infos))
	for i, info := range infos {
		candidates[i] = describe(i, info)
	}
	idx, err := audiocore.SelectDeviceIndex(candidates, d.source)
	if err != nil {
		return nil, err
	}
	return infos[idx], nil
}

// hostStream is the subset of *portaudio.Stream used for reading.
type hostStream interface {
	Read() error
	Stop() error
	Close() error
}

// blockingStream serves arbitrary frame counts from fixed-size host reads.
type blockingStream struct {
	stream    hostStream
	terminate func() error
	buffer    []float32
	pending   []float32
	channels  int

	metrics *metrics.AudioMetrics
	log     logger.Logger

	mu     sync.Mutex
	closed bool
}

// Channels returns the input channel count
func (s *blockingStream) Channels() int {
	return s.channels
}

// Read fills pending from host reads until frames frames are available
func (s *blockingStream) Read(frames int) ([]float32, error) {
	need := frames * s.channels

	for len(s.pending) < need {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil, audiocore.ErrStreamClosed
		}

		if err := s.stream.Read(); err != nil {
			if err == portaudio.InputOverflowed {
				// Samples were lost upstream but the buffer is valid
				if s.metrics != nil {
					s.metrics.RecordOverflow(BackendName, len(s.buffer)*4)
				}
				s.log.Debug("input overflowed")
			} else {
				return nil, err
			}
		}
		s.pending = append(s.pending, s.buffer...)
	}

	out := make([]float32, need)
	copy(out, s.pending[:need])
	s.pending = append(s.pending[:0], s.pending[need:]...)
	return out, nil
}

// Close stops the stream and terminates PortAudio
func (s *blockingStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if s.terminate != nil {
		if err := s.terminate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
