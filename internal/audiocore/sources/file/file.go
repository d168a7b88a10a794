// Package file replays WAV and FLAC recordings as a capture device.
package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
)

// BackendName labels metrics and logs for this backend.
const BackendName = "file"

// Device opens an audio file as a stream. Each Open starts from the beginning.
type Device struct {
	path string
	pace bool
	log  logger.Logger
}

// Option configures a file Device.
type Option func(*Device)

// WithPacing delivers audio no faster than real time.
func WithPacing(pace bool) Option {
	return func(d *Device) {
		d.pace = pace
	}
}

// NewDevice returns a file-backed device for path.
func NewDevice(path string, opts ...Option) *Device {
	d := &Device{
		path: path,
		log:  audiocore.GetLogger().Module(BackendName),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the file name
func (d *Device) Name() string {
	return filepath.Base(d.path)
}

// Open decodes the file header and returns a stream resampled to sampleRate.
func (d *Device) Open(sampleRate, bufferFrames int) (audiocore.Stream, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, errors.FileError(err, d.path, 0).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryAudioSource).
			Context("operation", "open").
			Build()
	}
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	var dec decoder
	switch ext := strings.ToLower(filepath.Ext(d.path)); ext {
	case ".wav":
		dec, err = newWAVDecoder(f, bufferFrames)
	case ".flac":
		dec, err = newFLACDecoder(f)
	default:
		err = errors.FileError(fmt.Errorf("unsupported audio file type: %s", ext), d.path, size).
			Component(audiocore.ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()
	}
	if err != nil {
		_ = f.Close()
		if errors.CategoryOf(err) == errors.CategoryGeneric {
			err = errors.FileError(err, d.path, size).
				Component(audiocore.ComponentAudioCore).
				Category(errors.CategoryFileParsing).
				Context("operation", "decode_header").
				Build()
		}
		return nil, err
	}

	info := dec.info()
	d.log.Info("audio file opened",
		logger.String("file", d.Name()),
		logger.Int("sample_rate", info.sampleRate),
		logger.Int("channels", info.channels),
		logger.Int("bit_depth", info.bitDepth),
		logger.Bool("resample", info.sampleRate != sampleRate),
		logger.Bool("pace", d.pace))

	s := &fileStream{
		file:       f,
		dec:        dec,
		channels:   info.channels,
		sampleRate: sampleRate,
		pace:       d.pace,
		done:       make(chan struct{}),
	}
	if info.sampleRate != sampleRate {
		s.resampler = newResampler(info.sampleRate, sampleRate, info.channels)
	}
	return s, nil
}

// fileStream serves fixed-size reads from a block decoder.
type fileStream struct {
	file      *os.File
	dec       decoder
	resampler *resampler

	channels   int
	sampleRate int
	pending    []float32
	eof        bool

	pace      bool
	started   time.Time
	delivered int

	done      chan struct{}
	closeOnce sync.Once
}

// Channels returns the file's channel count
func (s *fileStream) Channels() int {
	return s.channels
}

// Read returns frames frames. The last chunk is zero padded; the call after
// it returns io.EOF.
func (s *fileStream) Read(frames int) ([]float32, error) {
	select {
	case <-s.done:
		return nil, audiocore.ErrStreamClosed
	default:
	}

	need := frames * s.channels
	for !s.eof && len(s.pending) < need {
		block, err := s.dec.next()
		if err == io.EOF {
			s.eof = true
			break
		}
		if err != nil {
			return nil, err
		}
		if s.resampler != nil {
			block = s.resampler.process(block)
		}
		s.pending = append(s.pending, block...)
	}

	if len(s.pending) == 0 {
		return nil, io.EOF
	}

	out := make([]float32, need)
	n := copy(out, s.pending)
	s.pending = append(s.pending[:0], s.pending[n:]...)

	if s.pace {
		if err := s.wait(frames); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// wait sleeps until the delivered audio is due in real time
func (s *fileStream) wait(frames int) error {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.delivered += frames
	due := s.started.Add(time.Duration(float64(s.delivered) / float64(s.sampleRate) * float64(time.Second)))

	timer := time.NewTimer(time.Until(due))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-s.done:
		return audiocore.ErrStreamClosed
	}
}

// Close releases the file
func (s *fileStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.file.Close()
	})
	return err
}
