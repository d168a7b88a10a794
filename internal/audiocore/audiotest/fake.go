// Package audiotest provides in-memory Device and Stream fakes for tests.
package audiotest

import (
	"io"
	"sync"

	"github.com/livecaptions/livecaptions/internal/audiocore"
)

// Device is a fake audiocore.Device serving canned chunks.
type Device struct {
	mu       sync.Mutex
	name     string
	channels int
	chunks   [][]float32
	openErr  error
	opens    int
	streams  []*Stream

	// Block makes every read after the canned chunks wait until Release or Close
	Block bool
	// ReadErr is returned once the canned chunks are exhausted, instead of io.EOF
	ReadErr error
}

// NewDevice returns a fake device yielding chunks in order.
func NewDevice(name string, channels int, chunks ...[]float32) *Device {
	return &Device{name: name, channels: channels, chunks: chunks}
}

// FailOpen makes the next Open calls fail with err.
func (d *Device) FailOpen(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

// Name returns the device name
func (d *Device) Name() string { return d.name }

// Open returns a new stream over the canned chunks
func (d *Device) Open(_, _ int) (audiocore.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.opens++
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &Stream{
		channels: d.channels,
		chunks:   append([][]float32(nil), d.chunks...),
		block:    d.Block,
		readErr:  d.ReadErr,
		release:  make(chan struct{}),
		closed:   make(chan struct{}),
	}
	d.streams = append(d.streams, s)
	return s, nil
}

// Opens reports how many times Open was called.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Streams returns every stream opened so far.
func (d *Device) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

// Stream is a fake audiocore.Stream.
type Stream struct {
	mu       sync.Mutex
	channels int
	chunks   [][]float32
	block    bool
	readErr  error
	reads    int

	release   chan struct{}
	releaseMu sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

// Channels returns the channel count
func (s *Stream) Channels() int { return s.channels }

// Read returns the next canned chunk resized to frames frames.
func (s *Stream) Read(frames int) ([]float32, error) {
	s.mu.Lock()
	s.reads++
	if len(s.chunks) > 0 {
		chunk := s.chunks[0]
		s.chunks = s.chunks[1:]
		s.mu.Unlock()
		out := make([]float32, frames*s.channels)
		copy(out, chunk)
		return out, nil
	}
	block, readErr := s.block, s.readErr
	s.mu.Unlock()

	if block {
		select {
		case <-s.release:
		case <-s.closed:
			return nil, audiocore.ErrStreamClosed
		}
	}
	if readErr != nil {
		return nil, readErr
	}
	return nil, io.EOF
}

// Reads reports how many reads were served.
func (s *Stream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// Release unblocks a blocked read.
func (s *Stream) Release() {
	s.releaseMu.Do(func() { close(s.release) })
}

// Close closes the stream
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}
