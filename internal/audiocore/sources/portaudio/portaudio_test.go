package portaudio

import (
	"errors"
	"io"
	"testing"

	"github.com/gordonklaus/portaudio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
)

// fakeHost fills the shared buffer with consecutive values on every Read.
type fakeHost struct {
	buffer  []float32
	next    float32
	reads   int
	errs    []error
	stopped bool
	closed  bool
}

func (f *fakeHost) Read() error {
	f.reads++
	for i := range f.buffer {
		f.buffer[i] = f.next
		f.next++
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeHost) Stop() error  { f.stopped = true; return nil }
func (f *fakeHost) Close() error { f.closed = true; return nil }

func newStream(bufferFrames, channels int, m *metrics.AudioMetrics) (*blockingStream, *fakeHost) {
	s := &blockingStream{
		buffer:   make([]float32, bufferFrames*channels),
		channels: channels,
		metrics:  m,
		log:      logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil),
	}
	host := &fakeHost{buffer: s.buffer}
	s.stream = host
	return s, host
}

func TestBlockingStreamServesArbitraryFrameCounts(t *testing.T) {
	t.Parallel()

	s, host := newStream(4, 1, nil)

	got, err := s.Read(3)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1, 2}, got)
	assert.Equal(t, 1, host.reads)

	got, err = s.Read(3)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4, 5}, got)
	assert.Equal(t, 2, host.reads)
}

func TestBlockingStreamInterleavedChannels(t *testing.T) {
	t.Parallel()

	s, _ := newStream(2, 2, nil)

	got, err := s.Read(3)
	require.NoError(t, err)
	assert.Len(t, got, 6)
}

func TestBlockingStreamOverflowIsNotFatal(t *testing.T) {
	t.Parallel()

	m, err := metrics.NewAudioMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	s, host := newStream(2, 1, m)
	host.errs = []error{portaudio.InputOverflowed}

	got, err := s.Read(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got)
}

func TestBlockingStreamReadError(t *testing.T) {
	t.Parallel()

	s, host := newStream(2, 1, nil)
	host.errs = []error{errors.New("device unplugged")}

	_, err := s.Read(2)
	require.EqualError(t, err, "device unplugged")
}

func TestBlockingStreamClose(t *testing.T) {
	t.Parallel()

	s, host := newStream(2, 1, nil)
	terminated := 0
	s.terminate = func() error { terminated++; return nil }

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, host.stopped)
	assert.True(t, host.closed)
	assert.Equal(t, 1, terminated)

	_, err := s.Read(1)
	require.ErrorIs(t, err, audiocore.ErrStreamClosed)
}

func TestOpenRejectsLoopbackSource(t *testing.T) {
	t.Parallel()

	for _, source := range []string{"loopback", "loopback:Speakers"} {
		d := NewDevice(source, 1, nil)
		s, err := d.Open(16000, 1600)
		require.Error(t, err, source)
		assert.Nil(t, s)
		assert.Contains(t, err.Error(), "loopback capture needs the malgo backend")
	}
}
