package file

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/errors"
)

// writeWAV writes 16-bit PCM samples to a temp file and returns its path.
func writeWAV(t *testing.T, sampleRate, channels int, samples []int) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fixture.wav")
	out, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(out, sampleRate, 16, channels, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, out.Close())
	return path
}

func TestWAVStreamReadsAndPadsLastChunk(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 16000, 2, []int{16384, -16384, 16384, -16384, 8192, 8192})

	stream, err := NewDevice(path).Open(16000, 4)
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	assert.Equal(t, 2, stream.Channels())

	got, err := stream.Read(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -0.5, 0.5, -0.5}, got)

	got, err = stream.Read(2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, 0.25, 0, 0}, got)

	_, err = stream.Read(2)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWAVThroughFrameSource(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 16000, 2, []int{16384, -16384, 16384, -16384})

	src, err := audiocore.Open(NewDevice(path), 16000, 16)
	require.NoError(t, err)
	defer func() { _ = src.Close() }()

	pcm, err := src.ReadChunk(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, pcm)

	_, err = src.ReadChunk(2)
	assert.ErrorIs(t, err, io.EOF)
}

func TestWAVResampledToRequestedRate(t *testing.T) {
	t.Parallel()

	samples := make([]int, 3200)
	for i := range samples {
		samples[i] = 16384
	}
	path := writeWAV(t, 32000, 1, samples)

	stream, err := NewDevice(path).Open(16000, 400)
	require.NoError(t, err)
	defer func() { _ = stream.Close() }()

	total := 0
	for {
		got, err := stream.Read(100)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		for _, s := range got[:min(len(got), 100)] {
			if s != 0 {
				assert.InDelta(t, 0.5, s, 1e-6)
				total++
			}
		}
	}
	assert.InDelta(t, 1600, total, 2)
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	_, err := NewDevice(filepath.Join(t.TempDir(), "missing.wav")).Open(16000, 1600)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAudioSource))

	bogus := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(bogus, []byte("hello"), 0o600))
	_, err = NewDevice(bogus).Open(16000, 1600)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	garbage := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(garbage, []byte("not a riff file at all"), 0o600))
	_, err = NewDevice(garbage).Open(16000, 1600)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileParsing))

	// Telemetry context names the file type, never its location
	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	ctx := ee.GetContext()
	assert.Equal(t, "wav", ctx["file_extension"])
	assert.Equal(t, "decode_header", ctx["operation"])
	assert.NotContains(t, ctx, "file_path")
}

func TestReadAfterClose(t *testing.T) {
	t.Parallel()

	path := writeWAV(t, 16000, 1, []int{1, 2, 3, 4})
	stream, err := NewDevice(path, WithPacing(true)).Open(16000, 4)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())

	_, err = stream.Read(1)
	assert.ErrorIs(t, err, audiocore.ErrStreamClosed)
}

func TestResamplerKeepsContinuityAcrossBlocks(t *testing.T) {
	t.Parallel()

	r := newResampler(2, 1, 1)
	var out []float32
	out = append(out, r.process([]float32{0, 1, 2})...)
	out = append(out, r.process([]float32{3, 4, 5})...)
	out = append(out, r.process([]float32{6})...)

	assert.Equal(t, []float32{0, 2, 4, 6}, out)
}

func TestResamplerUpsamples(t *testing.T) {
	t.Parallel()

	r := newResampler(1, 2, 2)
	out := r.process([]float32{0, 10, 1, 20})
	assert.Equal(t, []float32{0, 10, 0.5, 15, 1, 20}, out)
}
