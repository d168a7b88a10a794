package recognizer_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/recognizer"
	"github.com/livecaptions/livecaptions/internal/recognizer/recognizertest"
)

func TestAcceptReportsBoundaries(t *testing.T) {
	t.Parallel()

	dec := recognizertest.NewDecoder(
		recognizertest.Step{Code: 0, Partial: "hel"},
		recognizertest.Step{Code: 1, Final: "hello world"},
	)
	r := recognizer.New(dec, 16000, "English")
	defer r.Close()

	final, err := r.Accept(make([]byte, 6400))
	require.NoError(t, err)
	assert.False(t, final)

	partial, err := r.PartialResult()
	require.NoError(t, err)
	assert.Equal(t, "hel", partial)

	final, err = r.Accept(make([]byte, 6400))
	require.NoError(t, err)
	assert.True(t, final)

	text, err := r.FinalResult()
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, uint64(2), r.Accepted())
	assert.Equal(t, 6400, dec.LastFrameSize())
}

func TestFinalResultRequiresBoundary(t *testing.T) {
	t.Parallel()

	dec := recognizertest.NewDecoder(recognizertest.Step{Code: 1, Final: "one"})
	r := recognizer.New(dec, 16000, "")
	defer r.Close()

	_, err := r.FinalResult()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	_, err = r.Accept([]byte{0, 0})
	require.NoError(t, err)
	_, err = r.FinalResult()
	require.NoError(t, err)

	// consumed
	_, err = r.FinalResult()
	require.Error(t, err)
}

func TestAcceptEngineError(t *testing.T) {
	t.Parallel()

	r := recognizer.New(recognizertest.NewDecoder(recognizertest.Step{Code: -1}), 16000, "")
	defer r.Close()

	_, err := r.Accept([]byte{0, 0})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryProcessing))
}

func TestEmptyHypotheses(t *testing.T) {
	t.Parallel()

	r := recognizer.New(recognizertest.NewDecoder(recognizertest.Step{Code: 0}), 16000, "")
	defer r.Close()

	_, err := r.Accept([]byte{0, 0})
	require.NoError(t, err)
	partial, err := r.PartialResult()
	require.NoError(t, err)
	assert.Empty(t, partial)
}

type rawDecoder struct {
	recognizertest.Decoder
	partial string
}

func (d *rawDecoder) PartialResult() string { return d.partial }

func TestPartialResultParsing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "vosk formatting", raw: "{\n  \"partial\" : \"good morning\"\n}", want: "good morning"},
		{name: "missing key", raw: `{"text": "x"}`, want: ""},
		{name: "not json", raw: "garbage", wantErr: true},
		{name: "wrong type", raw: `{"partial": 3}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := recognizer.New(&rawDecoder{partial: tt.raw}, 16000, "")
			defer r.Close()

			got, err := r.PartialResult()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCategory(err, errors.CategoryRecognition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlushReturnsRemainingText(t *testing.T) {
	t.Parallel()

	dec := recognizertest.NewDecoder()
	dec.SetFlushText("tail end")
	r := recognizer.New(dec, 16000, "")
	defer r.Close()

	text, err := r.Flush()
	require.NoError(t, err)
	assert.Equal(t, "tail end", text)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	dec := recognizertest.NewDecoder()
	r := recognizer.New(dec, 16000, "")
	r.Close()
	r.Close()
	assert.Equal(t, 1, dec.Freed())

	_, err := r.Accept([]byte{0, 0})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	_, err = r.PartialResult()
	require.Error(t, err)
	_, err = r.Flush()
	require.Error(t, err)
	assert.Equal(t, 0, dec.Accepts())
}

func TestLoadModelNonexistentPath(t *testing.T) {
	t.Parallel()

	m, err := recognizer.LoadModel(filepath.Join(t.TempDir(), "no-such-model"), "English")
	require.Error(t, err)
	assert.Nil(t, m)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))
}
