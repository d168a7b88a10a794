package pipeline

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecaptions/livecaptions/internal/audiocore"
	"github.com/livecaptions/livecaptions/internal/audiocore/audiotest"
	"github.com/livecaptions/livecaptions/internal/captions"
	"github.com/livecaptions/livecaptions/internal/conf"
	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/observability/metrics"
	"github.com/livecaptions/livecaptions/internal/recognizer/recognizertest"
)

// syncBuffer is a bytes.Buffer safe for the dispatcher goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testSettings() *conf.Settings {
	s := &conf.Settings{EnableLogging: true}
	s.Audio = conf.AudioSettings{
		Backend:      "malgo",
		Channels:     1,
		SampleRate:   16000,
		BufferFrames: 4,
		ChunkFrames:  4,
	}
	s.Recognizer = conf.RecognizerSettings{
		Language:        "English",
		PartialInterval: 1,
		ModelCacheTTL:   time.Minute,
	}
	s.Output.Console = conf.ConsoleSettings{Enabled: true, History: 10}
	return s
}

func fixedDevice(dev audiocore.Device) DeviceFunc {
	return func(*metrics.AudioMetrics) (audiocore.Device, error) { return dev, nil }
}

func scriptedFactory() *recognizertest.Factory {
	return recognizertest.NewFactory(func() *recognizertest.Decoder {
		d := recognizertest.NewDecoder(
			recognizertest.Step{Code: 1, Final: "hello world"},
			recognizertest.Step{Code: 0, Partial: "how"},
		)
		d.SetFlushText("goodbye")
		return d
	})
}

func silence(n int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{0, 0, 0, 0}
	}
	return out
}

func TestRunToEndOfStreamStoresFinals(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Output.Store = conf.StoreSettings{
		Enabled: true,
		Type:    "sqlite",
		Path:    filepath.Join(t.TempDir(), "captions.db"),
	}

	console := &syncBuffer{}
	p, err := New(settings, Options{
		Device:  fixedDevice(audiotest.NewDevice("fixture", 1, silence(2)...)),
		Factory: scriptedFactory(),
		Console: console,
	})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Run(context.Background()))

	assert.Contains(t, console.String(), "hello world\n")
	assert.Contains(t, console.String(), "goodbye\n")
	assert.Equal(t, []string{"hello world", "goodbye"}, p.Transcript.Lines())

	records, err := p.Store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "hello world", records[0].Text)
	assert.Equal(t, "goodbye", records[1].Text)
	assert.Equal(t, "English", records[0].Language)
}

func TestRunReturnsLoopFailure(t *testing.T) {
	t.Parallel()

	dev := audiotest.NewDevice("flaky", 1, silence(1)...)
	dev.ReadErr = errors.NewStd("device unplugged")

	console := &syncBuffer{}
	p, err := New(testSettings(), Options{
		Device:  fixedDevice(dev),
		Factory: scriptedFactory(),
		Console: console,
	})
	require.NoError(t, err)
	defer p.Close()

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device unplugged")
	assert.Contains(t, console.String(), "ERROR:")
}

func TestRunReturnsStartError(t *testing.T) {
	t.Parallel()

	dev := audiotest.NewDevice("missing", 1)
	dev.FailOpen(errors.NewStd("no such device"))

	p, err := New(testSettings(), Options{
		Device:  fixedDevice(dev),
		Factory: scriptedFactory(),
	})
	require.NoError(t, err)
	defer p.Close()

	err = p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such device")
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	dev := audiotest.NewDevice("live", 1, silence(1)...)
	dev.Block = true

	p, err := New(testSettings(), Options{
		Device:          fixedDevice(dev),
		Factory:         scriptedFactory(),
		ShutdownTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return p.Session.Status().State == "running" },
		time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Unblock the pending read so the loop observes the stop
	for _, s := range dev.Streams() {
		s.Release()
	}
	p.Close()
	assert.Equal(t, "idle", p.Session.Status().State)
}

func TestNewValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := New(testSettings(), Options{Factory: scriptedFactory()})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	settings := testSettings()
	settings.Recognizer.Language = "Klingon"
	_, err = New(settings, Options{Device: fixedDevice(audiotest.NewDevice("d", 1))})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryModelLoad))

	_, err = New(testSettings(), Options{
		Factory: scriptedFactory(),
		Device: func(*metrics.AudioMetrics) (audiocore.Device, error) {
			return nil, errors.NewStd("backend unavailable")
		},
	})
	require.Error(t, err)
}

func TestHTTPOutputIsWired(t *testing.T) {
	t.Parallel()

	settings := testSettings()
	settings.Output.HTTP = conf.HTTPSettings{Enabled: true, Listen: "127.0.0.1:0"}

	p, err := New(settings, Options{
		Device:  fixedDevice(audiotest.NewDevice("fixture", 1)),
		Factory: scriptedFactory(),
	})
	require.NoError(t, err)
	defer p.Close()

	require.NotNil(t, p.HTTPServer())
	require.NotNil(t, p.Hub)

	for _, path := range []string{"/api/v1/session", "/api/v1/captions", "/metrics"} {
		rec := httptest.NewRecorder()
		p.HTTPServer().Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	// History stays disabled without a store
	rec := httptest.NewRecorder()
	p.HTTPServer().Echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Injected factories have no model cache to switch from
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/language", strings.NewReader(`{"language":"German"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	p.HTTPServer().Echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSwitchLanguageNeedsLoadedModels(t *testing.T) {
	t.Parallel()

	p, err := New(testSettings(), Options{
		Device:  fixedDevice(audiotest.NewDevice("fixture", 1)),
		Factory: scriptedFactory(),
	})
	require.NoError(t, err)
	defer p.Close()

	err = p.SwitchLanguage(context.Background(), "German")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))
	assert.Equal(t, "English", p.Session.Config().Language)
}

func TestSessionDefaultsMatchSettingDefaults(t *testing.T) {
	t.Parallel()

	def := captions.DefaultConfig()
	assert.Equal(t, conf.DefaultSampleRate, def.SampleRate)
	assert.Equal(t, conf.DefaultBufferFrames, def.BufferFrames)
	assert.Equal(t, conf.DefaultChunkFrames, def.ChunkFrames)
	assert.Equal(t, conf.DefaultPartialInterval, def.PartialInterval)
}

func TestEmbeddedAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw      string
		wantHost string
		wantPort int
	}{
		{"nats://127.0.0.1:4333", "127.0.0.1", 4333},
		{"nats://0.0.0.0:-1", "0.0.0.0", -1},
		{"nats://localhost", "localhost", 4222},
		{"", "127.0.0.1", 4222},
	}
	for _, tt := range tests {
		host, port := embeddedAddress(tt.raw)
		assert.Equal(t, tt.wantHost, host, tt.raw)
		assert.Equal(t, tt.wantPort, port, tt.raw)
	}
}
