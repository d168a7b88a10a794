package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)

	m.Captions.RecordFrame(time.Millisecond)
	m.Audio.RecordRead("malgo", time.Millisecond)
	m.Outputs.RecordPublish("nats", time.Millisecond, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "captions_frames_total 1")
	assert.Contains(t, string(body), `audio_reads_total{backend="malgo"} 1`)
	assert.Contains(t, string(body), `output_publish_total{output="nats",status="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
