package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCaptionMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewCaptionMetrics(registry)
	require.NoError(t, err)

	m.RecordFrame(2 * time.Millisecond)
	m.RecordFrame(4 * time.Millisecond)
	m.RecordResult(ResultFinal)
	m.RecordResult(ResultPartial)
	m.RecordResult(ResultPartial)
	m.RecordSuppressedPartial()
	m.RecordLoopFailure("audio-source")
	m.RecordSessionEnd("failed")
	m.SetSessionRunning(true)
	m.SetQueueDepth(3)
	m.RecordConsumerError("mqtt")

	assert.InDelta(t, 2, testutil.ToFloat64(m.framesTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.resultsTotal.WithLabelValues(ResultFinal)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.resultsTotal.WithLabelValues(ResultPartial)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.partialsSuppressed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.loopFailuresTotal.WithLabelValues("audio-source")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionsTotal.WithLabelValues("failed")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.sessionRunning), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.dispatchQueueDepth), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.consumerErrorsTotal.WithLabelValues("mqtt")), 0)

	var sample dto.Metric
	require.NoError(t, m.acceptDuration.Write(&sample))
	assert.Equal(t, uint64(2), sample.GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.006, sample.GetHistogram().GetSampleSum(), 1e-9)

	m.SetSessionRunning(false)
	assert.InDelta(t, 0, testutil.ToFloat64(m.sessionRunning), 0)
}

func TestCaptionMetricsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewCaptionMetrics(registry)
	require.NoError(t, err)

	_, err = NewCaptionMetrics(registry)
	require.Error(t, err)
}

func TestAudioMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewAudioMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordRead("malgo", 200*time.Millisecond)
	m.RecordReadError("malgo", "timeout")
	m.RecordOverflow("malgo", 512)
	m.RecordClipped(0)
	m.RecordClipped(3)
	m.RecordDeviceOpen("portaudio", nil)
	m.RecordDeviceOpen("portaudio", errors.New("busy"))

	assert.InDelta(t, 1, testutil.ToFloat64(m.readsTotal.WithLabelValues("malgo")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.readErrorsTotal.WithLabelValues("malgo", "timeout")), 0)
	assert.InDelta(t, 512, testutil.ToFloat64(m.overflowsTotal.WithLabelValues("malgo")), 0)
	assert.InDelta(t, 3, testutil.ToFloat64(m.clippedSamples), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.deviceOpensTotal.WithLabelValues("portaudio", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.deviceOpensTotal.WithLabelValues("portaudio", "error")), 0)
}

func TestOutputMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewOutputMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordPublish("mqtt", time.Millisecond, nil)
	m.RecordPublish("mqtt", time.Millisecond, errors.New("not connected"))
	m.SetSubscribers("sse", 2)
	m.RecordDropped("websocket")

	assert.InDelta(t, 1, testutil.ToFloat64(m.publishTotal.WithLabelValues("mqtt", "success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.publishTotal.WithLabelValues("mqtt", "error")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.subscribersGauge.WithLabelValues("sse")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.droppedTotal.WithLabelValues("websocket")), 0)
}
