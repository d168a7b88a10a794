package httpcontroller

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecaptions/livecaptions/internal/captions"
	"github.com/livecaptions/livecaptions/internal/datastore"
	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/events"
	"github.com/livecaptions/livecaptions/internal/logger"
	"github.com/livecaptions/livecaptions/internal/observability"
)

type fakeSession struct {
	mu       sync.Mutex
	running  bool
	starts   int
	stops    int
	startErr error
}

func (f *fakeSession) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	return nil
}

func (f *fakeSession) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.running = false
}

func (f *fakeSession) Status() captions.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := captions.Status{State: captions.Idle.String(), Device: "fake"}
	if f.running {
		st.State = captions.Running.String()
	}
	return st
}

type fakeHistory struct {
	records []datastore.CaptionRecord
	err     error
}

func (f *fakeHistory) Recent(_ context.Context, n int) ([]datastore.CaptionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[max(0, len(f.records)-n):], nil
}

func (f *fakeHistory) BySession(_ context.Context, id string) ([]datastore.CaptionRecord, error) {
	var out []datastore.CaptionRecord
	for _, r := range f.records {
		if r.SessionID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

type testServer struct {
	*Server
	session    *fakeSession
	transcript *captions.Transcript
	hub        *Hub
}

func newTestServer(t *testing.T, opts ...Option) *testServer {
	t.Helper()

	quiet := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
	session := &fakeSession{}
	transcript := captions.NewTranscript(10)
	hub := NewHub(8, nil)

	opts = append([]Option{WithLogger(quiet)}, opts...)
	s := New(Config{HeartbeatInterval: time.Hour}, session, transcript, hub, opts...)
	t.Cleanup(hub.Close)

	return &testServer{Server: s, session: session, transcript: transcript, hub: hub}
}

func (ts *testServer) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	ts.Echo.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) postJSON(t *testing.T, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.Echo.ServeHTTP(rec, req)
	return rec
}

type fakeSwitcher struct {
	mu        sync.Mutex
	languages []string
	err       error
}

func (f *fakeSwitcher) SwitchLanguage(_ context.Context, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.languages = append(f.languages, language)
	return f.err
}

func TestGetCaptionsSnapshot(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	ts.transcript.Apply("hello world", true)
	ts.transcript.Apply("how are", false)

	rec := ts.do(t, http.MethodGet, "/api/v1/captions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	var snap captions.TranscriptSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, []string{"hello world"}, snap.Lines)
	assert.Equal(t, "how are", snap.Pending)
}

func TestSessionControl(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/session/start")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"running"`)

	rec = ts.do(t, http.MethodGet, "/api/v1/session")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"running"`)

	rec = ts.do(t, http.MethodPost, "/api/v1/session/stop")
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"idle"`)

	assert.Equal(t, 1, ts.session.starts)
	assert.Equal(t, 1, ts.session.stops)
}

func TestStartSessionErrorStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		category errors.ErrorCategory
		want     int
	}{
		{"model load", errors.CategoryModelLoad, http.StatusServiceUnavailable},
		{"audio source", errors.CategoryAudioSource, http.StatusServiceUnavailable},
		{"validation", errors.CategoryValidation, http.StatusBadRequest},
		{"state", errors.CategoryState, http.StatusConflict},
		{"other", errors.CategorySystem, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ts := newTestServer(t)
			ts.session.startErr = errors.Newf("boom").Category(tt.category).Build()

			rec := ts.do(t, http.MethodPost, "/api/v1/session/start")
			require.Equal(t, tt.want, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Code)
			assert.Contains(t, body.Error, "boom")
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestSwitchLanguage(t *testing.T) {
	t.Parallel()

	switcher := &fakeSwitcher{}
	ts := newTestServer(t, WithLanguageSwitcher(switcher))

	rec := ts.postJSON(t, "/api/v1/session/language", `{"language":"Japanese"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var st captions.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "fake", st.Device)
	assert.Equal(t, []string{"Japanese"}, switcher.languages)

	rec = ts.postJSON(t, "/api/v1/session/language", `{"language":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.postJSON(t, "/api/v1/session/language", `{"language":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, switcher.languages, 1)

	switcher.err = errors.Newf("no speech model configured for Klingon").
		Category(errors.CategoryValidation).
		Build()
	rec = ts.postJSON(t, "/api/v1/session/language", `{"language":"Klingon"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "Klingon")

	switcher.err = errors.Newf("device gone").Category(errors.CategoryAudioSource).Build()
	rec = ts.postJSON(t, "/api/v1/session/language", `{"language":"German"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSwitchLanguageDisabled(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.postJSON(t, "/api/v1/session/language", `{"language":"German"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{records: []datastore.CaptionRecord{
		{ID: 1, SessionID: "a", Seq: 1, Text: "one"},
		{ID: 2, SessionID: "a", Seq: 2, Text: "two"},
		{ID: 3, SessionID: "b", Seq: 1, Text: "three"},
	}}
	ts := newTestServer(t, WithHistory(history))

	rec := ts.do(t, http.MethodGet, "/api/v1/history?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []datastore.CaptionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "two", got[0].Text)

	rec = ts.do(t, http.MethodGet, "/api/v1/history?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/history/a")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 2)

	rec = ts.do(t, http.MethodGet, "/api/v1/history/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryDisabled(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/history")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusAndMetrics(t *testing.T) {
	t.Parallel()

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	m.Outputs.SetSubscribers(TransportSSE, 0)

	ts := newTestServer(t, WithMetricsHandler(m.Handler()), WithStats(statsFunc(func() events.DispatcherStats {
		return events.DispatcherStats{Published: 3, Delivered: 3}
	})))

	rec := ts.do(t, http.MethodGet, "/api/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var status SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "idle", status.Session.State)
	require.NotNil(t, status.Dispatcher)
	assert.Equal(t, uint64(3), status.Dispatcher.Delivered)
	assert.Positive(t, status.Goroutines)

	rec = ts.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "output_subscribers")
}

type statsFunc func() events.DispatcherStats

func (f statsFunc) Stats() events.DispatcherStats { return f() }

func TestSSEStream(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	srv := httptest.NewServer(ts.Echo)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/captions/stream", http.NoBody)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")
	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, ts.hub.HandleCaption(events.Caption{SessionID: "s", Seq: 1, Text: "live text"}))

	reader := bufio.NewReader(resp.Body)
	var eventLine, dataLine string
	for dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	assert.Equal(t, "partial", eventLine)
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(dataLine), &msg))
	assert.Equal(t, "live text", msg.Caption.Text)

	cancel()
	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWebSocketStream(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	srv := httptest.NewServer(ts.Echo)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/captions/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	require.Eventually(t, func() bool { return ts.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, ts.hub.HandleCaption(events.Caption{SessionID: "s", Seq: 7, Text: "final text", IsFinal: true}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "final", msg.Type)
	assert.Equal(t, uint64(7), msg.Caption.Seq)

	ts.hub.Close()
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()

	quiet := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
	s := New(Config{Listen: "127.0.0.1:0"}, &fakeSession{}, captions.NewTranscript(1), NewHub(1, nil), WithLogger(quiet))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunWithConnectionLimit(t *testing.T) {
	t.Parallel()

	quiet := logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
	s := New(Config{Listen: "127.0.0.1:0", MaxConnections: 2}, &fakeSession{}, captions.NewTranscript(1), NewHub(1, nil), WithLogger(quiet))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Echo.ListenerAddr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + s.Echo.ListenerAddr().String() + "/api/v1/session")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
