package natsbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/events"
)

func startServer(t *testing.T) (*EmbeddedServer, *Client) {
	t.Helper()

	srv, err := StartEmbedded("127.0.0.1", -1)
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	cfg := DefaultConfig()
	cfg.Servers = []string{srv.URL()}
	client, err := Connect(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	require.True(t, client.Healthy())
	return srv, client
}

func TestPublisherSubjects(t *testing.T) {
	t.Parallel()

	_, client := startServer(t)
	sub, err := client.Conn().SubscribeSync("captions.>")
	require.NoError(t, err)
	require.NoError(t, client.Conn().Flush())

	p := NewPublisher(client, Config{Subject: "captions", Partials: true}, nil)
	require.NoError(t, p.HandleCaption(events.Caption{SessionID: "s", Seq: 1, Text: "hel"}))
	require.NoError(t, p.HandleCaption(events.Caption{SessionID: "s", Seq: 2, Text: "hello", IsFinal: true}))
	require.NoError(t, p.HandleSessionEnd(events.SessionEnd{SessionID: "s", Reason: events.ReasonFailed, Err: errors.NewStd("mic unplugged")}))

	msg, err := sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "captions.partial", msg.Subject)

	msg, err = sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "captions.final", msg.Subject)
	var caption events.Caption
	require.NoError(t, json.Unmarshal(msg.Data, &caption))
	assert.Equal(t, "hello", caption.Text)
	assert.True(t, caption.IsFinal)

	msg, err = sub.NextMsg(2 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "captions.status", msg.Subject)
	var status map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &status))
	assert.Equal(t, "failed", status["reason"])
	assert.Equal(t, "mic unplugged", status["error"])
}

func TestPublisherSkipsPartialsByDefault(t *testing.T) {
	t.Parallel()

	_, client := startServer(t)
	sub, err := client.Conn().SubscribeSync("captions.partial")
	require.NoError(t, err)

	p := NewPublisher(client, DefaultConfig(), nil)
	require.NoError(t, p.HandleCaption(events.Caption{Text: "hel"}))
	require.NoError(t, client.Conn().Flush())

	_, err = sub.NextMsg(50 * time.Millisecond)
	assert.Error(t, err)
}

func TestConnectErrors(t *testing.T) {
	t.Parallel()

	_, err := Connect(Config{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = Connect(Config{Servers: []string{"nats://127.0.0.1:1"}, ConnectTimeout: 200 * time.Millisecond})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))

	var ee *errors.EnhancedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "nats", ee.GetContext()["endpoint_kind"])
	assert.Equal(t, 1, ee.GetContext()["servers"])
}
