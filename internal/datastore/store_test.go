package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/events"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(Config{Type: TypeSQLite, Path: filepath.Join(t.TempDir(), "captions.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveAndQuery(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, text := range []string{"first line", "second line", "third line"} {
		require.NoError(t, store.Save(ctx, &CaptionRecord{
			SessionID: "s1",
			Seq:       uint64(i + 1),
			Language:  "English",
			Text:      text,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.Save(ctx, &CaptionRecord{
		SessionID: "s2",
		Seq:       1,
		Language:  "German",
		Text:      "hallo",
		CreatedAt: base.Add(time.Minute),
	}))

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "third line", recent[0].Text)
	assert.Equal(t, "hallo", recent[1].Text)

	session, err := store.BySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, session, 3)
	for i, rec := range session {
		assert.Equal(t, uint64(i+1), rec.Seq)
	}

	none, err := store.BySession(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecentRejectsNonPositiveLimit(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	_, err := store.Recent(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestRecorderStoresFinalsOnly(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	rec := NewRecorder(store)
	assert.Equal(t, "datastore", rec.Name())

	now := time.Now()
	require.NoError(t, rec.HandleCaption(events.Caption{SessionID: "s1", Seq: 1, Text: "hel", Time: now}))
	require.NoError(t, rec.HandleCaption(events.Caption{SessionID: "s1", Seq: 2, Text: "hello world", IsFinal: true, Language: "English", Time: now}))

	got, err := store.BySession(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello world", got[0].Text)
	assert.Equal(t, uint64(2), got[0].Seq)
	assert.Equal(t, "English", got[0].Language)
}

func TestOpenConfigErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"sqlite without path", Config{Type: TypeSQLite}},
		{"mysql without dsn", Config{Type: TypeMySQL}},
		{"mysql bad dsn", Config{Type: TypeMySQL, DSN: "user:pw@tcp(host"}},
		{"unknown type", Config{Type: "postgres", DSN: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Open(tt.cfg)
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
		})
	}
}

func TestMySQLDSNHandling(t *testing.T) {
	t.Parallel()

	dsn, err := normalizeMySQLDSN("captions:secret@tcp(db:3306)/captions")
	require.NoError(t, err)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	redacted := RedactDSN("captions:secret@tcp(db:3306)/captions")
	assert.NotContains(t, redacted, "secret")
	assert.Contains(t, redacted, "db:3306")

	assert.Equal(t, "[REDACTED DSN]", RedactDSN("user:pw@tcp(host"))
}
