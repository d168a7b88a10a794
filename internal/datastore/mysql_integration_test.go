//go:build integration

package datastore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

func TestMySQLStoreIntegration(t *testing.T) {
	ctx := context.Background()

	container, err := tcmysql.Run(ctx, "mysql:8.4",
		tcmysql.WithDatabase("captions"),
		tcmysql.WithUsername("captions"),
		tcmysql.WithPassword("captions"),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	store, err := Open(Config{Type: TypeMySQL, DSN: dsn})
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.Save(ctx, &CaptionRecord{SessionID: "s1", Seq: 1, Text: "one", CreatedAt: now}))
	require.NoError(t, store.Save(ctx, &CaptionRecord{SessionID: "s1", Seq: 2, Text: "two", CreatedAt: now.Add(time.Second)}))

	recent, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "one", recent[0].Text)
	assert.Equal(t, "two", recent[1].Text)
}
