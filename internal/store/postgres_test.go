package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tm "github.com/PratikDhanave/tagbridge/internal/tagmanager"
)

// testStore connects to TEST_DB_URL, skipping when it is unset.
func testStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DB_URL")
	if url == "" {
		t.Skip("TEST_DB_URL not set")
	}
	ctx := context.Background()
	st, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	require.NoError(t, st.EnsureSchema(ctx))
	return st
}

func TestPostgresStore_ContainerCache(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	id := "GTM-T" + uuid.NewString()[:8]

	_, err := st.LoadContainer(ctx, id)
	assert.ErrorIs(t, err, tm.ErrContainerNotFound)

	fetched := time.Now().UTC().Truncate(time.Millisecond)
	c := &tm.Container{
		ID:        id,
		Version:   "3",
		Tags:      []tm.Tag{{Name: "pv", Triggers: []string{"openScreen"}}},
		FetchedAt: fetched,
	}
	require.NoError(t, st.SaveContainer(ctx, c))

	got, err := st.LoadContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "3", got.Version)
	assert.Equal(t, c.Tags, got.Tags)
	assert.WithinDuration(t, fetched, got.FetchedAt, time.Millisecond)

	c.Version = "4"
	require.NoError(t, st.SaveContainer(ctx, c))
	got, err = st.LoadContainer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "4", got.Version)
}

func TestPostgresStore_InsertHitsIdempotent(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	app := "app-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	hits := []tm.Hit{
		{ID: uuid.NewString(), Tag: "pv", Event: "openScreen", ContainerID: "GTM-X", ContainerVersion: "1", Timestamp: now},
		{ID: uuid.NewString(), Tag: "pv", Event: "openScreen", ContainerID: "GTM-X", ContainerVersion: "1", Timestamp: now,
			Payload: tm.MapOf("content-name", "/home")},
	}

	n, err := st.InsertHits(ctx, app, hits)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = st.InsertHits(ctx, app, hits)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := st.CountHits(ctx, app, "openScreen", now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	// to is exclusive.
	count, err = st.CountHits(ctx, app, "openScreen", now.Add(-time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
