package repository

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepo(t *testing.T) *Repo {
	t.Helper()
	db, err := sql.Open("sqlite3", "file:"+t.TempDir()+"/test.db?_busy_timeout=5000&_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, runMigrations(db))
	return NewRepo(db)
}

func TestSettingsUpsertAndUpdate(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	s, err := r.UpsertSettings(ctx)
	require.NoError(t, err)
	assert.True(t, s.WatchHistory)
	assert.True(t, s.PlaybackResume)
	assert.False(t, s.AutoQueue)
	assert.Equal(t, int64(10_000), s.SeekDurationMs)

	s.AutoQueue = true
	s.DefaultResolution = "1080p"
	require.NoError(t, r.UpdateSettings(ctx, s))

	got, err := r.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, got.AutoQueue)
	assert.Equal(t, "1080p", got.DefaultResolution)
}

func TestStreamStateRoundTrip(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	const url = "https://example.org/watch?v=abc"

	_, err := r.LoadStreamState(ctx, url)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, r.SaveStreamState(ctx, url, 123_456))
	st, err := r.LoadStreamState(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, int64(123_456), st.ProgressMs)

	require.NoError(t, r.ResetStreamState(ctx, url))
	st, err = r.LoadStreamState(ctx, url)
	require.NoError(t, err)
	assert.Zero(t, st.ProgressMs)
}

func TestRecordViewBumpsAccessCount(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()
	const url = "https://example.org/watch?v=abc"

	require.NoError(t, r.RecordView(ctx, url, "a title", "someone"))
	require.NoError(t, r.RecordView(ctx, url, "a title", "someone"))

	hist, err := r.ListHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, int64(2), hist[0].AccessCount)
}

func TestSubscriptionsAndFeed(t *testing.T) {
	r := testRepo(t)
	ctx := context.Background()

	id, err := r.AddSubscription(ctx, "https://example.org/channel/x", "channel x")
	require.NoError(t, err)

	items := []FeedItem{
		{URL: "https://example.org/watch?v=1", Title: "one"},
		{URL: "https://example.org/watch?v=2", Title: "two"},
	}
	require.NoError(t, r.ReplaceFeedItems(ctx, id, items))

	got, err := r.ListFeedItems(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// replace drops stale entries
	require.NoError(t, r.ReplaceFeedItems(ctx, id, items[:1]))
	got, err = r.ListFeedItems(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// cascade on unsubscribe
	n, err := r.RemoveSubscription(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	got, err = r.ListFeedItems(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}
