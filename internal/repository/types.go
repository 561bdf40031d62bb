package repository

import (
	"database/sql"
	"time"
)

type Repo struct {
	db *sql.DB
}

// Settings are the daemon-wide playback preferences read by the player.
type Settings struct {
	ID                int64
	WatchHistory      bool
	PlaybackResume    bool
	AutoQueue         bool
	SeekDurationMs    int64
	PreferredCaption  string
	DefaultResolution string
}

// StreamState is the persisted resume offset for one stream, keyed by URL.
type StreamState struct {
	URL        string
	ProgressMs int64
	UpdatedAt  time.Time
}

// HistoryEntry records that a stream was viewed, with an access counter the
// way watch history keeps one row per stream.
type HistoryEntry struct {
	ID          int64
	URL         string
	Title       string
	Uploader    string
	AccessCount int64
	LastAccess  time.Time
}

// Subscription is a followed channel whose uploads land in the feed.
type Subscription struct {
	ID   int64
	URL  string
	Name string
}

// FeedItem is one aggregated upload from a subscribed channel.
type FeedItem struct {
	ID             int64
	SubscriptionID int64
	URL            string
	Title          string
	Uploader       string
	DurationMs     int64
	FetchedAt      time.Time
}
