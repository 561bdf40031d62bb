package resolver

import (
	"context"
	"errors"

	"github.com/sonroyaalmerol/tubeplay/internal/queue"
)

// ErrNoStreams is returned when a stream resolves but offers no playable
// candidate at all.
var ErrNoStreams = errors.New("resolver: no playable streams")

// VideoStream is one video rendition of a stream.
type VideoStream struct {
	URL        string
	Resolution string // e.g. "720p"
	Height     int
	Format     string // container/codec short name, e.g. "mp4"
	VideoOnly  bool
}

// AudioStream is one audio-only rendition.
type AudioStream struct {
	URL     string
	Format  string
	Bitrate int
}

// SubtitleTrack is a downloadable caption track.
type SubtitleTrack struct {
	Language string
	URL      string
	Format   string
}

// StreamInfo is the full metadata snapshot for one stream, the resolver-side
// counterpart of a queue item.
type StreamInfo struct {
	URL        string
	ID         string
	Title      string
	Uploader   string
	DurationMs int64
	StreamType queue.StreamType
	Thumbnail  string

	VideoStreams []VideoStream
	AudioStreams []AudioStream
	HlsURL       string
	Subtitles    []SubtitleTrack
}

// Entry is lightweight metadata for queue construction, as produced by
// playlist and related-items lookups.
type Entry struct {
	URL        string
	ID         string
	Title      string
	Uploader   string
	DurationMs int64
	Live       bool
}

// Item converts an entry into a play queue item.
func (e Entry) Item() *queue.Item {
	st := queue.StreamTypeVideo
	if e.Live {
		st = queue.StreamTypeLive
	}
	return queue.NewItem(e.URL, "youtube", e.Title, e.Uploader, e.DurationMs, st, "")
}

// Resolver is the content-resolution collaborator: it turns queue items into
// playable stream metadata and supplies playlist/related expansion.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*StreamInfo, error)
	Playlist(ctx context.Context, url string, limit int) ([]Entry, error)
	Related(ctx context.Context, info *StreamInfo, limit int) ([]Entry, error)
}
