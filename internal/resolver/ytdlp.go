package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	ytdlp "github.com/lrstanley/go-ytdlp"

	"github.com/sonroyaalmerol/tubeplay/internal/queue"
)

var installOnce sync.Once

// ytdlpInfo mirrors the subset of yt-dlp's -J output this resolver reads.
type ytdlpInfo struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Uploader    string        `json:"uploader"`
	Duration    float64       `json:"duration"`
	IsLive      bool          `json:"is_live"`
	WebpageURL  string        `json:"webpage_url"`
	ManifestURL string        `json:"manifest_url"`
	URL         string        `json:"url"`
	Thumbnail   string        `json:"thumbnail"`
	Formats     []ytdlpFormat `json:"formats"`
	Subtitles   map[string][]ytdlpSubtitle `json:"subtitles"`
	Entries     []ytdlpInfo   `json:"entries"`
}

type ytdlpFormat struct {
	URL    string  `json:"url"`
	Ext    string  `json:"ext"`
	Height int     `json:"height"`
	VCodec string  `json:"vcodec"`
	ACodec string  `json:"acodec"`
	ABR    float64 `json:"abr"`
}

type ytdlpSubtitle struct {
	URL  string `json:"url"`
	Ext  string `json:"ext"`
	Name string `json:"name"`
}

// YtdlpResolver resolves stream metadata by shelling out to yt-dlp.
type YtdlpResolver struct{}

func NewYtdlpResolver() *YtdlpResolver { return &YtdlpResolver{} }

func ensureInstalled(ctx context.Context) {
	installOnce.Do(func() {
		ytdlp.MustInstall(ctx, nil)
	})
}

func runDumpJSON(ctx context.Context, url string, flat bool, limit int) (*ytdlpInfo, error) {
	ensureInstalled(ctx)

	cmd := ytdlp.New().
		NoCheckCertificates().
		DumpJSON()
	if flat {
		cmd = cmd.FlatPlaylist()
	}
	if limit > 0 {
		cmd = cmd.PlaylistEnd(limit)
	}

	res, err := cmd.Run(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("yt-dlp run: %w", err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(res.Stdout), &info); err != nil {
		return nil, fmt.Errorf("parse yt-dlp json: %w", err)
	}
	return &info, nil
}

func (r *YtdlpResolver) Resolve(ctx context.Context, url string) (*StreamInfo, error) {
	raw, err := runDumpJSON(ctx, url, false, 0)
	if err != nil {
		return nil, err
	}
	if len(raw.Entries) > 0 {
		raw = &raw.Entries[0]
	}

	info := &StreamInfo{
		URL:        firstNonEmpty(raw.WebpageURL, url),
		ID:         raw.ID,
		Title:      raw.Title,
		Uploader:   raw.Uploader,
		DurationMs: int64(raw.Duration * 1000),
		Thumbnail:  raw.Thumbnail,
		HlsURL:     raw.ManifestURL,
	}

	for _, f := range raw.Formats {
		hasVideo := f.VCodec != "" && f.VCodec != "none"
		hasAudio := f.ACodec != "" && f.ACodec != "none"
		switch {
		case hasVideo && f.Height > 0:
			info.VideoStreams = append(info.VideoStreams, VideoStream{
				URL:        f.URL,
				Resolution: fmt.Sprintf("%dp", f.Height),
				Height:     f.Height,
				Format:     f.Ext,
				VideoOnly:  !hasAudio,
			})
		case hasAudio:
			info.AudioStreams = append(info.AudioStreams, AudioStream{
				URL:     f.URL,
				Format:  f.Ext,
				Bitrate: int(f.ABR),
			})
		}
	}

	for lang, tracks := range raw.Subtitles {
		for _, t := range tracks {
			if t.URL == "" {
				continue
			}
			name := t.Name
			if name == "" {
				name = lang
			}
			info.Subtitles = append(info.Subtitles, SubtitleTrack{
				Language: name,
				URL:      t.URL,
				Format:   t.Ext,
			})
			break // one track per language is enough for the caption menu
		}
	}

	info.StreamType = classify(raw.IsLive, len(info.VideoStreams) > 0)
	if info.StreamType == queue.StreamTypeVideo && len(info.VideoStreams) == 0 &&
		len(info.AudioStreams) == 0 && info.HlsURL == "" {
		return nil, ErrNoStreams
	}
	return info, nil
}

func classify(live, hasVideo bool) queue.StreamType {
	switch {
	case live && hasVideo:
		return queue.StreamTypeLive
	case live:
		return queue.StreamTypeAudioLive
	case hasVideo:
		return queue.StreamTypeVideo
	default:
		return queue.StreamTypeAudio
	}
}

// Playlist expands a playlist or channel URL into entries without resolving
// each one. A plain video URL yields a single entry.
func (r *YtdlpResolver) Playlist(ctx context.Context, url string, limit int) ([]Entry, error) {
	raw, err := runDumpJSON(ctx, url, true, limit)
	if err != nil {
		return nil, err
	}
	return playlistEntries(raw, url)
}

// playlistEntries converts a -J dump into entries. A non-playlist dump has
// no entries array; its top-level object is the sole entry.
func playlistEntries(raw *ytdlpInfo, url string) ([]Entry, error) {
	src := raw.Entries
	if len(src) == 0 {
		if raw.ID == "" && raw.WebpageURL == "" {
			return nil, fmt.Errorf("no playable entries for %s", url)
		}
		single := *raw
		if single.WebpageURL == "" {
			single.WebpageURL = url
		}
		src = []ytdlpInfo{single}
	}
	out := make([]Entry, 0, len(src))
	for _, e := range src {
		u := firstNonEmpty(e.WebpageURL, e.URL)
		if u == "" && e.ID != "" {
			u = "https://www.youtube.com/watch?v=" + e.ID
		}
		if u == "" {
			continue
		}
		out = append(out, Entry{
			URL:        u,
			ID:         e.ID,
			Title:      e.Title,
			Uploader:   e.Uploader,
			DurationMs: int64(e.Duration * 1000),
			Live:       e.IsLive,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no playable entries for %s", url)
	}
	return out, nil
}

// Related finds items to auto-queue after info. yt-dlp has no related-videos
// endpoint, so the radio mix playlist seeded by the current video stands in
// for it.
func (r *YtdlpResolver) Related(ctx context.Context, info *StreamInfo, limit int) ([]Entry, error) {
	if info == nil || info.ID == "" {
		return nil, fmt.Errorf("no seed for related lookup")
	}
	mixURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s&list=RD%s", info.ID, info.ID)
	entries, err := r.Playlist(ctx, mixURL, limit+1)
	if err != nil {
		return nil, err
	}
	out := entries[:0]
	for _, e := range entries {
		if e.ID == info.ID || strings.EqualFold(e.URL, info.URL) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
