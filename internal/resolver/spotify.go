package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

// SpotifyExpander turns Spotify links into queue entries by mapping each
// track to a search query the yt-dlp resolver can play.
type SpotifyExpander struct {
	raw *spotify.Client
}

func NewSpotifyExpander(clientID, clientSecret string) (*SpotifyExpander, error) {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cfg.Client(context.Background())
	cl := spotify.New(httpClient, spotify.WithRetry(true))
	return &SpotifyExpander{raw: cl}, nil
}

// IsSpotifyURL reports whether raw points at Spotify, either as an
// open.spotify.com link or a spotify: URI.
func IsSpotifyURL(raw string) bool {
	if strings.HasPrefix(raw, "spotify:") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host == "open.spotify.com" || u.Host == "www.open.spotify.com"
}

func parseSpotifyID(raw string) (typ string, id spotify.ID, err error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) == 3 {
			return parts[1], spotify.ID(parts[2]), nil
		}
		return "", "", fmt.Errorf("invalid spotify URI")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return "", "", fmt.Errorf("invalid spotify URL path")
	}
	switch parts[0] {
	case "album", "playlist", "track":
		return parts[0], spotify.ID(parts[1]), nil
	}
	return "", "", fmt.Errorf("unsupported spotify type %q", parts[0])
}

// Expand resolves a Spotify track, album or playlist URL to entries whose
// URLs are yt-dlp search queries.
func (s *SpotifyExpander) Expand(ctx context.Context, raw string, limit int) ([]Entry, error) {
	typ, id, err := parseSpotifyID(raw)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "track":
		t, err := s.raw.GetTrack(ctx, id)
		if err != nil {
			return nil, err
		}
		return []Entry{searchEntry(t.Name, firstArtist(t.Artists))}, nil
	case "album":
		page, err := s.raw.GetAlbumTracks(ctx, id)
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, page.Total)
		for {
			for _, t := range page.Tracks {
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
				out = append(out, searchEntry(t.Name, firstArtist(t.Artists)))
			}
			if page.Next == "" {
				break
			}
			if err := s.raw.NextPage(ctx, page); err != nil {
				break
			}
		}
		return out, nil
	case "playlist":
		page, err := s.raw.GetPlaylistItems(ctx, id)
		if err != nil {
			return nil, err
		}
		out := make([]Entry, 0, page.Total)
		for {
			for _, it := range page.Items {
				if it.Track.Track == nil {
					continue
				}
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
				t := it.Track.Track
				out = append(out, searchEntry(t.Name, firstArtist(t.Artists)))
			}
			if page.Next == "" {
				break
			}
			if err := s.raw.NextPage(ctx, page); err != nil {
				break
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported spotify type %q", typ)
}

func searchEntry(name, artist string) Entry {
	title := name
	if artist != "" {
		title = name + " - " + artist
	}
	query := strings.TrimSpace(name + " " + artist)
	return Entry{
		URL:      "ytsearch1:" + query,
		Title:    title,
		Uploader: artist,
	}
}

func firstArtist(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}
