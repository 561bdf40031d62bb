package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sonroyaalmerol/tubeplay/internal/player"
	"github.com/sonroyaalmerol/tubeplay/internal/queue"
	"github.com/sonroyaalmerol/tubeplay/internal/repository"
	"github.com/sonroyaalmerol/tubeplay/internal/resolver"
)

type playRequestBody struct {
	URLs []string `json:"urls"`

	RepeatMode      *string  `json:"repeat_mode,omitempty"`
	PlaybackSpeed   *float64 `json:"playback_speed,omitempty"`
	PlaybackPitch   *float64 `json:"playback_pitch,omitempty"`
	SkipSilence     *bool    `json:"skip_silence,omitempty"`
	PlaybackQuality string   `json:"playback_quality,omitempty"`

	AppendOnly     bool  `json:"append_only,omitempty"`
	SelectOnAppend bool  `json:"select_on_append,omitempty"`
	ResumePlayback bool  `json:"resume_playback,omitempty"`
	StartPaused    bool  `json:"start_paused,omitempty"`
	IsMuted        *bool `json:"is_muted,omitempty"`
}

func parseRepeatMode(s string) (queue.RepeatMode, bool) {
	switch s {
	case "off":
		return queue.RepeatOff, true
	case "one":
		return queue.RepeatOne, true
	case "all":
		return queue.RepeatAll, true
	}
	return 0, false
}

// expand turns each request URL into queue items: Spotify links go through
// the expander, everything else through yt-dlp playlist expansion (a single
// video yields a single entry).
func (s *Server) expand(ctx context.Context, urls []string) ([]*queue.Item, error) {
	var items []*queue.Item
	for _, u := range urls {
		var entries []resolver.Entry
		var err error
		if s.spotify != nil && resolver.IsSpotifyURL(u) {
			entries, err = s.spotify.Expand(ctx, u, s.cfg.PlaylistLimit)
		} else {
			entries, err = s.res.Playlist(ctx, u, s.cfg.PlaylistLimit)
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			items = append(items, e.Item())
		}
	}
	return items, nil
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	var body playRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.URLs) == 0 {
		writeError(w, http.StatusBadRequest, "urls is required")
		return
	}

	items, err := s.expand(r.Context(), body.URLs)
	if err != nil {
		writeError(w, http.StatusBadGateway, "expansion failed: "+err.Error())
		return
	}
	if len(items) == 0 {
		writeError(w, http.StatusNotFound, "nothing playable behind the given urls")
		return
	}

	req := player.PlayRequest{
		Items:           items,
		PlaybackSpeed:   body.PlaybackSpeed,
		PlaybackPitch:   body.PlaybackPitch,
		SkipSilence:     body.SkipSilence,
		PlaybackQuality: body.PlaybackQuality,
		AppendOnly:      body.AppendOnly,
		SelectOnAppend:  body.SelectOnAppend,
		ResumePlayback:  body.ResumePlayback,
		StartPaused:     body.StartPaused,
		IsMuted:         body.IsMuted,
	}
	if body.RepeatMode != nil {
		mode, ok := parseRepeatMode(*body.RepeatMode)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown repeat mode")
			return
		}
		req.RepeatMode = &mode
	}

	if err := s.player.HandleRequest(r.Context(), req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"queued": len(items)})
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PositionMs int64 `json:"position_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PositionMs < 0 {
		writeError(w, http.StatusBadRequest, "position_ms is required")
		return
	}
	if err := s.player.Seek(body.PositionMs); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleCycleRepeat(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"repeat_mode": s.player.CycleRepeat().String()})
}

func (s *Server) handleToggleShuffle(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"shuffled": s.player.ToggleShuffle()})
}

func (s *Server) handleCycleResize(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"resize_mode": s.player.CycleResizeMode().String()})
}

func (s *Server) handleParameters(w http.ResponseWriter, r *http.Request) {
	var body player.PlaybackParameters
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Speed <= 0 || body.Pitch <= 0 {
		writeError(w, http.StatusBadRequest, "speed and pitch must be positive")
		return
	}
	if err := s.player.SetParameters(body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.player.SelectQuality(body.Index); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.player.Status())
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	cw := queryInt(r, "w", 1280)
	ch := queryInt(r, "h", 720)
	g, err := s.player.Layout(float64(cw), float64(ch))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.player.Queue())
}

func (s *Server) handleQueueSelect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Index < 0 {
		writeError(w, http.StatusBadRequest, "index is required")
		return
	}
	s.player.SelectIndex(body.Index)
	writeJSON(w, http.StatusOK, s.player.Queue())
}

func (s *Server) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Index int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Index < 0 {
		writeError(w, http.StatusBadRequest, "index is required")
		return
	}
	s.player.RemoveIndex(body.Index)
	writeJSON(w, http.StatusOK, s.player.Queue())
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	items, err := s.feed.Items(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleFeedRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.feed.Refresh(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubscriptions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleAddSubscription(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	id, err := s.store.AddSubscription(r.Context(), body.URL, body.Name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handleRemoveSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid subscription id")
		return
	}
	n, err := s.store.RemoveSubscription(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "no such subscription")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListHistory(r.Context(), queryInt(r, "limit", 100))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type settingsBody struct {
	WatchHistory      bool   `json:"watch_history"`
	PlaybackResume    bool   `json:"playback_resume"`
	AutoQueue         bool   `json:"auto_queue"`
	SeekDurationMs    int64  `json:"seek_duration_ms"`
	PreferredCaption  string `json:"preferred_caption"`
	DefaultResolution string `json:"default_resolution"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	set, err := s.store.GetSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settingsBody{
		WatchHistory:      set.WatchHistory,
		PlaybackResume:    set.PlaybackResume,
		AutoQueue:         set.AutoQueue,
		SeekDurationMs:    set.SeekDurationMs,
		PreferredCaption:  set.PreferredCaption,
		DefaultResolution: set.DefaultResolution,
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var body settingsBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	set := &repository.Settings{
		WatchHistory:      body.WatchHistory,
		PlaybackResume:    body.PlaybackResume,
		AutoQueue:         body.AutoQueue,
		SeekDurationMs:    body.SeekDurationMs,
		PreferredCaption:  body.PreferredCaption,
		DefaultResolution: body.DefaultResolution,
	}
	if err := s.store.UpdateSettings(r.Context(), set); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, body)
}
