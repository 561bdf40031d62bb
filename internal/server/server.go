package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sonroyaalmerol/tubeplay/internal/config"
	"github.com/sonroyaalmerol/tubeplay/internal/player"
	"github.com/sonroyaalmerol/tubeplay/internal/queue"
	"github.com/sonroyaalmerol/tubeplay/internal/repository"
	"github.com/sonroyaalmerol/tubeplay/internal/resolver"
)

// PlayerControl is the player surface the API drives. *player.Player
// satisfies it.
type PlayerControl interface {
	HandleRequest(ctx context.Context, req player.PlayRequest) error
	Pause() error
	Resume() error
	PlayPause() error
	PlayNext()
	PlayPrevious()
	SelectIndex(i int)
	RemoveIndex(i int)
	Seek(positionMs int64) error
	FastForward() error
	Rewind() error
	ToggleMute()
	CycleRepeat() queue.RepeatMode
	ToggleShuffle() bool
	CycleResizeMode() player.ResizeMode
	SetParameters(p player.PlaybackParameters) error
	SelectQuality(i int) error
	Queue() queue.Snapshot
	Status() player.Status
	Layout(containerW, containerH float64) (player.Geometry, error)
}

// Store is the repository surface the API reads and writes directly.
type Store interface {
	ListHistory(ctx context.Context, limit int) ([]repository.HistoryEntry, error)
	AddSubscription(ctx context.Context, url, name string) (int64, error)
	RemoveSubscription(ctx context.Context, id int64) (int64, error)
	ListSubscriptions(ctx context.Context) ([]repository.Subscription, error)
	GetSettings(ctx context.Context) (*repository.Settings, error)
	UpdateSettings(ctx context.Context, s *repository.Settings) error
}

// Feed is the subscription feed surface.
type Feed interface {
	Refresh(ctx context.Context) error
	Items(ctx context.Context, limit int) ([]repository.FeedItem, error)
}

// Expander turns Spotify links into playable entries.
type Expander interface {
	Expand(ctx context.Context, url string, limit int) ([]resolver.Entry, error)
}

type Server struct {
	cfg     *config.Config
	player  PlayerControl
	store   Store
	res     resolver.Resolver
	spotify Expander
	feed    Feed
}

func New(cfg *config.Config, pc PlayerControl, store Store, res resolver.Resolver, spotify Expander, feed Feed) *Server {
	return &Server{cfg: cfg, player: pc, store: store, res: res, spotify: spotify, feed: feed}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/player", func(r chi.Router) {
		r.Post("/play", s.handlePlay)
		r.Post("/pause", s.action(s.player.Pause))
		r.Post("/resume", s.action(s.player.Resume))
		r.Post("/toggle", s.action(s.player.PlayPause))
		r.Post("/next", s.action(func() error { s.player.PlayNext(); return nil }))
		r.Post("/previous", s.action(func() error { s.player.PlayPrevious(); return nil }))
		r.Post("/seek", s.handleSeek)
		r.Post("/fast-forward", s.action(s.player.FastForward))
		r.Post("/rewind", s.action(s.player.Rewind))
		r.Post("/mute", s.action(func() error { s.player.ToggleMute(); return nil }))
		r.Post("/cycle-repeat", s.handleCycleRepeat)
		r.Post("/toggle-shuffle", s.handleToggleShuffle)
		r.Post("/cycle-resize", s.handleCycleResize)
		r.Post("/parameters", s.handleParameters)
		r.Post("/quality", s.handleQuality)
		r.Get("/status", s.handleStatus)
		r.Get("/layout", s.handleLayout)
	})

	r.Get("/queue", s.handleQueue)
	r.Post("/queue/select", s.handleQueueSelect)
	r.Post("/queue/remove", s.handleQueueRemove)

	r.Get("/feed", s.handleFeed)
	r.Post("/feed/refresh", s.handleFeedRefresh)

	r.Get("/subscriptions", s.handleListSubscriptions)
	r.Post("/subscriptions", s.handleAddSubscription)
	r.Delete("/subscriptions/{id}", s.handleRemoveSubscription)

	r.Get("/history", s.handleHistory)

	r.Get("/settings", s.handleGetSettings)
	r.Put("/settings", s.handlePutSettings)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) action(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
