package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sonroyaalmerol/tubeplay/internal/config"
	"github.com/sonroyaalmerol/tubeplay/internal/feed"
	"github.com/sonroyaalmerol/tubeplay/internal/mpv"
	"github.com/sonroyaalmerol/tubeplay/internal/player"
	"github.com/sonroyaalmerol/tubeplay/internal/repository"
	"github.com/sonroyaalmerol/tubeplay/internal/resolver"
	"github.com/sonroyaalmerol/tubeplay/internal/server"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	db, err := repository.OpenDB(cfg)
	if err != nil {
		log.Fatal(err)
	}
	repo := repository.NewRepo(db)
	if _, err := repo.UpsertSettings(context.Background()); err != nil {
		log.Fatal(err)
	}

	res := resolver.NewYtdlpResolver()

	var spotify server.Expander
	if cfg.SpotifyClientID != "" && cfg.SpotifyClientSecret != "" {
		exp, err := resolver.NewSpotifyExpander(cfg.SpotifyClientID, cfg.SpotifyClientSecret)
		if err != nil {
			log.Fatal(err)
		}
		spotify = exp
	}

	backend, err := mpv.New(cfg.MpvPath, cfg.MpvSocket)
	if err != nil {
		log.Fatal(err)
	}

	pl := player.New(repo, res, backend, player.Callbacks{
		OnStateChange: func(s player.State) {
			slog.Info("player state", "state", s.String())
		},
		OnMessage: func(m player.Message) {
			slog.Info("player message", "text", m.Text, "recoverable", m.Recoverable)
		},
	})

	agg := feed.New(repo, res, cfg.FeedItemsPerChannel)
	srv := server.New(cfg, pl, repo, res, spotify, agg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}
	go func() {
		slog.Info("listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	if err := pl.Close(); err != nil {
		slog.Warn("player close failed", "error", err)
	}
	_ = db.Close()
}
