package config

import (
	"os"
	"path/filepath"
	"strconv"
)

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func LoadConfig() (*Config, error) {
	dataDir := getenv("DATA_DIR", "./data")

	cfg := &Config{
		ListenAddr:          getenv("LISTEN_ADDR", "127.0.0.1:7598"),
		DataDir:             dataDir,
		MpvPath:             getenv("MPV_PATH", "mpv"),
		MpvSocket:           getenv("MPV_SOCKET", filepath.Join(dataDir, "mpv.sock")),
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		PlaylistLimit:       getenvInt("PLAYLIST_LIMIT", 50),
		FeedItemsPerChannel: getenvInt("FEED_ITEMS_PER_CHANNEL", 20),
	}

	_ = os.MkdirAll(cfg.DataDir, 0o755)
	return cfg, nil
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
