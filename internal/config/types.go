package config

type Config struct {
	ListenAddr          string
	DataDir             string
	MpvPath             string
	MpvSocket           string
	SpotifyClientID     string
	SpotifyClientSecret string
	PlaylistLimit       int
	FeedItemsPerChannel int
}
