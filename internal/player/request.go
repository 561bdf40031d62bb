package player

import (
	"github.com/sonroyaalmerol/tubeplay/internal/queue"
	"github.com/sonroyaalmerol/tubeplay/internal/resolver"
)

// PlaybackParameters is the speed/pitch/skip-silence triple. It is replaced
// wholesale on change, never mutated in place.
type PlaybackParameters struct {
	Speed       float64 `json:"speed"`
	Pitch       float64 `json:"pitch"`
	SkipSilence bool    `json:"skip_silence"`
}

func DefaultParameters() PlaybackParameters {
	return PlaybackParameters{Speed: 1, Pitch: 1}
}

// PlayRequest carries everything a play command can specify. Zero values
// mean "keep the player's current setting" for parameters and "replace the
// queue" for the item list.
type PlayRequest struct {
	Items []*queue.Item

	RepeatMode      *queue.RepeatMode
	PlaybackSpeed   *float64
	PlaybackPitch   *float64
	SkipSilence     *bool
	PlaybackQuality string

	AppendOnly     bool
	SelectOnAppend bool
	ResumePlayback bool
	StartPaused    bool
	IsMuted        *bool
}

// Message is a transient user-visible notice. Recoverable messages never
// displace one already showing; unrecoverable ones replace it.
type Message struct {
	Text        string `json:"text"`
	Recoverable bool   `json:"recoverable"`
}

// Callbacks is the single bundle of player event hooks handed in at
// construction. Any field may be nil.
type Callbacks struct {
	OnStateChange func(State)
	OnProgress    func(positionMs, durationMs int64, bufferPercent int)
	OnQueueChange func()
	OnMetadata    func(info *resolver.StreamInfo)
	OnMessage     func(Message)
}

// SourceTag is the immutable metadata snapshot bound to the current playback
// session: resolved stream info plus the candidate qualities and the
// selected index. Replaced wholesale on item change.
type SourceTag struct {
	Info            *resolver.StreamInfo
	Qualities       []resolver.VideoStream
	SelectedQuality int
}
