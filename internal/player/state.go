package player

// State is the playback state machine value. There is no error state:
// backend errors surface as transient messages and leave the state as last
// known.
type State int

const (
	StatePreflight State = iota
	StateBlocked
	StatePlaying
	StateBuffering
	StatePaused
	StatePausedSeek
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StatePreflight:
		return "preflight"
	case StateBlocked:
		return "blocked"
	case StatePlaying:
		return "playing"
	case StateBuffering:
		return "buffering"
	case StatePaused:
		return "paused"
	case StatePausedSeek:
		return "paused_seek"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// progressing reports whether the 500ms progress loop should run in this
// state.
func (s State) progressing() bool {
	return s == StatePlaying || s == StateBuffering || s == StatePausedSeek
}
