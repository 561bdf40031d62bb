package mpv

// command is a single JSON IPC frame sent to mpv.
type command struct {
	Command   []any `json:"command"`
	RequestID int   `json:"request_id,omitempty"`
}

// response covers both command replies and asynchronous events; mpv
// multiplexes them on one socket.
type response struct {
	Error     string `json:"error"`
	Data      any    `json:"data"`
	RequestID int    `json:"request_id"`
	Event     string `json:"event"`
	ID        int    `json:"id"`     // observe_property id
	Name      string `json:"name"`   // property name
	Reason    string `json:"reason"` // end-file reason
}

// EventKind is the backend event taxonomy the player consumes.
type EventKind int

const (
	EventOpening EventKind = iota
	EventPlaying
	EventPaused
	EventEndReached
	EventBuffering
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventOpening:
		return "opening"
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventEndReached:
		return "end_reached"
	case EventBuffering:
		return "buffering"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is one backend playback event.
type Event struct {
	Kind          EventKind
	BufferPercent int
	Message       string
}

// LoadOptions configure a single loadfile call.
type LoadOptions struct {
	StartMs     int64
	StartPaused bool
	SubtitleURL string
	Rate        float64
	Volume      int
}
