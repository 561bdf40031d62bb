package queue

// StreamType classifies what the backend will be asked to render for an item.
type StreamType int

const (
	StreamTypeVideo StreamType = iota
	StreamTypeAudio
	StreamTypeLive
	StreamTypeAudioLive
)

func (t StreamType) IsLive() bool {
	return t == StreamTypeLive || t == StreamTypeAudioLive
}

func (t StreamType) String() string {
	switch t {
	case StreamTypeVideo:
		return "video"
	case StreamTypeAudio:
		return "audio"
	case StreamTypeLive:
		return "live"
	case StreamTypeAudioLive:
		return "audio_live"
	}
	return "unknown"
}

// RecoveryUnset marks an item with no stored resume offset.
const RecoveryUnset int64 = -1

// Item is a reference to remote media plus whatever metadata was known when
// it entered the queue. The recovery position is the only field mutated after
// construction.
type Item struct {
	URL        string
	ServiceID  string
	Title      string
	Uploader   string
	DurationMs int64
	StreamType StreamType
	Thumbnail  string

	recoveryPosition int64
}

func NewItem(url, serviceID, title, uploader string, durationMs int64, streamType StreamType, thumbnail string) *Item {
	return &Item{
		URL:              url,
		ServiceID:        serviceID,
		Title:            title,
		Uploader:         uploader,
		DurationMs:       durationMs,
		StreamType:       streamType,
		Thumbnail:        thumbnail,
		recoveryPosition: RecoveryUnset,
	}
}

func (i *Item) RecoveryPosition() int64 { return i.recoveryPosition }
