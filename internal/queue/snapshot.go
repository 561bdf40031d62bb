package queue

// SnapshotItem is the read-only projection of a queue entry handed to list
// UIs and the control API.
type SnapshotItem struct {
	URL        string `json:"url"`
	ServiceID  string `json:"service_id"`
	Title      string `json:"title"`
	Uploader   string `json:"uploader"`
	DurationMs int64  `json:"duration_ms"`
	StreamType string `json:"stream_type"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Playing    bool   `json:"playing"`
}

// Snapshot is an immutable copy of the queue for display binding. It shares
// nothing with the live queue.
type Snapshot struct {
	Items    []SnapshotItem `json:"items"`
	Index    int            `json:"index"`
	Repeat   string         `json:"repeat"`
	Shuffled bool           `json:"shuffled"`
}

// Snapshot copies the queue's visible state. Callers may hold the result
// after the queue has been mutated or disposed.
func (q *Queue) Snapshot() Snapshot {
	s := Snapshot{
		Items:    make([]SnapshotItem, 0, len(q.items)),
		Index:    q.index,
		Repeat:   q.repeat.String(),
		Shuffled: q.shuffled,
	}
	for i, it := range q.items {
		s.Items = append(s.Items, SnapshotItem{
			URL:        it.URL,
			ServiceID:  it.ServiceID,
			Title:      it.Title,
			Uploader:   it.Uploader,
			DurationMs: it.DurationMs,
			StreamType: it.StreamType.String(),
			Thumbnail:  it.Thumbnail,
			Playing:    i == q.index,
		})
	}
	return s
}
