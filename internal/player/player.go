package player

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sonroyaalmerol/tubeplay/internal/mpv"
	"github.com/sonroyaalmerol/tubeplay/internal/probe"
	"github.com/sonroyaalmerol/tubeplay/internal/queue"
	"github.com/sonroyaalmerol/tubeplay/internal/repository"
	"github.com/sonroyaalmerol/tubeplay/internal/resolver"
)

const (
	progressInterval = 500 * time.Millisecond
	autoQueueLimit   = 10
	defaultVolume    = 100
)

// Backend is the native playback collaborator. *mpv.Backend satisfies it.
type Backend interface {
	Load(uri string, opts mpv.LoadOptions) error
	Play() error
	Pause() error
	Stop() error
	SeekTo(positionMs int64) error
	SetRate(rate float64) error
	SetVolume(volume int) error
	TimePos() (int64, error)
	Duration() (int64, error)
	VideoSize() (w, h, sarNum, sarDen int, err error)
	Events() <-chan mpv.Event
	Close() error
}

// Store is the persistence collaborator. *repository.Repo satisfies it.
type Store interface {
	GetSettings(ctx context.Context) (*repository.Settings, error)
	SaveStreamState(ctx context.Context, url string, progressMs int64) error
	LoadStreamState(ctx context.Context, url string) (*repository.StreamState, error)
	ResetStreamState(ctx context.Context, url string) error
	RecordView(ctx context.Context, url, title, uploader string) error
}

// Player owns the backend, the play queue and the state machine. It is the
// sole subscriber to backend events for its lifetime and the only component
// allowed to drive the backend.
type Player struct {
	store   Store
	res     resolver.Resolver
	backend Backend
	cb      Callbacks
	msg     *messageGate

	probeFn func(string) (probe.Result, error)

	mu               sync.Mutex
	queue            *queue.Queue
	state            State
	params           PlaybackParameters
	requestedQuality string
	muted            bool
	volume           int
	resizeMode       ResizeMode
	tag              *SourceTag
	probed           probe.Result
	bufferPercent    int
	autoQueued       bool
	seekWhilePaused  bool
	session          int64
	progressStop     chan struct{}
	closed           bool

	done chan struct{}
}

func New(store Store, res resolver.Resolver, backend Backend, cb Callbacks) *Player {
	p := &Player{
		store:   store,
		res:     res,
		backend: backend,
		cb:      cb,
		probeFn: probe.Open,
		queue:   queue.New(),
		state:   StatePreflight,
		params:  DefaultParameters(),
		volume:  defaultVolume,
		done:    make(chan struct{}),
	}
	p.msg = newMessageGate(cb.OnMessage)
	go p.drainEvents()
	return p
}

// drainEvents owns the backend event channel until Close.
func (p *Player) drainEvents() {
	defer close(p.done)
	for ev := range p.backend.Events() {
		switch ev.Kind {
		case mpv.EventOpening:
			p.transition(StateBlocked)
		case mpv.EventBuffering:
			p.mu.Lock()
			p.bufferPercent = ev.BufferPercent
			p.mu.Unlock()
			p.transition(StateBuffering)
		case mpv.EventPlaying:
			p.mu.Lock()
			resumePaused := p.seekWhilePaused
			p.seekWhilePaused = false
			p.mu.Unlock()
			if resumePaused {
				p.transition(StatePaused)
			} else {
				p.transition(StatePlaying)
			}
		case mpv.EventPaused:
			p.mu.Lock()
			skip := p.state == StateCompleted || p.state == StatePreflight
			p.mu.Unlock()
			if !skip {
				p.transition(StatePaused)
			}
		case mpv.EventEndReached:
			p.transition(StateCompleted)
		case mpv.EventError:
			slog.Error("backend playback error", "message", ev.Message)
			p.msg.show(Message{Text: "playback failed: " + ev.Message, Recoverable: true})
		}
	}
}

// transition sets the state unconditionally, then runs the per-state hooks.
func (p *Player) transition(s State) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.state = s

	if s.progressing() && p.progressStop == nil {
		p.progressStop = make(chan struct{})
		go p.progressLoop(p.progressStop)
	} else if !s.progressing() && p.progressStop != nil {
		close(p.progressStop)
		p.progressStop = nil
	}

	switch s {
	case StatePaused:
		p.saveProgressLocked()
	case StateCompleted:
		p.completeLocked()
	}
	cb := p.cb.OnStateChange
	p.mu.Unlock()

	if cb != nil {
		cb(s)
	}
}

// completeLocked advances the queue per the repeat mode. At the last index
// with repeat off the cursor stays put and the player remains completed.
func (p *Player) completeLocked() {
	item := p.queue.Item()
	if item != nil {
		url := item.URL
		go func() {
			if err := p.store.ResetStreamState(context.Background(), url); err != nil {
				slog.Warn("reset stream state failed", "url", url, "error", err)
			}
		}()
	}

	switch {
	case p.queue.RepeatMode() == queue.RepeatOne:
		if err := p.backend.SeekTo(0); err == nil {
			_ = p.backend.Play()
		}
	case p.queue.Index() < p.queue.Size()-1 || p.queue.RepeatMode() == queue.RepeatAll:
		p.queue.OffsetIndex(1)
		p.playCurrentLocked(false)
	}
}

func (p *Player) progressLoop(stop chan struct{}) {
	t := time.NewTicker(progressInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			pos, err := p.backend.TimePos()
			if err != nil {
				continue
			}
			dur, _ := p.backend.Duration()
			p.mu.Lock()
			buf := p.bufferPercent
			cb := p.cb.OnProgress
			p.mu.Unlock()
			if cb != nil {
				cb(pos, dur, buf)
			}
		}
	}
}

// HandleRequest is the inbound command entry point, the daemon's equivalent
// of an external play intent.
func (p *Player) HandleRequest(ctx context.Context, req PlayRequest) error {
	settings, err := p.store.GetSettings(ctx)
	if err != nil {
		slog.Warn("load settings failed", "error", err)
		settings = &repository.Settings{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("player closed")
	}

	p.applyRequestParamsLocked(req)

	switch {
	case req.AppendOnly && !p.queue.IsEmpty() && len(req.Items) > 0:
		first := p.queue.Size()
		p.queue.Append(req.Items...)
		p.autoQueued = false
		p.notifyQueueLocked()
		if req.SelectOnAppend || p.state == StateCompleted {
			p.queue.SetIndex(first)
			p.playCurrentLocked(req.StartPaused)
		}
		return nil

	case p.sameItemRequestLocked(req):
		return p.backend.SeekTo(req.Items[0].RecoveryPosition())

	case req.ResumePlayback && settings.PlaybackResume && len(req.Items) > 0:
		p.replaceQueueLocked(req)
		p.resumeCurrentLocked(req.StartPaused)
		return nil

	case len(req.Items) > 0:
		p.replaceQueueLocked(req)
		p.playCurrentLocked(req.StartPaused)
		return nil
	}
	return errors.New("empty play request")
}

// sameItemRequestLocked reports a single-item request matching the currently
// loaded item, carrying a recovery position, where only a seek is needed.
// Without a recovery position the request takes the normal replace path.
func (p *Player) sameItemRequestLocked(req PlayRequest) bool {
	if len(req.Items) != 1 || req.AppendOnly || p.state == StatePreflight {
		return false
	}
	if req.Items[0].RecoveryPosition() == queue.RecoveryUnset {
		return false
	}
	cur := p.queue.Item()
	return cur != nil && cur.URL == req.Items[0].URL
}

// replaceQueueLocked swaps in a new queue, carrying the old queue's repeat
// mode unless the request sets one explicitly.
func (p *Player) replaceQueueLocked(req PlayRequest) {
	prev := p.queue.RepeatMode()
	p.queue = queue.New(req.Items...)
	p.queue.SetRepeatMode(prev)
	if req.RepeatMode != nil {
		p.queue.SetRepeatMode(*req.RepeatMode)
	}
	p.autoQueued = false
	p.notifyQueueLocked()
}

func (p *Player) applyRequestParamsLocked(req PlayRequest) {
	if req.RepeatMode != nil {
		p.queue.SetRepeatMode(*req.RepeatMode)
	}
	next := p.params
	if req.PlaybackSpeed != nil {
		next.Speed = *req.PlaybackSpeed
	}
	if req.PlaybackPitch != nil {
		next.Pitch = *req.PlaybackPitch
	}
	if req.SkipSilence != nil {
		next.SkipSilence = *req.SkipSilence
	}
	p.params = next
	if req.IsMuted != nil && *req.IsMuted != p.muted {
		p.muted = *req.IsMuted
		p.applyVolumeLocked()
	}
	if req.PlaybackQuality != "" {
		p.requestedQuality = req.PlaybackQuality
	}
}

// resumeCurrentLocked defers playback start until the recovery lookup
// resolves. Lookup failure starts from zero and is never surfaced as fatal.
func (p *Player) resumeCurrentLocked(startPaused bool) {
	item := p.queue.Item()
	if item == nil {
		return
	}
	index := p.queue.Index()
	p.session++
	gen := p.session
	p.state = StateBlocked

	go func() {
		st, err := p.store.LoadStreamState(context.Background(), item.URL)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("recovery lookup failed", "url", item.URL, "error", err)
		}
		startMs := int64(0)
		if err == nil && st != nil {
			startMs = st.ProgressMs
		}
		p.mu.Lock()
		if gen != p.session {
			p.mu.Unlock()
			return
		}
		p.queue.SetRecovery(index, startMs)
		p.mu.Unlock()
		p.resolveAndLoad(gen, item, startMs, startPaused)
	}()
}

// playCurrentLocked starts playback of the current item, consuming any
// stored recovery position.
func (p *Player) playCurrentLocked(startPaused bool) {
	item := p.queue.Item()
	if item == nil {
		return
	}
	startMs := int64(0)
	if rp := item.RecoveryPosition(); rp != queue.RecoveryUnset {
		startMs = rp
		p.queue.ResetRecovery(p.queue.Index())
	}
	p.session++
	gen := p.session
	p.state = StateBlocked
	go p.resolveAndLoad(gen, item, startMs, startPaused)
}

// resolveAndLoad runs unlocked: it resolves the item, applies the quality
// policy and hands the selected URI to the backend. A newer session
// abandons the result.
func (p *Player) resolveAndLoad(gen int64, item *queue.Item, startMs int64, startPaused bool) {
	ctx := context.Background()
	settings, err := p.store.GetSettings(ctx)
	if err != nil {
		settings = &repository.Settings{}
	}

	info, err := p.res.Resolve(ctx, item.URL)
	if err != nil {
		slog.Error("stream resolution failed", "url", item.URL, "error", err)
		p.msg.show(Message{Text: "could not resolve stream", Recoverable: false})
		return
	}

	p.mu.Lock()
	requested := p.requestedQuality
	p.mu.Unlock()

	sel, err := resolver.SelectPlayback(info, requested, settings.DefaultResolution)
	if err != nil {
		slog.Error("no playable streams", "url", item.URL, "error", err)
		p.msg.show(Message{Text: "no playable streams for this item", Recoverable: false})
		return
	}

	p.mu.Lock()
	if gen != p.session || p.closed {
		p.mu.Unlock()
		return
	}
	p.tag = &SourceTag{Info: info, Qualities: sel.VideoStreams, SelectedQuality: sel.SelectedIndex}
	p.probed = probe.Result{}
	p.bufferPercent = 0

	autoQueue := !p.autoQueued &&
		settings.AutoQueue &&
		p.queue.RepeatMode() == queue.RepeatOff &&
		p.queue.Index() == p.queue.Size()-1
	if autoQueue {
		p.autoQueued = true
	}

	opts := mpv.LoadOptions{
		StartMs:     startMs,
		StartPaused: startPaused,
		SubtitleURL: PreferredSubtitle(info.Subtitles, settings.PreferredCaption),
		Rate:        p.params.Speed,
		Volume:      p.effectiveVolumeLocked(),
	}
	uri := sel.URI
	probeFn := p.probeFn
	wantProbe := info.StreamType == queue.StreamTypeVideo && probeFn != nil
	metaCb := p.cb.OnMetadata
	p.mu.Unlock()

	if err := p.backend.Load(uri, opts); err != nil {
		slog.Error("backend load failed", "url", item.URL, "error", err)
		p.msg.show(Message{Text: "playback failed to start", Recoverable: false})
		return
	}

	if settings.WatchHistory {
		go func() {
			if err := p.store.RecordView(context.Background(), info.URL, info.Title, info.Uploader); err != nil {
				slog.Warn("record view failed", "url", info.URL, "error", err)
			}
		}()
	}
	if autoQueue {
		go p.fetchRelated(info)
	}
	if wantProbe {
		go func() {
			res, err := probeFn(uri)
			if err != nil {
				slog.Debug("probe failed", "url", item.URL, "error", err)
				return
			}
			p.mu.Lock()
			if gen == p.session {
				p.probed = res
			}
			p.mu.Unlock()
		}()
	}
	if metaCb != nil {
		metaCb(info)
	}
}

// fetchRelated appends backend-suggested items when the queue end is reached
// with repeat off. One-shot per reaching the end.
func (p *Player) fetchRelated(info *resolver.StreamInfo) {
	related, err := p.res.Related(context.Background(), info, autoQueueLimit)
	if err != nil {
		slog.Warn("related lookup failed", "url", info.URL, "error", err)
		return
	}
	if len(related) == 0 {
		return
	}
	items := make([]*queue.Item, 0, len(related))
	for _, e := range related {
		items = append(items, e.Item())
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue.Append(items...)
	p.notifyQueueLocked()
	p.mu.Unlock()
	slog.Info("auto-queued related items", "count", len(items))
}

func (p *Player) notifyQueueLocked() {
	if cb := p.cb.OnQueueChange; cb != nil {
		go cb()
	}
}

// saveProgressLocked persists the current position, fire and forget.
func (p *Player) saveProgressLocked() {
	item := p.queue.Item()
	if item == nil {
		return
	}
	pos, err := p.backend.TimePos()
	if err != nil || pos <= 0 {
		return
	}
	url := item.URL
	go func() {
		if err := p.store.SaveStreamState(context.Background(), url, pos); err != nil {
			slog.Warn("save stream state failed", "url", url, "error", err)
		}
	}()
}

func (p *Player) effectiveVolumeLocked() int {
	if p.muted {
		return 0
	}
	return p.volume
}

func (p *Player) applyVolumeLocked() {
	if err := p.backend.SetVolume(p.effectiveVolumeLocked()); err != nil {
		slog.Warn("set volume failed", "error", err)
	}
}

// Pause pauses playback, persisting progress via the paused-state hook.
func (p *Player) Pause() error {
	return p.backend.Pause()
}

// Resume resumes a paused or completed player.
func (p *Player) Resume() error {
	p.mu.Lock()
	if p.state == StateCompleted {
		if err := p.backend.SeekTo(0); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	p.mu.Unlock()
	return p.backend.Play()
}

// PlayPause toggles between playing and paused.
func (p *Player) PlayPause() error {
	p.mu.Lock()
	playing := p.state == StatePlaying || p.state == StateBuffering
	p.mu.Unlock()
	if playing {
		return p.Pause()
	}
	return p.Resume()
}

// PlayNext advances to the next queue item, saving current progress first.
func (p *Player) PlayNext() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.IsEmpty() {
		return
	}
	p.saveProgressLocked()
	p.queue.OffsetIndex(1)
	p.playCurrentLocked(false)
}

// PlayPrevious steps back one queue item, or restarts the current item when
// already at the first index.
func (p *Player) PlayPrevious() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.IsEmpty() {
		return
	}
	if p.queue.Index() == 0 {
		if err := p.backend.SeekTo(0); err != nil {
			slog.Warn("seek failed", "error", err)
		}
		return
	}
	p.saveProgressLocked()
	p.queue.OffsetIndex(-1)
	p.playCurrentLocked(false)
}

// SelectIndex jumps to a specific queue position.
func (p *Player) SelectIndex(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.IsEmpty() || i == p.queue.Index() {
		return
	}
	p.saveProgressLocked()
	p.queue.SetIndex(i)
	p.playCurrentLocked(false)
}

// RemoveIndex drops a queue entry. Removing the playing item starts whatever
// slides into its place.
func (p *Player) RemoveIndex(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.At(i) == nil {
		return
	}
	wasCurrent := i == p.queue.Index()
	p.queue.Remove(i)
	p.notifyQueueLocked()
	if wasCurrent && !p.queue.IsEmpty() {
		p.playCurrentLocked(false)
	}
}

// Seek moves to an absolute position. Seeking while paused passes through
// the paused-seeking state and lands back on paused.
func (p *Player) Seek(positionMs int64) error {
	p.mu.Lock()
	if p.state == StatePaused || p.state == StatePausedSeek {
		p.state = StatePausedSeek
		p.seekWhilePaused = true
	}
	p.mu.Unlock()
	return p.backend.SeekTo(positionMs)
}

// FastForward seeks ahead by the configured seek duration.
func (p *Player) FastForward() error { return p.seekBy(1) }

// Rewind seeks back by the configured seek duration.
func (p *Player) Rewind() error { return p.seekBy(-1) }

func (p *Player) seekBy(direction int64) error {
	settings, err := p.store.GetSettings(context.Background())
	if err != nil || settings.SeekDurationMs <= 0 {
		settings = &repository.Settings{SeekDurationMs: 10000}
	}
	pos, err := p.backend.TimePos()
	if err != nil {
		return err
	}
	target := pos + direction*settings.SeekDurationMs
	if target < 0 {
		target = 0
	}
	return p.Seek(target)
}

// SetParameters replaces the playback parameter triple and applies the rate.
func (p *Player) SetParameters(params PlaybackParameters) error {
	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
	return p.backend.SetRate(params.Speed)
}

// ToggleMute flips mute without losing the configured volume.
func (p *Player) ToggleMute() {
	p.mu.Lock()
	p.muted = !p.muted
	p.applyVolumeLocked()
	p.mu.Unlock()
}

// CycleRepeat steps off -> one -> all -> off.
func (p *Player) CycleRepeat() queue.RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	var next queue.RepeatMode
	switch p.queue.RepeatMode() {
	case queue.RepeatOff:
		next = queue.RepeatOne
	case queue.RepeatOne:
		next = queue.RepeatAll
	default:
		next = queue.RepeatOff
	}
	p.queue.SetRepeatMode(next)
	return next
}

// ToggleShuffle shuffles or restores the queue, keeping the current item.
func (p *Player) ToggleShuffle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.IsShuffled() {
		p.queue.Unshuffle()
	} else {
		p.queue.Shuffle()
	}
	p.notifyQueueLocked()
	return p.queue.IsShuffled()
}

// SetResizeMode sets this player's surface fitting mode.
func (p *Player) SetResizeMode(m ResizeMode) {
	p.mu.Lock()
	p.resizeMode = m
	p.mu.Unlock()
}

// CycleResizeMode advances to the next fitting mode and returns it.
func (p *Player) CycleResizeMode() ResizeMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resizeMode = p.resizeMode.Next()
	return p.resizeMode
}

// SelectQuality switches to another candidate rendition, keeping position.
func (p *Player) SelectQuality(index int) error {
	p.mu.Lock()
	if p.tag == nil || index < 0 || index >= len(p.tag.Qualities) {
		p.mu.Unlock()
		return errors.New("no such quality")
	}
	q := p.tag.Qualities[index]
	p.requestedQuality = q.Resolution
	tag := &SourceTag{Info: p.tag.Info, Qualities: p.tag.Qualities, SelectedQuality: index}
	p.tag = tag
	startPaused := p.state == StatePaused || p.state == StatePausedSeek
	rate := p.params.Speed
	volume := p.effectiveVolumeLocked()
	p.mu.Unlock()

	pos, err := p.backend.TimePos()
	if err != nil {
		pos = 0
	}
	return p.backend.Load(q.URL, mpv.LoadOptions{
		StartMs:     pos,
		StartPaused: startPaused,
		Rate:        rate,
		Volume:      volume,
	})
}

// Queue returns a read-only snapshot for display.
func (p *Player) Queue() queue.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Snapshot()
}

// Status is the full player state bundle served by the control API.
type Status struct {
	State         string             `json:"state"`
	PositionMs    int64              `json:"position_ms"`
	DurationMs    int64              `json:"duration_ms"`
	BufferPercent int                `json:"buffer_percent"`
	Parameters    PlaybackParameters `json:"parameters"`
	Muted         bool               `json:"muted"`
	RepeatMode    string             `json:"repeat_mode"`
	Shuffled      bool               `json:"shuffled"`
	ResizeMode    string             `json:"resize_mode"`
	Visibility    Visibility         `json:"visibility"`
	QualityMenu   []MenuEntry        `json:"quality_menu,omitempty"`
	SpeedMenu     []MenuEntry        `json:"speed_menu"`
	CaptionMenu   []MenuEntry        `json:"caption_menu,omitempty"`
}

func (p *Player) Status() Status {
	pos, _ := p.backend.TimePos()
	dur, _ := p.backend.Duration()
	settings, err := p.store.GetSettings(context.Background())
	if err != nil {
		settings = &repository.Settings{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		State:         p.state.String(),
		PositionMs:    pos,
		DurationMs:    dur,
		BufferPercent: p.bufferPercent,
		Parameters:    p.params,
		Muted:         p.muted,
		RepeatMode:    p.queue.RepeatMode().String(),
		Shuffled:      p.queue.IsShuffled(),
		ResizeMode:    p.resizeMode.String(),
		SpeedMenu:     SpeedMenu(p.params.Speed),
	}
	if item := p.queue.Item(); item != nil {
		hasVideo := p.tag != nil && len(p.tag.Qualities) > 0
		st.Visibility = VisibilityFor(item.StreamType, hasVideo)
	}
	if p.tag != nil {
		st.QualityMenu = QualityMenu(p.tag.Qualities, p.tag.SelectedQuality)
		st.CaptionMenu = CaptionMenu(p.tag.Info.Subtitles, settings.PreferredCaption)
	}
	return st
}

// Layout computes the surface geometry for a container, preferring the
// backend's reported dimensions and falling back to the probed ones.
func (p *Player) Layout(containerW, containerH float64) (Geometry, error) {
	w, h, sarNum, sarDen, err := p.backend.VideoSize()

	p.mu.Lock()
	mode := p.resizeMode
	probed := p.probed
	p.mu.Unlock()

	if err != nil || w == 0 || h == 0 {
		if !probed.HasVideo {
			return Geometry{}, errors.New("no video dimensions available")
		}
		w, h = probed.Width, probed.Height
		sarNum, sarDen = probed.SarNum, probed.SarDen
	}
	return ComputeGeometry(w, h, w, h, sarNum, sarDen, containerW, containerH, mode)
}

// State returns the current state machine value.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close tears the player down deterministically: progress persisted,
// progress loop stopped, backend closed, event drain joined.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.session++
	p.saveProgressLocked()
	if p.progressStop != nil {
		close(p.progressStop)
		p.progressStop = nil
	}
	p.mu.Unlock()

	err := p.backend.Close()
	<-p.done
	p.msg.stop()
	return err
}
