package player

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sonroyaalmerol/tubeplay/internal/mpv"
	"github.com/sonroyaalmerol/tubeplay/internal/queue"
	"github.com/sonroyaalmerol/tubeplay/internal/repository"
	"github.com/sonroyaalmerol/tubeplay/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu     sync.Mutex
	events chan mpv.Event

	loads   []string
	seeks   []int64
	plays   int
	pauses  int
	pos     int64
	volumes []int
	closed  bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{events: make(chan mpv.Event, 16)}
}

func (b *fakeBackend) Load(uri string, opts mpv.LoadOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loads = append(b.loads, uri)
	b.pos = opts.StartMs
	return nil
}

func (b *fakeBackend) Play() error  { b.mu.Lock(); defer b.mu.Unlock(); b.plays++; return nil }
func (b *fakeBackend) Pause() error { b.mu.Lock(); defer b.mu.Unlock(); b.pauses++; return nil }
func (b *fakeBackend) Stop() error  { return nil }

func (b *fakeBackend) SeekTo(ms int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeks = append(b.seeks, ms)
	b.pos = ms
	return nil
}

func (b *fakeBackend) SetRate(float64) error { return nil }

func (b *fakeBackend) SetVolume(v int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.volumes = append(b.volumes, v)
	return nil
}

func (b *fakeBackend) TimePos() (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos, nil
}

func (b *fakeBackend) Duration() (int64, error) { return 300000, nil }

func (b *fakeBackend) VideoSize() (int, int, int, int, error) {
	return 1920, 1080, 1, 1, nil
}

func (b *fakeBackend) Events() <-chan mpv.Event { return b.events }

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.events)
	}
	return nil
}

func (b *fakeBackend) loadCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.loads)
}

func (b *fakeBackend) lastLoad() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.loads) == 0 {
		return ""
	}
	return b.loads[len(b.loads)-1]
}

func (b *fakeBackend) seekCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seeks)
}

func (b *fakeBackend) setPos(ms int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pos = ms
}

type fakeResolver struct {
	mu       sync.Mutex
	related  []resolver.Entry
	relCalls int
}

func (r *fakeResolver) Resolve(_ context.Context, url string) (*resolver.StreamInfo, error) {
	return &resolver.StreamInfo{
		URL:        url,
		Title:      "title " + url,
		Uploader:   "uploader",
		StreamType: queue.StreamTypeVideo,
		VideoStreams: []resolver.VideoStream{
			{URL: url + "#720", Resolution: "720p", Height: 720},
		},
	}, nil
}

func (r *fakeResolver) Playlist(context.Context, string, int) ([]resolver.Entry, error) {
	return nil, nil
}

func (r *fakeResolver) Related(context.Context, *resolver.StreamInfo, int) ([]resolver.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relCalls++
	return r.related, nil
}

func (r *fakeResolver) relatedCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.relCalls
}

type fakeStore struct {
	mu       sync.Mutex
	settings repository.Settings
	states   map[string]int64
	views    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		settings: repository.Settings{
			WatchHistory:   true,
			PlaybackResume: true,
			SeekDurationMs: 10000,
		},
		states: map[string]int64{},
	}
}

func (s *fakeStore) GetSettings(context.Context) (*repository.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.settings
	return &cp, nil
}

func (s *fakeStore) SaveStreamState(_ context.Context, url string, progressMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[url] = progressMs
	return nil
}

func (s *fakeStore) LoadStreamState(_ context.Context, url string) (*repository.StreamState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.states[url]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &repository.StreamState{URL: url, ProgressMs: ms}, nil
}

func (s *fakeStore) ResetStreamState(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, url)
	return nil
}

func (s *fakeStore) RecordView(_ context.Context, url, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views = append(s.views, url)
	return nil
}

func testItems(n int) []*queue.Item {
	items := make([]*queue.Item, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, queue.NewItem(
			fmt.Sprintf("https://example.com/v%d", i),
			"youtube", fmt.Sprintf("video %d", i), "up", 300000,
			queue.StreamTypeVideo, ""))
	}
	return items
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestPlayer(t *testing.T) (*Player, *fakeBackend, *fakeResolver, *fakeStore) {
	t.Helper()
	backend := newFakeBackend()
	res := &fakeResolver{}
	store := newFakeStore()
	p := New(store, res, backend, Callbacks{})
	p.probeFn = nil
	t.Cleanup(func() { _ = p.Close() })
	return p, backend, res, store
}

func TestHandleRequestReplacesQueueAndPlays(t *testing.T) {
	p, backend, _, store := newTestPlayer(t)

	err := p.HandleRequest(context.Background(), PlayRequest{Items: testItems(3)})
	require.NoError(t, err)
	waitFor(t, func() bool { return backend.loadCount() == 1 })

	assert.Equal(t, "https://example.com/v0#720", backend.lastLoad())
	assert.Equal(t, StateBlocked, p.State())
	assert.Equal(t, 0, p.Queue().Index)

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.views) == 1
	})
}

func TestHandleRequestEmpty(t *testing.T) {
	p, _, _, _ := newTestPlayer(t)
	err := p.HandleRequest(context.Background(), PlayRequest{})
	assert.Error(t, err)
}

func TestAppendOnlySelectOnAppend(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(2)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })

	extra := queue.NewItem("https://example.com/extra", "youtube", "extra", "up", 1000, queue.StreamTypeVideo, "")
	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{
		Items:          []*queue.Item{extra},
		AppendOnly:     true,
		SelectOnAppend: true,
	}))
	waitFor(t, func() bool { return backend.loadCount() == 2 })

	snap := p.Queue()
	assert.Equal(t, 3, len(snap.Items))
	assert.Equal(t, 2, snap.Index)
	assert.Equal(t, "https://example.com/extra#720", backend.lastLoad())
}

func TestAppendOnlyWithoutSelectKeepsPosition(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(2)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{
		Items:      testItems(1),
		AppendOnly: true,
	}))

	assert.Equal(t, 0, p.Queue().Index)
	assert.Equal(t, 1, backend.loadCount())
}

func TestSameItemRequestSeeksToRecovery(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(1)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })
	backend.events <- mpv.Event{Kind: mpv.EventPlaying}
	waitFor(t, func() bool { return p.State() == StatePlaying })

	same := testItems(1)
	q := queue.New(same...)
	q.SetRecovery(0, 42000)
	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: same}))

	waitFor(t, func() bool { return backend.seekCount() == 1 })
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, int64(42000), backend.seeks[0])
	assert.Equal(t, 1, len(backend.loads))
}

func TestSameItemWithoutRecoveryRestarts(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(1)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })
	backend.events <- mpv.Event{Kind: mpv.EventPlaying}
	waitFor(t, func() bool { return p.State() == StatePlaying })

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(1)}))
	waitFor(t, func() bool { return backend.loadCount() == 2 })
	assert.Equal(t, 0, backend.seekCount())
}

func TestReplaceQueueCarriesRepeatMode(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	repeat := queue.RepeatAll
	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(2), RepeatMode: &repeat}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(3)}))
	waitFor(t, func() bool { return backend.loadCount() == 2 })
	assert.Equal(t, queue.RepeatAll.String(), p.Queue().Repeat)

	off := queue.RepeatOff
	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(2), RepeatMode: &off}))
	waitFor(t, func() bool { return backend.loadCount() == 3 })
	assert.Equal(t, queue.RepeatOff.String(), p.Queue().Repeat)
}

func TestResumeDefersStartUntilLookup(t *testing.T) {
	p, backend, _, store := newTestPlayer(t)
	store.mu.Lock()
	store.states["https://example.com/v0"] = 125000
	store.mu.Unlock()

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{
		Items:          testItems(1),
		ResumePlayback: true,
	}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, int64(125000), backend.pos)
}

func TestResumeLookupMissStartsAtZero(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{
		Items:          testItems(1),
		ResumePlayback: true,
	}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, int64(0), backend.pos)
}

func TestCompletedAdvancesWhenNotLast(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(3)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })

	backend.events <- mpv.Event{Kind: mpv.EventEndReached}
	waitFor(t, func() bool { return backend.loadCount() == 2 })

	assert.Equal(t, 1, p.Queue().Index)
	assert.Equal(t, "https://example.com/v1#720", backend.lastLoad())
}

func TestCompletedAtLastIndexRepeatOffStays(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	items := testItems(2)
	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: items}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })
	p.SelectIndex(1)
	waitFor(t, func() bool { return backend.loadCount() == 2 })

	backend.events <- mpv.Event{Kind: mpv.EventEndReached}
	waitFor(t, func() bool { return p.State() == StateCompleted })

	assert.Equal(t, 1, p.Queue().Index)
	assert.Equal(t, 2, backend.loadCount())
}

func TestCompletedAtLastIndexRepeatAllWraps(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	repeat := queue.RepeatAll
	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{
		Items:      testItems(2),
		RepeatMode: &repeat,
	}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })
	p.SelectIndex(1)
	waitFor(t, func() bool { return backend.loadCount() == 2 })

	backend.events <- mpv.Event{Kind: mpv.EventEndReached}
	waitFor(t, func() bool { return backend.loadCount() == 3 })

	assert.Equal(t, 0, p.Queue().Index)
	assert.Equal(t, "https://example.com/v0#720", backend.lastLoad())
}

func TestCompletedRepeatOneRestartsSameItem(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	repeat := queue.RepeatOne
	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{
		Items:      testItems(3),
		RepeatMode: &repeat,
	}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })
	p.SelectIndex(1)
	waitFor(t, func() bool { return backend.loadCount() == 2 })

	backend.events <- mpv.Event{Kind: mpv.EventEndReached}
	waitFor(t, func() bool { return backend.seekCount() >= 1 })

	assert.Equal(t, 1, p.Queue().Index)
	assert.Equal(t, 2, backend.loadCount())
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, int64(0), backend.seeks[len(backend.seeks)-1])
	assert.GreaterOrEqual(t, backend.plays, 1)
}

func TestAutoQueueAppendsRelatedOnce(t *testing.T) {
	backend := newFakeBackend()
	res := &fakeResolver{related: []resolver.Entry{
		{URL: "https://example.com/rel1", Title: "rel 1"},
		{URL: "https://example.com/rel2", Title: "rel 2"},
	}}
	store := newFakeStore()
	store.mu.Lock()
	store.settings.AutoQueue = true
	store.mu.Unlock()

	p := New(store, res, backend, Callbacks{})
	p.probeFn = nil
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(1)}))
	waitFor(t, func() bool { return len(p.Queue().Items) == 3 })
	assert.Equal(t, 1, res.relatedCalls())
}

func TestAutoQueueDisabledByRepeat(t *testing.T) {
	backend := newFakeBackend()
	res := &fakeResolver{related: []resolver.Entry{{URL: "https://example.com/rel1"}}}
	store := newFakeStore()
	store.mu.Lock()
	store.settings.AutoQueue = true
	store.mu.Unlock()

	p := New(store, res, backend, Callbacks{})
	p.probeFn = nil
	t.Cleanup(func() { _ = p.Close() })

	repeat := queue.RepeatAll
	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{
		Items:      testItems(1),
		RepeatMode: &repeat,
	}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, res.relatedCalls())
	assert.Equal(t, 1, len(p.Queue().Items))
}

func TestPlayPreviousRestartsAtFirstIndex(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(2)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })

	p.PlayPrevious()
	waitFor(t, func() bool { return backend.seekCount() == 1 })
	backend.mu.Lock()
	lastSeek := backend.seeks[0]
	backend.mu.Unlock()
	assert.Equal(t, int64(0), lastSeek)
	assert.Equal(t, 0, p.Queue().Index)
}

func TestPlayPreviousStepsBackRegardlessOfPosition(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(3)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })
	p.SelectIndex(2)
	waitFor(t, func() bool { return backend.loadCount() == 2 })
	backend.setPos(61000)

	p.PlayPrevious()
	waitFor(t, func() bool { return backend.loadCount() == 3 })
	assert.Equal(t, 1, p.Queue().Index)
}

func TestRemoveCurrentItemPlaysReplacement(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(3)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })

	p.RemoveIndex(0)
	waitFor(t, func() bool { return backend.loadCount() == 2 })
	snap := p.Queue()
	assert.Len(t, snap.Items, 2)
	assert.Equal(t, 0, snap.Index)
	assert.Equal(t, "https://example.com/v1#720", backend.lastLoad())

	// removing a non-current item does not restart playback
	p.RemoveIndex(1)
	assert.Len(t, p.Queue().Items, 1)
	assert.Equal(t, 2, backend.loadCount())
}

func TestPauseStatePersistsProgress(t *testing.T) {
	p, backend, _, store := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(1)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })
	backend.events <- mpv.Event{Kind: mpv.EventPlaying}
	waitFor(t, func() bool { return p.State() == StatePlaying })

	backend.setPos(61000)
	backend.events <- mpv.Event{Kind: mpv.EventPaused}
	waitFor(t, func() bool { return p.State() == StatePaused })

	waitFor(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.states["https://example.com/v0"] == 61000
	})
}

func TestSeekWhilePausedReturnsToPaused(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(1)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })
	backend.events <- mpv.Event{Kind: mpv.EventPlaying}
	waitFor(t, func() bool { return p.State() == StatePlaying })
	backend.events <- mpv.Event{Kind: mpv.EventPaused}
	waitFor(t, func() bool { return p.State() == StatePaused })

	require.NoError(t, p.Seek(30000))
	assert.Equal(t, StatePausedSeek, p.State())

	// a seek completes with a playback restart from the backend
	backend.events <- mpv.Event{Kind: mpv.EventPlaying}
	waitFor(t, func() bool { return p.State() == StatePaused })
}

func TestToggleMuteKeepsVolume(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	p.ToggleMute()
	p.ToggleMute()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.volumes, 2)
	assert.Equal(t, 0, backend.volumes[0])
	assert.Equal(t, defaultVolume, backend.volumes[1])
}

func TestCycleRepeat(t *testing.T) {
	p, _, _, _ := newTestPlayer(t)
	assert.Equal(t, queue.RepeatOne, p.CycleRepeat())
	assert.Equal(t, queue.RepeatAll, p.CycleRepeat())
	assert.Equal(t, queue.RepeatOff, p.CycleRepeat())
}

func TestStatusReportsMenusAndVisibility(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)

	require.NoError(t, p.HandleRequest(context.Background(), PlayRequest{Items: testItems(1)}))
	waitFor(t, func() bool { return backend.loadCount() == 1 })
	waitFor(t, func() bool { return len(p.Status().QualityMenu) == 1 })

	st := p.Status()
	assert.Equal(t, "blocked", st.State)
	assert.True(t, st.Visibility.Surface)
	assert.True(t, st.Visibility.Quality)
	assert.Len(t, st.SpeedMenu, len(PlaybackSpeeds))
	assert.True(t, st.QualityMenu[0].Selected)
}

func TestMessageGateRateLimiting(t *testing.T) {
	var mu sync.Mutex
	var got []Message
	g := newMessageGate(func(m Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})
	defer g.stop()

	g.show(Message{Text: "first", Recoverable: true})
	g.show(Message{Text: "dropped", Recoverable: true})
	g.show(Message{Text: "fatal", Recoverable: false})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "fatal", got[1].Text)
}

func TestCloseIsIdempotent(t *testing.T) {
	p, backend, _, _ := newTestPlayer(t)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, backend.closed)
}
