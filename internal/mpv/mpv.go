// Package mpv drives a single mpv process over its JSON IPC socket. The
// player owns exactly one Backend at a time and is the sole consumer of its
// event channel.
package mpv

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	socketCheckRetries  = 20
	socketCheckInterval = 100 * time.Millisecond
	requestTimeout      = 2 * time.Second

	observeIDPause          = 1
	observeIDPausedForCache = 2
	observeIDCacheState     = 3
)

var ErrClosed = errors.New("mpv: backend closed")

type Backend struct {
	binPath    string
	socketPath string

	mu      sync.Mutex
	cmd     *exec.Cmd
	conn    net.Conn
	nextReq int
	pending map[int]chan response
	closed  bool

	events chan Event
	done   chan struct{}
}

// New spawns mpv in idle mode and connects to its IPC socket.
func New(binPath, socketPath string) (*Backend, error) {
	os.Remove(socketPath)

	b := &Backend{
		binPath:    binPath,
		socketPath: socketPath,
		pending:    make(map[int]chan response),
		events:     make(chan Event, 32),
		done:       make(chan struct{}),
	}

	cmd := exec.Command(binPath,
		"--idle=yes",
		"--no-config",
		"--no-terminal",
		"--keep-open=no",
		"--input-ipc-server="+socketPath,
	)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start mpv: %w", err)
	}
	b.cmd = cmd

	conn, err := waitForSocket(socketPath)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}
	b.conn = conn

	go b.readLoop()

	for _, obs := range []struct {
		id   int
		prop string
	}{
		{observeIDPause, "pause"},
		{observeIDPausedForCache, "paused-for-cache"},
		{observeIDCacheState, "cache-buffering-state"},
	} {
		if _, err := b.request("observe_property", obs.id, obs.prop); err != nil {
			slog.Warn("mpv observe_property failed", "property", obs.prop, "err", err)
		}
	}

	return b, nil
}

func waitForSocket(path string) (net.Conn, error) {
	for range socketCheckRetries {
		if conn, err := net.Dial("unix", path); err == nil {
			return conn, nil
		}
		time.Sleep(socketCheckInterval)
	}
	return nil, fmt.Errorf("mpv socket did not appear at %s", path)
}

// Events returns the backend event stream. The channel is closed when the
// backend shuts down.
func (b *Backend) Events() <-chan Event { return b.events }

func (b *Backend) readLoop() {
	defer close(b.events)
	defer close(b.done)

	scanner := bufio.NewScanner(b.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var resp response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			slog.Warn("mpv: unparseable IPC line", "line", scanner.Text(), "err", err)
			continue
		}

		if resp.Event == "" && resp.RequestID > 0 {
			b.mu.Lock()
			ch := b.pending[resp.RequestID]
			delete(b.pending, resp.RequestID)
			b.mu.Unlock()
			if ch != nil {
				ch <- resp
			}
			continue
		}

		if ev, ok := b.translateEvent(resp); ok {
			select {
			case b.events <- ev:
			default:
				slog.Debug("mpv: event dropped, consumer behind", "event", ev.Kind)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		b.mu.Lock()
		closed := b.closed
		b.mu.Unlock()
		if !closed {
			slog.Error("mpv: IPC read failed", "err", err)
		}
	}
}

func (b *Backend) translateEvent(resp response) (Event, bool) {
	switch resp.Event {
	case "start-file":
		return Event{Kind: EventOpening}, true

	case "playback-restart":
		return Event{Kind: EventPlaying}, true

	case "end-file":
		if resp.Reason == "error" {
			return Event{Kind: EventError, Message: "playback failed"}, true
		}
		if resp.Reason == "eof" {
			return Event{Kind: EventEndReached}, true
		}
		// "stop" and "redirect" are caller-initiated, not playback outcomes
		return Event{}, false

	case "property-change":
		switch resp.ID {
		case observeIDPause:
			if paused, ok := resp.Data.(bool); ok {
				if paused {
					return Event{Kind: EventPaused}, true
				}
				return Event{Kind: EventPlaying}, true
			}
		case observeIDPausedForCache:
			if stalled, ok := resp.Data.(bool); ok && stalled {
				return Event{Kind: EventBuffering}, true
			}
		case observeIDCacheState:
			if pct, ok := resp.Data.(float64); ok && pct < 100 {
				return Event{Kind: EventBuffering, BufferPercent: int(pct)}, true
			}
		}
	}
	return Event{}, false
}

func (b *Backend) request(args ...any) (response, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return response{}, ErrClosed
	}
	b.nextReq++
	id := b.nextReq
	ch := make(chan response, 1)
	b.pending[id] = ch
	conn := b.conn
	b.mu.Unlock()

	frame := command{Command: args, RequestID: id}
	payload, err := json.Marshal(frame)
	if err != nil {
		return response{}, err
	}
	payload = append(payload, '\n')
	if _, err := conn.Write(payload); err != nil {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return response{}, fmt.Errorf("mpv write: %w", err)
	}

	select {
	case resp := <-ch:
		if resp.Error != "" && resp.Error != "success" {
			return resp, fmt.Errorf("mpv: %s", resp.Error)
		}
		return resp, nil
	case <-time.After(requestTimeout):
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
		return response{}, fmt.Errorf("mpv: request timed out")
	case <-b.done:
		return response{}, ErrClosed
	}
}

// Load replaces the current media with the given URI, applying start
// position, pause state, rate, volume and an optional subtitle attachment.
func (b *Backend) Load(uri string, opts LoadOptions) error {
	loadOpts := fmt.Sprintf("pause=%s", yesNo(opts.StartPaused))
	if opts.StartMs > 0 {
		loadOpts += fmt.Sprintf(",start=%.3f", float64(opts.StartMs)/1000)
	}
	if _, err := b.request("loadfile", uri, "replace", loadOpts); err != nil {
		return err
	}
	if opts.Rate > 0 && opts.Rate != 1.0 {
		if err := b.SetRate(opts.Rate); err != nil {
			slog.Warn("mpv: set rate on load failed", "rate", opts.Rate, "err", err)
		}
	}
	if err := b.SetVolume(opts.Volume); err != nil {
		slog.Warn("mpv: set volume on load failed", "volume", opts.Volume, "err", err)
	}
	if opts.SubtitleURL != "" {
		if _, err := b.request("sub-add", opts.SubtitleURL, "select"); err != nil {
			slog.Warn("mpv: subtitle attach failed", "url", opts.SubtitleURL, "err", err)
		}
	}
	return nil
}

func (b *Backend) Play() error {
	_, err := b.request("set_property", "pause", false)
	return err
}

func (b *Backend) Pause() error {
	_, err := b.request("set_property", "pause", true)
	return err
}

func (b *Backend) Stop() error {
	_, err := b.request("stop")
	return err
}

func (b *Backend) SeekTo(positionMs int64) error {
	_, err := b.request("seek", float64(positionMs)/1000, "absolute")
	return err
}

func (b *Backend) SetRate(rate float64) error {
	_, err := b.request("set_property", "speed", rate)
	return err
}

// SetVolume takes 0..100.
func (b *Backend) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	_, err := b.request("set_property", "volume", volume)
	return err
}

func (b *Backend) Volume() (int, error) {
	resp, err := b.request("get_property", "volume")
	if err != nil {
		return 0, err
	}
	if v, ok := resp.Data.(float64); ok {
		return int(v), nil
	}
	return 0, fmt.Errorf("mpv: unexpected volume payload")
}

// TimePos returns the playback position in milliseconds.
func (b *Backend) TimePos() (int64, error) {
	return b.propertyMs("time-pos")
}

// Duration returns the media length in milliseconds; 0 for live streams.
func (b *Backend) Duration() (int64, error) {
	return b.propertyMs("duration")
}

func (b *Backend) propertyMs(name string) (int64, error) {
	resp, err := b.request("get_property", name)
	if err != nil {
		return 0, err
	}
	if v, ok := resp.Data.(float64); ok {
		return int64(v * 1000), nil
	}
	return 0, nil
}

// VideoSize reports the decoded frame dimensions and sample aspect ratio as
// mpv sees them; zeros before the first video frame.
func (b *Backend) VideoSize() (w, h, sarNum, sarDen int, err error) {
	for _, q := range []struct {
		prop string
		dst  *int
	}{
		{"video-params/w", &w},
		{"video-params/h", &h},
	} {
		resp, rerr := b.request("get_property", q.prop)
		if rerr != nil {
			return 0, 0, 0, 0, rerr
		}
		if v, ok := resp.Data.(float64); ok {
			*q.dst = int(v)
		}
	}
	sarNum, sarDen = 1, 1
	if resp, rerr := b.request("get_property", "video-params/sar"); rerr == nil {
		if sar, ok := resp.Data.(float64); ok && sar > 0 {
			// mpv exposes SAR as a ratio; keep fraction precision to 1/1000
			sarNum, sarDen = int(sar*1000), 1000
		}
	}
	return w, h, sarNum, sarDen, nil
}

// Close tears down the IPC connection and the mpv process. The event channel
// closes as a consequence; no further events are delivered.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	conn := b.conn
	cmd := b.cmd
	b.mu.Unlock()

	_, _ = b.requestBestEffort("quit")
	if conn != nil {
		_ = conn.Close()
	}
	if cmd != nil && cmd.Process != nil {
		waited := make(chan struct{})
		go func() {
			_ = cmd.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(2 * time.Second):
			_ = cmd.Process.Kill()
		}
	}
	os.Remove(b.socketPath)
	return nil
}

// requestBestEffort writes without waiting for a reply; used during
// teardown when the reader may already be gone.
func (b *Backend) requestBestEffort(args ...any) (response, error) {
	payload, err := json.Marshal(command{Command: args})
	if err != nil {
		return response{}, err
	}
	payload = append(payload, '\n')
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return response{}, ErrClosed
	}
	_, err = conn.Write(payload)
	return response{}, err
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
