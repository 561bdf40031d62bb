package player

import (
	"sync"
	"time"
)

const messageVisible = 3 * time.Second

// messageGate keeps at most one transient message visible. A recoverable
// message arriving while one shows is dropped; an unrecoverable one cancels
// the current message and takes its place.
type messageGate struct {
	mu     sync.Mutex
	active bool
	timer  *time.Timer
	emit   func(Message)
}

func newMessageGate(emit func(Message)) *messageGate {
	return &messageGate{emit: emit}
}

func (g *messageGate) show(m Message) {
	g.mu.Lock()
	if g.active && m.Recoverable {
		g.mu.Unlock()
		return
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.active = true
	g.timer = time.AfterFunc(messageVisible, func() {
		g.mu.Lock()
		g.active = false
		g.mu.Unlock()
	})
	emit := g.emit
	g.mu.Unlock()

	if emit != nil {
		emit(m)
	}
}

func (g *messageGate) stop() {
	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
	}
	g.active = false
	g.mu.Unlock()
}
