package coord

import "sync"

// SessionGuard serializes peer sessions on the listening node. The device
// is shared between sessions, so a stale responder's teardown must finish
// before the next one arms: a Peer.Run still winding down after its
// connection went half-dead would otherwise disarm the device under the
// live session that replaced it.
type SessionGuard struct {
	mu   sync.Mutex
	ch   Channel
	done chan struct{}
}

// Begin registers ch as the live session. Any previous session is
// superseded: its channel is closed and Begin blocks until its end func has
// run. The returned end func must be called once the session's responder
// has returned.
func (g *SessionGuard) Begin(ch Channel) (end func()) {
	g.mu.Lock()
	for g.ch != nil {
		prev, prevDone := g.ch, g.done
		g.mu.Unlock()
		prev.Close()
		<-prevDone
		g.mu.Lock()
	}
	done := make(chan struct{})
	g.ch, g.done = ch, done
	g.mu.Unlock()

	return func() {
		close(done)
		g.mu.Lock()
		if g.ch == ch {
			g.ch, g.done = nil, nil
		}
		g.mu.Unlock()
	}
}
