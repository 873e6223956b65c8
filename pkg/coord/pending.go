package coord

import (
	"sync"

	"github.com/fairwaylab/strobeshot/internal/log"
)

// pendingTable tracks outstanding correlation ids. One entry per in-flight
// request; replies for unknown or already-resolved ids are logged and
// discarded so a late peer response can never be acted on twice.
type pendingTable struct {
	mu      sync.Mutex
	waiters map[string]chan *Message
}

func newPendingTable() *pendingTable {
	return &pendingTable{waiters: make(map[string]chan *Message)}
}

// register creates a waiter for id. The returned channel receives exactly
// one message or nothing at all.
func (t *pendingTable) register(id string) <-chan *Message {
	ch := make(chan *Message, 1)
	t.mu.Lock()
	t.waiters[id] = ch
	t.mu.Unlock()
	return ch
}

// resolve delivers a reply to the waiter for id. Returns false when the id
// is unknown — stale, duplicate, or already abandoned.
func (t *pendingTable) resolve(id string, m *Message) bool {
	t.mu.Lock()
	ch, ok := t.waiters[id]
	if ok {
		delete(t.waiters, id)
	}
	t.mu.Unlock()
	if !ok {
		log.Warn("discarding reply with stale correlation id", "cid", id, "type", m.Type)
		return false
	}
	ch <- m
	return true
}

// abandon drops the waiter for id without delivering anything.
func (t *pendingTable) abandon(id string) {
	t.mu.Lock()
	delete(t.waiters, id)
	t.mu.Unlock()
}

// abandonAll drops every outstanding waiter. Called on shutdown.
func (t *pendingTable) abandonAll() {
	t.mu.Lock()
	n := len(t.waiters)
	t.waiters = make(map[string]chan *Message)
	t.mu.Unlock()
	if n > 0 {
		log.Info("abandoned outstanding correlation ids", "count", n)
	}
}
