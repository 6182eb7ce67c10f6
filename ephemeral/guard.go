// ABOUTME: TTL-bounded intent guard for suppressing self-echoed push events
// ABOUTME: Marks are consume-once; a mark matches at most one echoed event

package ephemeral

import (
	"container/list"
	"sync"
	"time"
)

// Actions the engine guards against self-echo.
const (
	ActionAddingChannel    = "adding-channel"
	ActionJoiningChannel   = "joining-channel"
	ActionLeavingChannel   = "leaving-channel"
	ActionArchivingChannel = "archiving-channel"
	ActionLeavingTeam      = "leaving-team"
	ActionFollowingThread  = "following-thread"
)

type guardEntry struct {
	timestamp time.Time
	element   *list.Element
}

// Guard is a thread-safe, TTL-based, size-limited set of pending intents.
// Keys combine the target entity with the action taken on it, so a join
// and a leave on the same channel never collide.
type Guard struct {
	mu      sync.Mutex
	pending map[string]*guardEntry
	order   *list.List
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// NewGuard creates an intent guard with the given TTL and maximum size.
// A background goroutine reaps expired marks.
func NewGuard(ttl time.Duration, maxSize int) *Guard {
	g := &Guard{
		pending: make(map[string]*guardEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go g.reap()
	return g
}

func guardKey(entityID, action string) string {
	return entityID + "\x00" + action
}

// Mark records that the client is about to perform action on entityID.
// Re-marking refreshes the TTL. The oldest mark is evicted at capacity.
func (g *Guard) Mark(entityID, action string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := guardKey(entityID, action)
	now := time.Now()

	if entry, exists := g.pending[key]; exists {
		entry.timestamp = now
		g.order.MoveToBack(entry.element)
		return
	}

	if len(g.pending) >= g.maxSize {
		g.evictOldest()
	}

	elem := g.order.PushBack(key)
	g.pending[key] = &guardEntry{timestamp: now, element: elem}
}

// Consume atomically checks for a live mark and removes it. Returns true
// when a mark was present, meaning the caller's event is a self-echo.
func (g *Guard) Consume(entityID, action string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := guardKey(entityID, action)
	entry, ok := g.pending[key]
	if !ok {
		return false
	}

	g.order.Remove(entry.element)
	delete(g.pending, key)
	return time.Since(entry.timestamp) < g.ttl
}

// Check reports whether a live mark exists without consuming it.
func (g *Guard) Check(entityID, action string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	entry, ok := g.pending[guardKey(entityID, action)]
	return ok && time.Since(entry.timestamp) < g.ttl
}

// evictOldest removes the oldest mark. Must be called with mu held.
func (g *Guard) evictOldest() {
	front := g.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	g.order.Remove(front)
	delete(g.pending, key)
}

// reap periodically removes expired marks.
func (g *Guard) reap() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.runReap()
		case <-g.done:
			return
		}
	}
}

func (g *Guard) runReap() {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	for key, entry := range g.pending {
		if now.Sub(entry.timestamp) > g.ttl {
			g.order.Remove(entry.element)
			delete(g.pending, key)
		}
	}
}

// Close stops the reaper goroutine. Safe to call multiple times.
func (g *Guard) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		close(g.done)
		g.closed = true
	}
}
