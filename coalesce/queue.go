// ABOUTME: Debounced id queue that batches bursty per-user lookups
// ABOUTME: Flush fires once per quiet window with the deduplicated id set

package coalesce

import (
	"sync"
	"time"
)

// DefaultDelay is the quiet window before a batch flushes.
const DefaultDelay = 200 * time.Millisecond

// Queue collects ids and flushes them as one batch after a quiet window.
// Ids enqueued while a flush is pending join the same batch.
type Queue struct {
	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
	delay   time.Duration
	flush   func(ids []string)
	stopped bool
}

// NewQueue creates a queue that calls flush with each batch. A delay of
// zero uses DefaultDelay. The flush function runs on the timer goroutine.
func NewQueue(delay time.Duration, flush func(ids []string)) *Queue {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Queue{
		pending: make(map[string]struct{}),
		delay:   delay,
		flush:   flush,
	}
}

// Enqueue adds an id to the next batch, arming the flush timer if no
// batch is pending yet.
func (q *Queue) Enqueue(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	q.pending[id] = struct{}{}
	if q.timer == nil {
		q.timer = time.AfterFunc(q.delay, q.Flush)
	}
}

// Flush drains the pending set immediately and invokes the flush
// function with its contents. A no-op when nothing is pending.
func (q *Queue) Flush() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	ids := make([]string, 0, len(q.pending))
	for id := range q.pending {
		ids = append(ids, id)
	}
	q.pending = make(map[string]struct{})
	q.mu.Unlock()

	q.flush(ids)
}

// Stop cancels any pending flush and rejects further enqueues. Ids
// already pending are dropped.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	q.pending = make(map[string]struct{})
}
