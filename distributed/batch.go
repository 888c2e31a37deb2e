package distributed

import (
	"sync"
	"time"

	"trackerd/content"
)

// BatchQueue buffers outgoing update events into nagle-style batches:
// flushed once batchSize entries accumulate or interval elapses,
// whichever comes first. Flushing may be suspended by a scoped handle
// (e.g. while a checkpoint is being taken); suspensions don't nest --
// only one level is tracked, matching section 5's shared-resource policy.
type BatchQueue struct {
	mu        sync.Mutex
	batchSize int
	interval  time.Duration
	pending   []content.Entry
	suspended bool
	timer     *time.Timer
	flush     func([]content.Entry)
}

// NewBatchQueue returns a queue that calls flush with accumulated
// entries whenever a batch is ready.
func NewBatchQueue(batchSize int, interval time.Duration, flush func([]content.Entry)) *BatchQueue {
	return &BatchQueue{batchSize: batchSize, interval: interval, flush: flush}
}

// Enqueue adds e to the pending batch, triggering an immediate flush if
// the batch is now full and the queue isn't suspended.
func (q *BatchQueue) Enqueue(e content.Entry) {
	q.mu.Lock()
	q.pending = append(q.pending, e)
	full := len(q.pending) >= q.batchSize
	if q.timer == nil && !q.suspended {
		q.timer = time.AfterFunc(q.interval, q.flushNow)
	}
	suspended := q.suspended
	q.mu.Unlock()

	if full && !suspended {
		q.flushNow()
	}
}

func (q *BatchQueue) flushNow() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
	if q.suspended || len(q.pending) == 0 {
		q.mu.Unlock()
		return
	}
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	q.flush(batch)
}

// SuspendGuard resumes flushing when Release is called; the zero value
// is not meaningful, only a value returned by Suspend.
type SuspendGuard struct {
	q        *BatchQueue
	released bool
}

// Release resumes flushing. Calling Release more than once is a no-op.
func (g *SuspendGuard) Release() {
	g.q.mu.Lock()
	defer g.q.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	g.q.suspended = false
}

// Suspend pauses flushing until the returned guard is released. Calling
// Suspend while already suspended panics rather than silently stacking,
// since nothing here can recover the original release ownership once
// that invariant is broken.
func (q *BatchQueue) Suspend() *SuspendGuard {
	q.mu.Lock()
	if q.suspended {
		q.mu.Unlock()
		panic("distributed: batch queue suspension does not nest")
	}
	q.suspended = true
	q.mu.Unlock()
	return &SuspendGuard{q: q}
}
