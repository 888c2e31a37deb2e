package distributed

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackerd/content"
)

func TestBatchQueueFlushesOnSize(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]content.Entry

	q := NewBatchQueue(2, time.Hour, func(b []content.Entry) {
		mu.Lock()
		flushed = append(flushed, b)
		mu.Unlock()
	})

	q.Enqueue(content.Empty("h1"))
	q.Enqueue(content.Empty("h2"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushed, 1)
	assert.Len(t, flushed[0], 2)
}

func TestBatchQueueFlushesOnInterval(t *testing.T) {
	done := make(chan []content.Entry, 1)
	q := NewBatchQueue(100, 20*time.Millisecond, func(b []content.Entry) {
		done <- b
	})

	q.Enqueue(content.Empty("h1"))

	select {
	case b := <-done:
		assert.Len(t, b, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for interval flush")
	}
}

func TestBatchQueueSuspendBlocksFlush(t *testing.T) {
	flushedCh := make(chan []content.Entry, 1)
	q := NewBatchQueue(1, time.Hour, func(b []content.Entry) {
		flushedCh <- b
	})

	guard := q.Suspend()
	q.Enqueue(content.Empty("h1"))

	select {
	case <-flushedCh:
		t.Fatal("flush fired while suspended")
	case <-time.After(50 * time.Millisecond):
	}

	guard.Release()
	q.Enqueue(content.Empty("h2"))

	select {
	case b := <-flushedCh:
		assert.Len(t, b, 2)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for post-release flush")
	}
}

func TestSuspendDoesNotNest(t *testing.T) {
	q := NewBatchQueue(1, time.Hour, func([]content.Entry) {})
	q.Suspend()

	assert.Panics(t, func() {
		q.Suspend()
	})
}

func TestSuspendGuardReleaseIsIdempotent(t *testing.T) {
	q := NewBatchQueue(1, time.Hour, func([]content.Entry) {})
	guard := q.Suspend()
	guard.Release()

	assert.NotPanics(t, func() {
		guard.Release()
	})
}
