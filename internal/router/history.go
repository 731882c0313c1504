package router

import (
	"sync"
)

// History is a thread-safe, fixed-capacity ring of records. Snapshot returns
// them newest first; pushing into a full history evicts the oldest record.
type History[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // index of the oldest record
	count    int
	capacity int

	// Stats
	totalPushed int64
	evicted     int64
}

// NewHistory creates a history holding at most capacity records.
func NewHistory[T any](capacity int) *History[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &History[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Push adds item as the newest record.
func (h *History[T]) Push(item T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tail := (h.head + h.count) % h.capacity
	h.buf[tail] = item
	if h.count == h.capacity {
		// Overwrote the oldest record.
		h.head = (h.head + 1) % h.capacity
		h.evicted++
	} else {
		h.count++
	}
	h.totalPushed++
}

// Snapshot returns a copy of the records, newest first.
func (h *History[T]) Snapshot() []T {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]T, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.head+h.count-1-i)%h.capacity]
	}
	return out
}

// Len returns the current number of records.
func (h *History[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Stats returns history statistics.
func (h *History[T]) Stats() HistoryStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HistoryStats{
		Count:       h.count,
		Capacity:    h.capacity,
		TotalPushed: h.totalPushed,
		Evicted:     h.evicted,
	}
}

// HistoryStats contains history statistics.
type HistoryStats struct {
	Count       int
	Capacity    int
	TotalPushed int64
	Evicted     int64
}
