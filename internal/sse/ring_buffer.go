package sse

import (
	"strconv"
	"strings"
	"sync"
)

// RingBuffer keeps the most recent events for Last-Event-ID replay.
type RingBuffer struct {
	mu    sync.RWMutex
	items []bufferedEvent
	head  int
	full  bool
}

type bufferedEvent struct {
	seq   int64
	event SSEEvent
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultReplaySize
	}
	return &RingBuffer{items: make([]bufferedEvent, capacity)}
}

func (rb *RingBuffer) Push(event SSEEvent) {
	if rb == nil {
		return
	}

	seq, err := strconv.ParseInt(event.ID, 10, 64)
	if err != nil {
		seq = -1
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.items[rb.head] = bufferedEvent{seq: seq, event: event}
	rb.head = (rb.head + 1) % len(rb.items)
	if rb.head == 0 {
		rb.full = true
	}
}

func (rb *RingBuffer) Len() int {
	if rb == nil {
		return 0
	}
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.items)
	}
	return rb.head
}

// Since returns buffered events newer than lastID, oldest first. An empty or
// unparsable lastID replays everything still buffered.
func (rb *RingBuffer) Since(lastID string) []SSEEvent {
	if rb == nil {
		return nil
	}

	lastSeq, err := strconv.ParseInt(strings.TrimSpace(lastID), 10, 64)
	filter := err == nil

	rb.mu.RLock()
	defer rb.mu.RUnlock()

	start, size := 0, rb.head
	if rb.full {
		start, size = rb.head, len(rb.items)
	}

	out := make([]SSEEvent, 0, size)
	for i := 0; i < size; i++ {
		item := rb.items[(start+i)%len(rb.items)]
		if filter && item.seq <= lastSeq {
			continue
		}
		out = append(out, item.event)
	}
	return out
}
