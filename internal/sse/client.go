package sse

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const clientBufferSize = 64

type SSEClient struct {
	ID   string
	Ch   chan SSEEvent
	Done chan struct{}

	fullStreak atomic.Int32
	closeOnce  sync.Once
}

func NewClient() *SSEClient {
	return &SSEClient{
		ID:   uuid.NewString(),
		Ch:   make(chan SSEEvent, clientBufferSize),
		Done: make(chan struct{}),
	}
}

func (c *SSEClient) Close() {
	if c == nil {
		return
	}

	c.closeOnce.Do(func() {
		close(c.Done)
	})
}

func (c *SSEClient) MarkDispatchSuccess() {
	if c == nil {
		return
	}
	c.fullStreak.Store(0)
}

func (c *SSEClient) MarkDispatchFull() int32 {
	if c == nil {
		return 0
	}
	return c.fullStreak.Add(1)
}
