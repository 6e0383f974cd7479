package event

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	EventAnnouncementStateChanged = "announcement.state_changed"
	EventAnnouncementChanged      = "announcement.changed"
)

// StateChangedPayload describes an announcement crossing a window boundary.
// Start and End use the wire timestamp layout.
type StateChangedPayload struct {
	Message string    `json:"message"`
	Start   string    `json:"start"`
	End     string    `json:"end"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	At      time.Time `json:"at"`
}

// ChangedPayload is published after an operator mutates the stored set.
type ChangedPayload struct {
	Action string `json:"action"`
	ID     string `json:"id"`
}

type Handler func(payload any)

const subscriberQueueSize = 256

type subscriber struct {
	event   string
	handler Handler
	queue   chan any
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	logger      *zap.Logger
	wg          sync.WaitGroup
	workers     sync.WaitGroup
	closed      bool
}

func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subscribers: make(map[string][]*subscriber),
		logger:      logger,
	}
}

// Subscribe registers handler for event. Each subscriber receives its events
// one at a time, in publish order.
func (b *Bus) Subscribe(event string, handler Handler) {
	if b == nil || handler == nil {
		return
	}

	eventName := strings.TrimSpace(event)
	if eventName == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	sub := &subscriber{
		event:   eventName,
		handler: handler,
		queue:   make(chan any, subscriberQueueSize),
	}
	b.subscribers[eventName] = append(b.subscribers[eventName], sub)

	b.workers.Add(1)
	go b.run(sub)
}

// Publish queues payload for every subscriber of event. It blocks only while
// a subscriber's queue is full.
func (b *Bus) Publish(event string, payload any) {
	if b == nil {
		return
	}

	eventName := strings.TrimSpace(event)
	if eventName == "" {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, sub := range b.subscribers[eventName] {
		b.wg.Add(1)
		sub.queue <- payload
	}
}

func (b *Bus) run(sub *subscriber) {
	defer b.workers.Done()
	for payload := range sub.queue {
		b.deliver(sub, payload)
	}
}

func (b *Bus) deliver(sub *subscriber, payload any) {
	defer b.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("event", sub.event),
				zap.Any("panic", r),
			)
		}
	}()
	sub.handler(payload)
}

// Wait blocks until every queued event has been handled.
func (b *Bus) Wait() {
	if b == nil {
		return
	}
	b.wg.Wait()
}

// Close stops accepting events, drains the queues and stops the workers.
func (b *Bus) Close() {
	if b == nil {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.queue)
		}
	}
	b.mu.Unlock()

	b.workers.Wait()
}
