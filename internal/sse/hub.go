package sse

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"groupings-hub/internal/metrics"
)

const (
	heartbeatInterval     = 30 * time.Second
	backpressureFullLimit = 5
	defaultReplaySize     = 256
)

type SSEHub struct {
	clients  sync.Map
	eventBuf *RingBuffer

	logger *zap.Logger
	stopCh chan struct{}
}

func NewHub(logger *zap.Logger) *SSEHub {
	hub := newHub(logger)
	go hub.startHeartbeat()
	return hub
}

func newHub(logger *zap.Logger) *SSEHub {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SSEHub{
		eventBuf: NewRingBuffer(defaultReplaySize),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (h *SSEHub) Register(client *SSEClient) {
	if h == nil || client == nil || client.ID == "" {
		return
	}

	h.clients.Store(client.ID, client)
	metrics.SetSSEClients(h.ConnectedCount())
}

func (h *SSEHub) Unregister(clientID string) {
	if h == nil || clientID == "" {
		return
	}

	value, loaded := h.clients.LoadAndDelete(clientID)
	if !loaded {
		return
	}

	if client, ok := value.(*SSEClient); ok {
		client.Close()
	}
	metrics.SetSSEClients(h.ConnectedCount())
}

func (h *SSEHub) Broadcast(event SSEEvent) {
	if h == nil {
		return
	}

	// Heartbeats are not worth replaying.
	if event.Type != EventHeartbeat {
		h.eventBuf.Push(event)
	}
	h.clients.Range(func(_, value interface{}) bool {
		if client, ok := value.(*SSEClient); ok {
			h.dispatch(client, event)
		}
		return true
	})
}

func (h *SSEHub) Since(lastID string) []SSEEvent {
	if h == nil {
		return nil
	}
	return h.eventBuf.Since(lastID)
}

func (h *SSEHub) Close() {
	if h == nil {
		return
	}

	select {
	case <-h.stopCh:
		return
	default:
		close(h.stopCh)
	}

	h.clients.Range(func(key, _ interface{}) bool {
		if id, ok := key.(string); ok {
			h.Unregister(id)
		}
		return true
	})
}

func (h *SSEHub) ConnectedCount() int {
	if h == nil {
		return 0
	}

	count := 0
	h.clients.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}

func (h *SSEHub) dispatch(client *SSEClient, event SSEEvent) {
	if client == nil {
		return
	}

	select {
	case <-client.Done:
		return
	case client.Ch <- event:
		client.MarkDispatchSuccess()
		return
	default:
		streak := client.MarkDispatchFull()
		h.logger.Warn("drop sse event due to full buffer",
			zap.String("client_id", client.ID),
			zap.String("type", event.Type),
			zap.Int32("full_streak", streak),
		)
		if streak >= backpressureFullLimit {
			h.logger.Warn("disconnect slow sse client due to backpressure",
				zap.String("client_id", client.ID),
				zap.Int32("full_streak", streak),
			)
			h.Unregister(client.ID)
		}
	}
}

func (h *SSEHub) startHeartbeat() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return
		case now := <-ticker.C:
			heartbeat := NewEvent(EventHeartbeat, map[string]interface{}{
				"ts": now.UTC().Format(time.RFC3339Nano),
			})
			h.Broadcast(heartbeat)
		}
	}
}
