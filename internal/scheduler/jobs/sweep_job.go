package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"groupings-hub/internal/announcement"
	"groupings-hub/internal/event"
	"groupings-hub/internal/metrics"
)

const defaultSweepTimeout = 30 * time.Second

var stateRank = map[announcement.State]int{
	announcement.StateFuture:  0,
	announcement.StateActive:  1,
	announcement.StateExpired: 2,
}

type AnnouncementReader interface {
	Current(ctx context.Context) ([]announcement.Announcement, error)
}

type Publisher interface {
	Publish(event string, payload any)
}

// SweepJob periodically reads the classified announcements and publishes an
// event whenever one has changed state since the previous sweep. Its memory
// only feeds events and metrics; responses are always classified afresh.
type SweepJob struct {
	reader   AnnouncementReader
	bus      Publisher
	clock    announcement.Clock
	location *time.Location
	logger   *zap.Logger
	timeout  time.Duration

	mu     sync.Mutex
	seen   map[string]announcement.State
	seeded bool
}

func NewSweepJob(
	reader AnnouncementReader,
	bus Publisher,
	clock announcement.Clock,
	location *time.Location,
	logger *zap.Logger,
) *SweepJob {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = announcement.SystemClock{}
	}
	if location == nil {
		location = time.Local
	}

	return &SweepJob{
		reader:   reader,
		bus:      bus,
		clock:    clock,
		location: location,
		logger:   logger,
		timeout:  defaultSweepTimeout,
		seen:     make(map[string]announcement.State),
	}
}

func (j *SweepJob) Sweep() {
	if j == nil || j.reader == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if _, err := j.Run(ctx); err != nil {
		j.logger.Warn("announcement sweep failed", zap.Error(err))
	}
}

// Run performs one sweep and returns the transitions it published. The first
// successful sweep only records states. Concurrent calls are serialized so a
// slow read can never be applied after a newer one.
func (j *SweepJob) Run(ctx context.Context) ([]event.StateChangedPayload, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	items, err := j.reader.Current(ctx)
	if err != nil {
		return nil, err
	}

	for state, count := range announcement.CountByState(items) {
		metrics.SetAnnouncementCount(string(state), count)
	}

	at := j.clock.Now()
	next := make(map[string]announcement.State, len(items))
	var transitions []event.StateChangedPayload
	for _, item := range items {
		key := item.Key()
		next[key] = item.State

		prev, ok := j.seen[key]
		if !j.seeded || !ok || prev == item.State {
			continue
		}
		// States only move forward; a backwards reading keeps what was seen.
		if stateRank[item.State] < stateRank[prev] {
			next[key] = prev
			continue
		}
		transitions = append(transitions, event.StateChangedPayload{
			Message: item.Message,
			Start:   announcement.FormatTimestamp(item.Start, j.location),
			End:     announcement.FormatTimestamp(item.End, j.location),
			From:    string(prev),
			To:      string(item.State),
			At:      at.UTC(),
		})
	}
	j.seen = next
	j.seeded = true

	for _, transition := range transitions {
		j.logger.Info("announcement state changed",
			zap.String("message", transition.Message),
			zap.String("from", transition.From),
			zap.String("to", transition.To),
		)
		if j.bus != nil {
			j.bus.Publish(event.EventAnnouncementStateChanged, transition)
		}
	}
	return transitions, nil
}
