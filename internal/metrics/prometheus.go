package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Announcements = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "groupings_announcements",
		Help: "Announcements observed by the last sweep, by state",
	}, []string{"state"})

	AnnouncementTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupings_announcement_transitions_total",
		Help: "Announcement state transitions observed by the sweep job",
	}, []string{"from", "to"})

	UpstreamRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "groupings_upstream_request_duration_seconds",
		Help:    "Duration of groupings API requests, including retries",
		Buckets: prometheus.DefBuckets,
	})

	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "groupings_upstream_errors_total",
		Help: "Failed groupings API requests by kind",
	}, []string{"kind"})

	SSEClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "groupings_sse_clients",
		Help: "Current number of SSE clients connected",
	})
)

func SetAnnouncementCount(state string, count int) {
	label := strings.TrimSpace(state)
	if label == "" {
		label = "unknown"
	}
	if count < 0 {
		count = 0
	}
	Announcements.WithLabelValues(label).Set(float64(count))
}

func IncAnnouncementTransition(from, to string) {
	if strings.TrimSpace(from) == "" {
		from = "unknown"
	}
	if strings.TrimSpace(to) == "" {
		to = "unknown"
	}
	AnnouncementTransitions.WithLabelValues(from, to).Inc()
}

func ObserveUpstreamRequestDuration(duration time.Duration) {
	UpstreamRequestDuration.Observe(duration.Seconds())
}

func IncUpstreamError(kind string) {
	label := strings.TrimSpace(kind)
	if label == "" {
		label = "unknown"
	}
	UpstreamErrors.WithLabelValues(label).Inc()
}

func SetSSEClients(count int) {
	if count < 0 {
		count = 0
	}
	SSEClients.Set(float64(count))
}
