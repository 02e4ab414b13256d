package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "scrap_tracking", Name: "transitions_total", Help: "Lifecycle transitions applied, by trigger"},
		[]string{"trigger"},
	)
	ReconciliationsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "scrap_tracking", Name: "reconciliations_total", Help: "Authoritative states adopted"})
	MilestonesTotal      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "scrap_tracking", Name: "milestones_total", Help: "Milestone evaluations fired"})
	ConflictsTotal       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "scrap_tracking", Name: "slot_conflicts_total", Help: "Advisory pickup-slot conflicts detected"})

	LocationUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "scrap_tracking", Name: "location_updates_total", Help: "Scrapper location reports ingested"})
	BroadcastsTotal      = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "scrap_tracking", Name: "broadcasts_total", Help: "Location broadcasts sent, by channel"},
		[]string{"channel"},
	)
	ObserversConnected = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "scrap_tracking", Name: "observers_connected", Help: "Live-tracking WebSocket observers"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "scrap_tracking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scrap_tracking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
