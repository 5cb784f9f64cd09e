// Package telemetry exposes prometheus counters for the sync pipeline.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_events_received_total",
		Help: "Inbound transport events by type.",
	}, []string{"type"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_events_dropped_total",
		Help: "Events dropped at the reconciliation boundary by reason.",
	}, []string{"reason"})

	MutationsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_mutations_applied_total",
		Help: "Thread store mutations applied by operation.",
	}, []string{"op"})

	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_optimistic_rollbacks_total",
		Help: "Optimistic sends rolled back after failure or timeout.",
	})

	CacheFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_cache_failures_total",
		Help: "Offline cache read/write failures by operation.",
	}, []string{"op"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chatsync_event_queue_depth",
		Help: "Events currently buffered in the inbound queue.",
	})
)
