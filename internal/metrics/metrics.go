// Package metrics registers the Prometheus metrics exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BridgeActions counts bridge calls by action and outcome
	// ("success", "error", "not_initialized").
	BridgeActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagbridge_actions_total",
			Help: "Total bridge actions handled.",
		},
		[]string{"action", "status"},
	)

	// ContainerLoads counts completed container loads by source and outcome.
	ContainerLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagbridge_container_loads_total",
			Help: "Total container loads by source.",
		},
		[]string{"source", "status"},
	)

	// HitsQueued counts hits created by tag triggers.
	HitsQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tagbridge_hits_queued_total",
			Help: "Total hits queued for dispatch.",
		},
	)

	// HitsDispatched counts hits handed to the sink, by outcome.
	HitsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tagbridge_hits_dispatched_total",
			Help: "Total hits dispatched to the sink.",
		},
		[]string{"status"},
	)

	// SessionReady is 1 while the bridge session is ready.
	SessionReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tagbridge_session_ready",
			Help: "Whether the bridge session has a loaded container (1) or not (0).",
		},
	)
)
