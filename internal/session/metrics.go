package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cart_session_commits_total",
			Help: "Total number of debounced quantity commits sent to the basket API",
		},
		[]string{"outcome"},
	)

	supersededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cart_session_commits_superseded_total",
			Help: "Total number of pending quantity commits cancelled by a later change",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cart_sessions_active",
			Help: "Number of live cart sessions held by the registry",
		},
	)
)
