package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	CrackedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_cracked_total",
			Help: "Total plaintexts recovered, by stage",
		},
		[]string{"stage"},
	)

	BatchesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_batches_completed_total",
			Help: "Total batches driven to completion, by stage",
		},
		[]string{"stage"},
	)

	AttackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sluice_attack_duration_seconds",
			Help:    "Wall-clock duration of attacks in seconds",
			Buckets: prometheus.ExponentialBuckets(30, 2, 12),
		},
		[]string{"attack"},
	)

	AttackCracks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_attack_cracks_total",
			Help: "Total cracks per attack across all batches",
		},
		[]string{"attack"},
	)

	// Remote host metrics
	SSHReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sluice_ssh_reconnects_total",
			Help: "Total successful SSH reconnections after a drop",
		},
	)

	// Feedback metrics
	OracleQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_oracle_queries_total",
			Help: "Breach-count oracle queries by outcome",
		},
		[]string{"outcome"},
	)

	FeedbackRoots = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sluice_feedback_roots_total",
			Help: "New wordlist roots emitted by the feedback analyzer",
		},
	)
)

func init() {
	prometheus.MustRegister(CrackedTotal)
	prometheus.MustRegister(BatchesCompleted)
	prometheus.MustRegister(AttackDuration)
	prometheus.MustRegister(AttackCracks)
	prometheus.MustRegister(SSHReconnects)
	prometheus.MustRegister(OracleQueries)
	prometheus.MustRegister(FeedbackRoots)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
