// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repcoach_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "repcoach_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "repcoach_active_sessions",
			Help: "Number of workout sessions in progress",
		},
	)

	SetsLogged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repcoach_sets_logged_total",
			Help: "Sets logged, by mode (reps or timed)",
		},
		[]string{"mode"},
	)

	SyncRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repcoach_sync_requests_total",
			Help: "Remote workout sync calls, by operation and result",
		},
		[]string{"op", "result"},
	)

	Transcripts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repcoach_transcripts_total",
			Help: "Final transcripts received, by outcome (accepted, echo, short)",
		},
		[]string{"outcome"},
	)

	EchoWordsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "repcoach_echo_words_dropped_total",
			Help: "Transcript words removed as self-heard speech",
		},
	)
)
