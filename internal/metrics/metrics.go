// Package metrics exposes Prometheus instrumentation for the running
// server: connection counts, frame traffic, replay rejections, and lobby
// queue depth, grounded on the corpus's client_golang usage.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beer_connections_total",
		Help: "Total TCP connections accepted.",
	})

	MatchesInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beer_matches_in_progress",
		Help: "Number of matches currently running (0 or 1).",
	})

	LobbyQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beer_lobby_queue_depth",
		Help: "Number of clients waiting in the lobby queue.",
	})

	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beer_frames_sent_total",
		Help: "Frames sent, by packet type.",
	}, []string{"packet_type"})

	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beer_frames_received_total",
		Help: "Frames received, by packet type.",
	}, []string{"packet_type"})

	ReplayRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beer_replay_rejected_total",
		Help: "Frames dropped by the replay window as duplicate or stale.",
	})

	ReconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beer_reconnect_attempts_total",
		Help: "Reconnect attempts, by outcome (success, duplicate, timeout).",
	}, []string{"outcome"})
)

// Serve starts the /metrics HTTP endpoint on addr; it blocks, so callers
// should run it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
