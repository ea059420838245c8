// SPDX-License-Identifier: MIT

// Package metrics exposes prometheus collectors for the connection
// manager.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollTotal counts poll completions per host and result.
	PollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmixd_poll_total",
		Help: "Total poll attempts by host and result",
	}, []string{"host", "result"})

	// PollDuration tracks how long a full fetch+reconcile cycle takes.
	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vmixd_poll_duration_seconds",
		Help:    "Duration of poll cycles",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"host"})

	// ConnectionUp reports 1 while a host is connected, 0 otherwise.
	ConnectionUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vmixd_connection_up",
		Help: "Whether the connection to a host is currently established",
	}, []string{"host"})

	// ConnectionsActive is the number of registry entries.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vmixd_connections_active",
		Help: "Number of managed connections",
	})

	// EventsPublished counts bus publishes by event type.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmixd_events_published_total",
		Help: "Total events published to the bus by type",
	}, []string{"type"})

	// EventsDropped counts events dropped for slow subscribers.
	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vmixd_events_dropped_total",
		Help: "Total events dropped because a subscriber was not keeping up",
	})

	// StaleSnapshots counts snapshots discarded by the sequence guard.
	StaleSnapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vmixd_stale_snapshots_total",
		Help: "Snapshots discarded because a newer one was already reconciled",
	}, []string{"host"})
)

// ObservePoll records one poll cycle outcome.
func ObservePoll(host string, duration time.Duration, err error) {
	PollTotal.WithLabelValues(host, strconv.FormatBool(err == nil)).Inc()
	PollDuration.WithLabelValues(host).Observe(duration.Seconds())
}

// SetConnectionUp flips the per-host availability gauge.
func SetConnectionUp(host string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	ConnectionUp.WithLabelValues(host).Set(v)
}

// SetConnectionsActive records the registry size.
func SetConnectionsActive(n int) {
	ConnectionsActive.Set(float64(n))
}

// IncEventPublished counts one published event.
func IncEventPublished(eventType string) {
	EventsPublished.WithLabelValues(eventType).Inc()
}

// IncEventDropped counts one dropped event.
func IncEventDropped() {
	EventsDropped.Inc()
}

// IncStaleSnapshot counts one sequence-guard discard.
func IncStaleSnapshot(host string) {
	StaleSnapshots.WithLabelValues(host).Inc()
}

// ForgetHost removes per-host series after a disconnect so the scrape
// surface does not grow without bound.
func ForgetHost(host string) {
	PollTotal.DeletePartialMatch(prometheus.Labels{"host": host})
	PollDuration.DeletePartialMatch(prometheus.Labels{"host": host})
	ConnectionUp.DeleteLabelValues(host)
	StaleSnapshots.DeleteLabelValues(host)
}
