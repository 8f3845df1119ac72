// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// States lists every service state label, so ServiceState can zero the
// states a service is not in.
var States = []string{"pending", "starting", "ready", "failed", "stopping", "stopped"}

var (
	// Service lifecycle
	ServiceState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "procwarden_service_state",
			Help: "Current state of each service (1 for the active state, 0 otherwise)",
		},
		[]string{"service", "state"},
	)

	ServiceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procwarden_service_transitions_total",
			Help: "Total number of service state transitions",
		},
		[]string{"service", "from", "to"},
	)

	ServiceLaunches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procwarden_service_launches_total",
			Help: "Total number of process launch attempts",
		},
		[]string{"service", "result"}, // "ok", "not_found", "permission_denied", "bad_dir", "error"
	)

	ServiceRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procwarden_service_restarts_total",
			Help: "Total number of scheduled service restarts",
		},
		[]string{"service"},
	)

	ServiceExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procwarden_service_exits_total",
			Help: "Total number of unexpected process exits",
		},
		[]string{"service", "kind"}, // "clean", "error", "signal"
	)

	ServiceReadyTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "procwarden_service_ready_timestamp_seconds",
			Help: "Unix timestamp at which the service last became ready",
		},
		[]string{"service"},
	)

	// Readiness probes
	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procwarden_probe_wait_duration_seconds",
			Help:    "Time from launch until the readiness wait finished",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "result"}, // "ready", "timeout", "exited", "error"
	)

	// Shutdown
	StopDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procwarden_stop_duration_seconds",
			Help:    "Time taken to stop a service",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service"},
	)

	ForcedKills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procwarden_forced_kills_total",
			Help: "Total number of stops that needed SIGKILL",
		},
		[]string{"service"},
	)

	// Control API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "procwarden_api_requests_total",
			Help: "Total number of control API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "procwarden_api_request_duration_seconds",
			Help:    "Duration of control API requests in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordTransition updates the state gauges and transition counter.
func RecordTransition(service, from, to string) {
	ServiceTransitions.WithLabelValues(service, from, to).Inc()
	for _, s := range States {
		v := 0.0
		if s == to {
			v = 1
		}
		ServiceState.WithLabelValues(service, s).Set(v)
	}
	if to == "ready" {
		ServiceReadyTimestamp.WithLabelValues(service).Set(float64(time.Now().Unix()))
	}
}

// RecordLaunch records a launch attempt. result is "ok" or a failure reason.
func RecordLaunch(service, result string) {
	ServiceLaunches.WithLabelValues(service, result).Inc()
}

// RecordRestart records a scheduled restart.
func RecordRestart(service string) {
	ServiceRestarts.WithLabelValues(service).Inc()
}

// RecordExit records an unexpected process exit.
func RecordExit(service, kind string) {
	ServiceExits.WithLabelValues(service, kind).Inc()
}

// RecordProbe records how a readiness wait ended and how long it took.
func RecordProbe(service, result string, duration time.Duration) {
	ProbeDuration.WithLabelValues(service, result).Observe(duration.Seconds())
}

// RecordStop records a service stop.
func RecordStop(service string, duration time.Duration, forced bool) {
	StopDuration.WithLabelValues(service).Observe(duration.Seconds())
	if forced {
		ForcedKills.WithLabelValues(service).Inc()
	}
}

// RecordAPIRequest records a control API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
