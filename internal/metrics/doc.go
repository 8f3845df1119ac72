// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

/*
Package metrics provides Prometheus metrics for the supervisor.

Collectors are registered with the default registry through promauto and
served by the control API at /metrics:

	curl http://127.0.0.1:7878/metrics

# Available Metrics

Service lifecycle:
  - procwarden_service_state: 1 for the current state (gauge)
    Labels: service, state
  - procwarden_service_transitions_total: State transitions (counter)
    Labels: service, from, to
  - procwarden_service_launches_total: Launch attempts (counter)
    Labels: service, result
  - procwarden_service_restarts_total: Scheduled restarts (counter)
    Labels: service
  - procwarden_service_exits_total: Unexpected exits (counter)
    Labels: service, kind
  - procwarden_service_ready_timestamp_seconds: Last time ready (gauge)
    Labels: service

Readiness and shutdown:
  - procwarden_probe_wait_duration_seconds: Launch-to-outcome time (histogram)
    Labels: service, result
  - procwarden_stop_duration_seconds: Stop time (histogram)
    Labels: service
  - procwarden_forced_kills_total: Stops that needed SIGKILL (counter)
    Labels: service

Control API:
  - procwarden_api_requests_total (counter)
    Labels: method, endpoint, status_code
  - procwarden_api_request_duration_seconds (histogram)
    Labels: method, endpoint
*/
package metrics
