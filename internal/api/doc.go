// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

/*
Package api provides the local control API of a running supervisor and the
client used by the stop and status commands.

# Endpoints

	GET  /api/v1/health/live   liveness of the supervisor process
	GET  /api/v1/status        per-service state, pid, restarts and recent output
	POST /api/v1/stop          begin an ordered shutdown (202 Accepted)
	GET  /metrics              Prometheus metrics

Every /api/v1 response uses the APIResponse envelope:

	{"status":"success","data":{...},"metadata":{"timestamp":"...","request_id":"..."}}

# Middleware

Requests pass through chi's RequestID and Recoverer, debug request logging,
an optional per-IP rate limit (httprate) and Prometheus request metrics
labelled by route pattern.

# Client

	c := api.NewClient("127.0.0.1:7878")
	report, err := c.Status(ctx)
	if errors.Is(err, api.ErrNotRunning) {
	    // nothing is supervising on this address
	}
*/
package api
