// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/procwarden/internal/logging"
	"github.com/tomtom215/procwarden/internal/supervisor"
)

// Controller is what the control API needs from the supervisor.
// Satisfied by *supervisor.Supervisor.
type Controller interface {
	Status() []supervisor.ServiceStatus
	Stop()
}

// StatusReport is the payload of GET /api/v1/status.
type StatusReport struct {
	RunID     string                     `json:"run_id,omitempty"`
	Version   string                     `json:"version,omitempty"`
	StartedAt time.Time                  `json:"started_at"`
	Services  []supervisor.ServiceStatus `json:"services"`
}

// StopResponse is the payload of POST /api/v1/stop.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// LiveResponse is the payload of GET /api/v1/health/live.
type LiveResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Handler serves the control endpoints.
type Handler struct {
	ctrl      Controller
	runID     string
	version   string
	startTime time.Time
}

// NewHandler creates a Handler for ctrl.
func NewHandler(ctrl Controller, runID, version string) *Handler {
	return &Handler{
		ctrl:      ctrl,
		runID:     runID,
		version:   version,
		startTime: time.Now(),
	}
}

// HealthLive reports that the supervisor process is up.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, LiveResponse{
		Status:        "alive",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// Status returns every service's state in declaration order.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, StatusReport{
		RunID:     h.runID,
		Version:   h.version,
		StartedAt: h.startTime,
		Services:  h.ctrl.Status(),
	})
}

// Stop requests an ordered shutdown and returns immediately.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	logging.Info().Str("request_id", requestID(r)).Msg("Shutdown requested through control API")
	h.ctrl.Stop()
	respondSuccess(w, r, http.StatusAccepted, StopResponse{Stopping: true})
}

func (h *Handler) notFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Not found")
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
}
