// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package process

import (
	"fmt"
	"os"
	"syscall"
)

// ExitStatus describes how a process ended.
type ExitStatus struct {
	// Code is the exit code, or -1 when the process was killed by a signal.
	Code int `json:"code"`

	// Signaled is true when a signal terminated the process.
	Signaled bool `json:"signaled"`

	// Signal is the terminating signal name, e.g. "terminated".
	Signal string `json:"signal,omitempty"`
}

// Success reports a clean exit with code 0.
func (s ExitStatus) Success() bool {
	return !s.Signaled && s.Code == 0
}

func (s ExitStatus) String() string {
	if s.Signaled {
		return "signal: " + s.Signal
	}
	return fmt.Sprintf("exit code %d", s.Code)
}

// exitStatusFrom reads the result of cmd.Wait. ps is nil only when the wait
// itself failed, which is reported as code -1.
func exitStatusFrom(ps *os.ProcessState) ExitStatus {
	if ps == nil {
		return ExitStatus{Code: -1}
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitStatus{Code: -1, Signaled: true, Signal: ws.Signal().String()}
	}
	return ExitStatus{Code: ps.ExitCode()}
}
