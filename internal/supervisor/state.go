// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package supervisor

import (
	"fmt"
	"time"

	"github.com/tomtom215/procwarden/internal/process"
)

// State is the lifecycle state of one service.
type State int

const (
	// Pending services have not been launched yet.
	Pending State = iota
	// Starting services have a live process that is not ready yet.
	Starting
	// Ready services passed their readiness probe.
	Ready
	// Failed services crashed, failed to launch or failed their probe.
	Failed
	// Stopping services are being terminated during shutdown.
	Stopping
	// Stopped services exited cleanly or were stopped by shutdown.
	Stopped
)

var stateNames = [...]string{"pending", "starting", "ready", "failed", "stopping", "stopped"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state as its lowercase name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase state name.
func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown service state %q", text)
}

// Transition is reported to Options.Observer for every state change.
type Transition struct {
	Service string
	From    State
	To      State
	Reason  string
	Err     error
	At      time.Time
}

// ServiceStatus is a point-in-time view of one service.
type ServiceStatus struct {
	Name      string              `json:"name"`
	State     State               `json:"state"`
	Pid       int                 `json:"pid,omitempty"`
	Restarts  int                 `json:"restarts"`
	Permanent bool                `json:"permanent,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	LastExit  *process.ExitStatus `json:"last_exit,omitempty"`
	Since     time.Time           `json:"since"`
	Output    []process.Line      `json:"output,omitempty"`
}
