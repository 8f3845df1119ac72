// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package process

import (
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
)

// Launch failure reasons. A *LaunchError matches exactly one of them with
// errors.Is.
var (
	ErrExecutableNotFound = errors.New("executable not found")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrBadWorkDir         = errors.New("working directory unusable")
	ErrLaunchFailed       = errors.New("launch failed")
)

// ErrStopTimeout is returned by Stop when the process did not exit even
// after SIGKILL and the drain timeout.
var ErrStopTimeout = errors.New("process did not exit after kill")

// LaunchError reports that a service's process could not be started.
type LaunchError struct {
	Service string
	Command string
	Reason  error
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s (%s): %v: %v", e.Service, e.Command, e.Reason, e.Err)
}

// Unwrap exposes both the reason sentinel and the underlying OS error.
func (e *LaunchError) Unwrap() []error {
	return []error{e.Reason, e.Err}
}

// classifyStartError maps an exec.Cmd.Start error to a launch reason.
func classifyStartError(err error) error {
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return ErrExecutableNotFound
	case errors.Is(err, fs.ErrPermission):
		return ErrPermissionDenied
	default:
		return ErrLaunchFailed
	}
}
