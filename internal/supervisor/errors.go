// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package supervisor

import (
	"errors"
	"strings"

	"github.com/tomtom215/procwarden/internal/probe"
	"github.com/tomtom215/procwarden/internal/process"
)

var (
	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("supervisor already running")

	// ErrUnexpectedExit matches every *ExitError.
	ErrUnexpectedExit = errors.New("unexpected exit")
)

// ExitError reports that a service's process exited while the supervisor
// expected it to keep running.
type ExitError struct {
	Service string
	Status  process.ExitStatus

	// BeforeReady is set when the process exited while still Starting.
	BeforeReady bool
}

func (e *ExitError) Error() string {
	if e.BeforeReady {
		return e.Service + ": exited before ready (" + e.Status.String() + ")"
	}
	return e.Service + ": unexpected exit (" + e.Status.String() + ")"
}

func (e *ExitError) Unwrap() []error {
	if e.BeforeReady {
		return []error{ErrUnexpectedExit, probe.ErrProcessExited}
	}
	return []error{ErrUnexpectedExit}
}

// StartupFailedError is returned by Run when at least one service was
// permanently Failed by the time startup settled.
type StartupFailedError struct {
	Services []string
	Errs     []error
}

func (e *StartupFailedError) Error() string {
	var b strings.Builder
	b.WriteString("startup failed: ")
	for i, name := range e.Services {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(name)
		if i < len(e.Errs) && e.Errs[i] != nil {
			b.WriteString(": ")
			b.WriteString(e.Errs[i].Error())
		}
	}
	return b.String()
}

func (e *StartupFailedError) Unwrap() []error {
	return e.Errs
}
