// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package main

import (
	"errors"

	"github.com/tomtom215/procwarden/internal/config"
	"github.com/tomtom215/procwarden/internal/graph"
	"github.com/tomtom215/procwarden/internal/supervisor"
)

// Exit codes
const (
	exitOK            = 0
	exitRuntime       = 1
	exitConfig        = 2
	exitCycle         = 3
	exitStartupFailed = 4

	// Bad flags share the configuration code; flag.ExitOnError uses 2 too.
	exitUsage = exitConfig
)

// usageError marks a malformed command line.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exitCodeFor maps an error returned by a command to the process exit code.
func exitCodeFor(err error) int {
	var (
		cfgErr     *config.ConfigError
		cycleErr   *graph.CycleError
		startupErr *supervisor.StartupFailedError
		usageErr   *usageError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &cycleErr):
		return exitCycle
	case errors.As(err, &cfgErr):
		return exitConfig
	case errors.As(err, &usageErr):
		return exitUsage
	case errors.As(err, &startupErr):
		return exitStartupFailed
	default:
		return exitRuntime
	}
}
