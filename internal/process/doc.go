// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

// Package process starts and stops the external programs procwarden
// supervises.
//
// A Handle owns one child process. It drains stdout and stderr continuously
// into a bounded RingBuffer of lines, so a chatty child never blocks on a
// full pipe and the last lines are available when it fails. Exactly one
// goroutine calls cmd.Wait; Wait, Done and Stop all observe its result.
//
// # Stopping
//
// Stop sends SIGTERM to the child's process group, escalates to SIGKILL
// after the grace period, and gives up after a further drain timeout:
//
//	forced, err := h.Stop(10 * time.Second)
//
// On Linux children also receive SIGTERM if procwarden itself dies
// (Pdeathsig).
//
// # Launch errors
//
// Start returns *LaunchError, which matches one of ErrExecutableNotFound,
// ErrPermissionDenied, ErrBadWorkDir or ErrLaunchFailed with errors.Is.
package process
