// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

// Package probe decides when a started service is ready for its dependents.
//
// Four probes are available: TCP (a connection succeeds), HTTP (a GET
// returns the expected status), LogPattern (a line of the child's output
// matches a regular expression) and FixedDelay (a fixed time has passed
// since launch). Wait polls a probe with exponential backoff
// (cenkalti/backoff) until it is ready, the overall timeout elapses, the
// process exits, or the probe reports a permanent *ProbeError.
//
//	p, _ := probe.New(spec.Ready)
//	err := probe.Wait(ctx, p, handle, probe.OptionsFrom(spec.Ready), handle.Done())
package probe
