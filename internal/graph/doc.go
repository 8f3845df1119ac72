// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

// Package graph orders services by their depends_on declarations.
//
// Order is Kahn's algorithm with ties broken by declaration order, so the
// same service list always produces the same start order. Shutdown uses the
// reverse of that order. A cycle, including a service that depends on
// itself, is reported as *CycleError with one concrete cycle path:
//
//	dependency cycle: api -> worker -> api
package graph
