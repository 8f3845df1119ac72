// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

// Package services adapts procwarden components to suture.Service so they
// can run in the supervision tree.
//
//   - SupervisorService runs the process coordinator once and reports its
//     result through Err.
//   - HTTPServerService runs the control API server and shuts it down
//     gracefully when the tree stops.
package services
