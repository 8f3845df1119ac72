// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

// Package logging provides centralized zerolog-based logging for procwarden.
//
// A single global logger is configured once from main via Init and used
// through the package-level helpers:
//
//	logging.Init(logging.Config{Level: "debug", Format: "json"})
//	logging.Info().Str("service", "web").Msg("Service ready")
//
// Child output is forwarded through ForService loggers so every line carries
// the owning service name. The slog adapter (NewSlogLogger) exists for
// sutureslog, which only speaks log/slog.
//
// # Configuration
//
// Environment variables (read by internal/config, not by this package):
//   - PROCWARDEN_LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - PROCWARDEN_LOG_FORMAT: json, console (default: console)
//
// Always terminate log chains with .Msg() or .Send().
package logging
