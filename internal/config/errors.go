// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package config

import "errors"

// Sentinel errors for semantic checks. They are wrapped in a ConfigError.
var (
	ErrDuplicateService  = errors.New("duplicate service name")
	ErrUnknownDependency = errors.New("unknown dependency")
	ErrInvalidReadiness  = errors.New("invalid readiness rule")
	ErrInvalidLogLevel   = errors.New("invalid log level")
)

// ConfigError reports a malformed, missing or invalid configuration. It is
// fatal: nothing is started when Load returns one.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "config: " + e.Err.Error()
	}
	return "config " + e.Path + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
