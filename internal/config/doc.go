// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

/*
Package config loads and validates the procwarden configuration.

The configuration is read once at startup; there is no reload. It holds the
supervisor settings (logging, control API, shutdown budget) and the list of
services to supervise.

# Configuration Sources

Koanf merges three layers, lowest priority first:

 1. Built-in defaults (defaultConfig)
 2. A YAML file: the --config flag, $PROCWARDEN_CONFIG, or the first of
    procwarden.yaml, procwarden.yml, /etc/procwarden/procwarden.yaml
 3. Environment variables for supervisor settings

Services can only be declared in the file.

# Environment Variables

  - PROCWARDEN_CONFIG: config file path
  - PROCWARDEN_LOG_LEVEL: trace, debug, info, warn, error (default: info)
  - PROCWARDEN_LOG_FORMAT: console or json (default: console)
  - PROCWARDEN_LOG_CALLER: include caller file:line (default: false)
  - PROCWARDEN_CONTROL_ENABLED: serve the control API (default: true)
  - PROCWARDEN_CONTROL_ADDR: control API address (default: 127.0.0.1:7878)
  - PROCWARDEN_CONTROL_RATE_LIMIT: control requests per minute (default: 120)
  - PROCWARDEN_SHUTDOWN_TIMEOUT: whole-tree shutdown budget (default: sum of
    grace periods and kill drain timeouts + 15s)
  - PROCWARDEN_LOCK_FILE: instance lock file (default: <config file>.lock)

# Example

	services:
	  - name: web
	    command: python3
	    args: [src/face_rec_web.py]
	    ready:
	      type: tcp
	      port: 5000
	    restart: on-failure
	  - name: tunnel
	    command: ngrok
	    args: [http, "5000"]
	    depends_on: [web]

# Validation

Load applies per-service defaults, validates struct tags through the
validation package, then checks names, dependency references and readiness
rules. Every failure is a *ConfigError. Dependency cycles are left to the
graph package.
*/
package config
