// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

/*
Package supervisor runs a set of external programs in dependency order and
keeps them running.

# Overview

Two supervisors cooperate. The Supervisor type is the coordinator for the
child processes; it runs inside a suture v4 tree (Tree) next to the control
API server:

	Root ("procwarden")
	├── core-layer
	│   └── SupervisorService (runs Supervisor.Run)
	└── control-layer
	    └── HTTPServerService (control API)

# Coordinator

A single goroutine (the one calling Run) owns every service's state. Each
launch gets a monitor goroutine that reports the exit, and a prober
goroutine that runs the readiness probe. Both report over one event channel.
Restart delays are timers that post to the same channel. A shutdown request
(ctx cancellation or Stop) is checked before every event, so it pre-empts
queued restarts.

Service states:

	Pending -> Starting -> Ready -> Stopping -> Stopped
	              |          |
	              v          v
	            Failed -> Starting (restart)

A service enters Starting only while every dependency is Ready. A service
that fails permanently (restart policy never, or restart limit reached)
never starts again, and neither do its Pending dependents.

# Restart Policy

  - never: the first failure is permanent.
  - on-failure: non-zero exits, signal deaths, launch errors and readiness
    failures restart; a clean exit of a Ready service moves it to Stopped.
  - always: every exit restarts.

Restart k waits backoff*2^(k-1), capped at backoff_max. The delay sequence
comes from cenkalti/backoff with jitter disabled.

# Startup Outcome

Startup settles once every service is Ready, terminal, or waiting behind a
dependency that can never become Ready. If a service is permanently Failed
at that point, Run stops everything and returns *StartupFailedError.

# Shutdown

Services are stopped one at a time in reverse start order. Each gets
SIGTERM and, after its grace period, SIGKILL. Failed services whose process
is still alive are stopped too but keep their Failed state.

# Usage

	sup, err := supervisor.New(cfg.Services, supervisor.Options{RunID: runID})
	if err != nil {
	    return err // *graph.CycleError or *config.ConfigError
	}
	tree, _ := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
	    ShutdownTimeout: cfg.ShutdownBudget(),
	})
	svc := services.NewSupervisorService(sup, func(error) { cancel() })
	tree.AddCoreService(svc)
	<-tree.ServeBackground(ctx)
	return svc.Err()
*/
package supervisor
