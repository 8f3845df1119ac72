// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package services

import (
	"context"
	"sync"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/procwarden/internal/logging"
)

// Runner is the coordinator lifecycle. Satisfied by *supervisor.Supervisor.
type Runner interface {
	Run(ctx context.Context) error
}

// SupervisorService runs the process coordinator inside the suture tree.
//
// The coordinator runs exactly once. When it returns on its own (Stop was
// requested through the control API, or startup failed), onExit is called
// so the caller can cancel the whole tree, and Serve returns
// suture.ErrDoNotRestart.
type SupervisorService struct {
	runner Runner
	onExit func(error)

	mu  sync.Mutex
	err error
	ran bool
}

// NewSupervisorService wraps runner. onExit may be nil.
func NewSupervisorService(runner Runner, onExit func(error)) *SupervisorService {
	return &SupervisorService{runner: runner, onExit: onExit}
}

// Serve implements suture.Service.
func (s *SupervisorService) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.ran {
		s.mu.Unlock()
		return suture.ErrDoNotRestart
	}
	s.ran = true
	s.mu.Unlock()

	err := s.runner.Run(ctx)

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	if err != nil {
		logging.Error().Err(err).Msg("Supervisor stopped with error")
	}
	if s.onExit != nil {
		s.onExit(err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return suture.ErrDoNotRestart
}

// Err returns what the coordinator's Run returned. It is nil until Serve
// has finished.
func (s *SupervisorService) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *SupervisorService) String() string {
	return "process-supervisor"
}
