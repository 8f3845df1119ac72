// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package config

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/tomtom215/procwarden/internal/logging"
	"github.com/tomtom215/procwarden/internal/validation"
)

// Validate checks struct tags first, then the rules that span fields or
// services. Dependency cycles are not checked here; the graph package
// reports them separately so they get their own exit code.
func (c *Config) Validate() error {
	if errs := validation.ValidateStruct(c); errs != nil {
		return errs
	}

	var problems []error

	if !logging.ValidLevel(c.Log.Level) {
		problems = append(problems, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.Log.Level))
	}

	if c.Control.Enabled && c.Control.Addr == "" {
		problems = append(problems, errors.New("control.addr is required when control.enabled is true"))
	}

	problems = append(problems, c.validateServices()...)

	return errors.Join(problems...)
}

// validateServices checks name uniqueness, dependency references and
// readiness rules. All problems are collected so one run reports them all.
func (c *Config) validateServices() []error {
	var problems []error

	seen := make(map[string]int, len(c.Services))
	for i := range c.Services {
		name := c.Services[i].Name
		if first, ok := seen[name]; ok {
			problems = append(problems, fmt.Errorf("services[%d]: %w %q (first declared at services[%d])",
				i, ErrDuplicateService, name, first))
			continue
		}
		seen[name] = i
	}

	for i := range c.Services {
		svc := &c.Services[i]

		deps := make(map[string]struct{}, len(svc.DependsOn))
		for _, dep := range svc.DependsOn {
			if _, ok := seen[dep]; !ok {
				problems = append(problems, fmt.Errorf("services[%d] (%s): %w %q", i, svc.Name, ErrUnknownDependency, dep))
			}
			if _, dup := deps[dep]; dup {
				problems = append(problems, fmt.Errorf("services[%d] (%s): dependency %q listed twice", i, svc.Name, dep))
			}
			deps[dep] = struct{}{}
		}

		if svc.Ready != nil {
			if err := svc.Ready.validate(); err != nil {
				problems = append(problems, fmt.Errorf("services[%d] (%s): %w", i, svc.Name, err))
			}
		}
	}

	return problems
}

// validate checks the fields required by each probe type.
func (r *ReadySpec) validate() error {
	switch r.Type {
	case ProbeTCP:
		if r.Port == 0 {
			return fmt.Errorf("%w: tcp probe requires port", ErrInvalidReadiness)
		}
	case ProbeHTTP:
		if r.URL == "" {
			return fmt.Errorf("%w: http probe requires url", ErrInvalidReadiness)
		}
	case ProbeLog:
		if r.Pattern == "" {
			return fmt.Errorf("%w: log probe requires pattern", ErrInvalidReadiness)
		}
		if _, err := regexp.Compile(r.Pattern); err != nil {
			return fmt.Errorf("%w: log pattern: %w", ErrInvalidReadiness, err)
		}
	case ProbeDelay:
		if r.Delay <= 0 {
			return fmt.Errorf("%w: delay probe requires a positive delay", ErrInvalidReadiness)
		}
	}
	if r.AttemptTimeout > r.Timeout {
		return fmt.Errorf("%w: attempt_timeout %s exceeds timeout %s", ErrInvalidReadiness, r.AttemptTimeout, r.Timeout)
	}
	return nil
}
