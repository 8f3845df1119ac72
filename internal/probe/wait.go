// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/tomtom215/procwarden/internal/config"
)

// errNotReady stands in for a NotYet poll that reported no error.
var errNotReady = errors.New("not ready")

// Options controls the poll loop.
type Options struct {
	// Timeout bounds the whole wait.
	Timeout time.Duration
	// AttemptTimeout bounds a single Poll.
	AttemptTimeout time.Duration
	// InitialInterval is the first delay between polls; it doubles up to
	// MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// OnNotReady, if set, is called after each unsuccessful poll with the
	// poll error and the delay before the next one.
	OnNotReady func(err error, next time.Duration)
}

// OptionsFrom returns the poll options of a readiness rule.
func OptionsFrom(spec *config.ReadySpec) Options {
	return Options{
		Timeout:         spec.Timeout,
		AttemptTimeout:  spec.AttemptTimeout,
		InitialInterval: spec.InitialInterval,
		MaxInterval:     spec.MaxInterval,
	}
}

func (o *Options) setDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = config.DefaultReadyTimeout
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = config.DefaultAttemptTimeout
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = config.DefaultInitialInterval
	}
	if o.MaxInterval < o.InitialInterval {
		o.MaxInterval = o.InitialInterval
	}
}

// Wait polls p until it reports Ready. The first poll happens immediately;
// later polls back off exponentially from InitialInterval to MaxInterval.
//
// It returns nil when ready, an error wrapping ErrProbeTimeout (with the last
// poll error) when Timeout elapses, ErrProcessExited when exited is closed
// first, the *ProbeError of a permanent failure, or ctx.Err() when ctx is
// cancelled.
func Wait(ctx context.Context, p Probe, t Target, opts Options, exited <-chan struct{}) error {
	opts.setDefaults()

	ctx, cancelExit := context.WithCancelCause(ctx)
	defer cancelExit(nil)
	if exited != nil {
		go func() {
			select {
			case <-exited:
				cancelExit(ErrProcessExited)
			case <-ctx.Done():
			}
		}()
	}

	waitCtx, cancel := context.WithTimeoutCause(ctx, opts.Timeout, ErrProbeTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.InitialInterval
	b.MaxInterval = opts.MaxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	var lastErr error
	operation := func() error {
		attemptCtx, cancelAttempt := context.WithTimeout(waitCtx, opts.AttemptTimeout)
		defer cancelAttempt()

		status, err := p.Poll(attemptCtx, t)
		if status == Ready {
			return nil
		}
		var probeErr *ProbeError
		if errors.As(err, &probeErr) {
			return backoff.Permanent(err)
		}
		if err == nil {
			err = errNotReady
		}
		lastErr = err
		return err
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(b, waitCtx), opts.OnNotReady)
	if err == nil {
		return nil
	}

	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return err
	}

	switch cause := context.Cause(waitCtx); {
	case errors.Is(cause, ErrProcessExited):
		return ErrProcessExited
	case cause != nil && !errors.Is(cause, ErrProbeTimeout):
		return ctx.Err()
	}

	// The overall probe timeout expired.
	if lastErr != nil {
		return fmt.Errorf("%s: %w after %s (last error: %w)", p, ErrProbeTimeout, opts.Timeout, lastErr)
	}
	return fmt.Errorf("%s: %w after %s", p, ErrProbeTimeout, opts.Timeout)
}
