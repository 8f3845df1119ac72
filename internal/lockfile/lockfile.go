// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

// Package lockfile holds the per-config instance lock, so two procwarden
// processes never supervise the same set of services at once.
package lockfile

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"

	"github.com/tomtom215/procwarden/internal/logging"
)

// ErrLocked is returned by Acquire when another process holds the lock.
var ErrLocked = errors.New("another procwarden instance holds the lock")

// Lock is a held instance lock.
type Lock struct {
	fl *flock.Flock
}

// Acquire takes the exclusive lock at path without waiting.
func Acquire(path string) (*Lock, error) {
	fl := flock.New(path)

	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return &Lock{fl: fl}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Release unlocks and closes the lock file. The file stays on disk:
// removing it could invalidate a lock another process has just taken.
func (l *Lock) Release() {
	if l == nil || l.fl == nil {
		return
	}
	if err := l.fl.Close(); err != nil {
		logging.Debug().Err(err).Str("path", l.fl.Path()).Msg("Failed to release instance lock")
	}
}
