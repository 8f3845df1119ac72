// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

//go:build !unix

package process

import (
	"os"
	"os/exec"
	"syscall"
)

// configureSysProcAttr is a no-op without process groups.
func configureSysProcAttr(_ *exec.Cmd) {}

// signalGroup signals only the child itself. Platforms without POSIX
// signals cannot deliver SIGTERM, so anything but SIGKILL falls back to Kill.
func signalGroup(p *os.Process, sig syscall.Signal) error {
	if sig == syscall.SIGKILL {
		return p.Kill()
	}
	if err := p.Signal(sig); err != nil {
		return p.Kill()
	}
	return nil
}
