// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/procwarden/internal/logging"
)

// KillDrainTimeout is the hard upper bound for waiting on the process after
// SIGKILL has been sent. SIGKILL cannot be caught, so this only fires if
// cmd.Wait is stuck in the kernel.
const KillDrainTimeout = 5 * time.Second

// outputWaitDelay bounds how long Wait keeps reading the pipes after the
// child exits, for grandchildren that inherited them.
const outputWaitDelay = 2 * time.Second

// Options describes the process to start.
type Options struct {
	// Name is the service name, used for logs and errors.
	Name    string
	Command string
	Args    []string
	Dir     string

	// Env is the full child environment in "KEY=value" form. nil inherits
	// the supervisor's environment.
	Env []string

	// OutputLines is the ring buffer capacity.
	OutputLines int
}

// Handle is a running (or exited) child process. All methods are safe for
// concurrent use.
type Handle struct {
	name      string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time
	output    *RingBuffer
	stdout    *lineWriter
	stderr    *lineWriter
	log       zerolog.Logger

	done chan struct{}
	exit ExitStatus
	err  error
}

// Start launches the process in its own process group. Failures are
// returned as *LaunchError.
func Start(opts Options) (*Handle, error) {
	logger := logging.ForService(opts.Name)

	if opts.Dir != "" {
		info, err := os.Stat(opts.Dir)
		if err != nil {
			return nil, &LaunchError{Service: opts.Name, Command: opts.Command, Reason: ErrBadWorkDir, Err: err}
		}
		if !info.IsDir() {
			return nil, &LaunchError{
				Service: opts.Name, Command: opts.Command, Reason: ErrBadWorkDir,
				Err: fmt.Errorf("%s is not a directory", opts.Dir),
			}
		}
	}

	output := NewRingBuffer(opts.OutputLines)
	h := &Handle{
		name:   opts.Name,
		output: output,
		stdout: newLineWriter(output, Stdout, logger),
		stderr: newLineWriter(output, Stderr, logger),
		log:    logger,
		done:   make(chan struct{}),
	}

	cmd := exec.Command(opts.Command, opts.Args...) //nolint:gosec // commands come from the operator's config file
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdout = h.stdout
	cmd.Stderr = h.stderr
	cmd.WaitDelay = outputWaitDelay
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Service: opts.Name, Command: opts.Command, Reason: classifyStartError(err), Err: err}
	}

	h.cmd = cmd
	h.pid = cmd.Process.Pid
	h.startedAt = time.Now()

	// The only cmd.Wait call. Everything else observes h.done.
	go func() {
		err := cmd.Wait()
		h.stdout.flush()
		h.stderr.flush()
		h.exit = exitStatusFrom(cmd.ProcessState)
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			h.err = err
		}
		close(h.done)
	}()

	logger.Debug().Int("pid", h.pid).Str("command", opts.Command).Strs("args", opts.Args).Msg("Process started")
	return h, nil
}

// Name returns the service name the process was started for.
func (h *Handle) Name() string { return h.name }

// Pid returns the OS process id.
func (h *Handle) Pid() int { return h.pid }

// StartedAt returns when the process was started.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once the process has exited and its output is drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports whether the process has exited.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the process exits. The error is non-nil only when the
// wait itself failed (e.g. output pipes held open past the wait delay); a
// non-zero exit is reported through ExitStatus.
func (h *Handle) Wait() (ExitStatus, error) {
	<-h.done
	return h.exit, h.err
}

// Lines returns the last n output lines, oldest first.
func (h *Handle) Lines(n int) []Line { return h.output.Lines(n) }

// LinesAfter returns output lines newer than seq and the latest seq.
func (h *Handle) LinesAfter(seq uint64) ([]Line, uint64) { return h.output.LinesAfter(seq) }

// Signal sends sig to the process group. It returns os.ErrProcessDone if the
// process has already exited.
func (h *Handle) Signal(sig syscall.Signal) error {
	if h.Exited() {
		return os.ErrProcessDone
	}
	return signalGroup(h.cmd.Process, sig)
}

// Stop terminates the process: SIGTERM to the group, then SIGKILL if it is
// still running after grace. It returns once the process has exited, or
// after grace plus KillDrainTimeout at the latest. forced reports whether
// SIGKILL was needed.
func (h *Handle) Stop(grace time.Duration) (forced bool, err error) {
	if h.Exited() {
		return false, nil
	}

	if err := h.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		h.log.Warn().Err(err).Int("pid", h.pid).Msg("SIGTERM failed, killing")
		grace = 0
	}

	var killed atomic.Bool
	killTimer := time.AfterFunc(grace, func() {
		if h.Exited() {
			return
		}
		killed.Store(true)
		_ = h.Signal(syscall.SIGKILL)
	})
	defer killTimer.Stop()

	totalTimer := time.NewTimer(grace + KillDrainTimeout)
	defer totalTimer.Stop()

	select {
	case <-h.done:
		return killed.Load(), nil
	case <-totalTimer.C:
		return true, fmt.Errorf("%s (pid %d): %w", h.name, h.pid, ErrStopTimeout)
	}
}
