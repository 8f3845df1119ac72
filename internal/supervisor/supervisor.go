// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/tomtom215/procwarden/internal/config"
	"github.com/tomtom215/procwarden/internal/graph"
	"github.com/tomtom215/procwarden/internal/logging"
	"github.com/tomtom215/procwarden/internal/metrics"
	"github.com/tomtom215/procwarden/internal/probe"
	"github.com/tomtom215/procwarden/internal/process"
)

const (
	defaultStatusLines = 20
	failureLogLines    = 10
	eventBuffer        = 64
)

// Process is the part of a running child the coordinator uses.
// *process.Handle implements it.
type Process interface {
	probe.Target
	Lines(n int) []process.Line
	Done() <-chan struct{}
	Wait() (process.ExitStatus, error)
	Stop(grace time.Duration) (forced bool, err error)
}

// Launcher starts the process for a service.
type Launcher func(spec *config.ServiceSpec) (Process, error)

// ProbeFactory builds a fresh readiness probe for each launch. A nil Probe
// means the service is ready as soon as it is launched.
type ProbeFactory func(spec *config.ServiceSpec) (probe.Probe, error)

// StartProcess is the default Launcher.
func StartProcess(spec *config.ServiceSpec) (Process, error) {
	h, err := process.Start(process.Options{
		Name:        spec.Name,
		Command:     spec.Command,
		Args:        spec.Args,
		Dir:         spec.Dir,
		Env:         spec.Environ(),
		OutputLines: spec.OutputLines,
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// NewProbe is the default ProbeFactory.
func NewProbe(spec *config.ServiceSpec) (probe.Probe, error) {
	return probe.New(spec.Ready)
}

// Options configures a Supervisor. Zero values select the defaults.
type Options struct {
	Launcher Launcher
	ProbeFor ProbeFactory

	// Observer is called on the coordinator goroutine for every state
	// change. It must not block.
	Observer func(Transition)

	// RunID correlates the log lines of one run. Generated when empty.
	RunID string

	// StatusLines is the number of output lines Status returns per service.
	StatusLines int
}

type eventKind int

const (
	evExited eventKind = iota
	evReady
	evNotReady
	evRestartDue
)

// event is sent to the coordinator by monitors, probers and restart timers.
// gen identifies the launch it belongs to; stale events are dropped.
type event struct {
	kind eventKind
	svc  int
	gen  uint64
	exit process.ExitStatus
	err  error
}

// service is the coordinator-owned state of one ServiceSpec.
type service struct {
	spec  *config.ServiceSpec
	state State
	since time.Time
	log   zerolog.Logger

	proc        Process
	gen         uint64
	launchedAt  time.Time
	cancelProbe context.CancelFunc

	restarts   int
	permanent  bool
	restartDue bool
	timer      *time.Timer
	backoff    *backoff.ExponentialBackOff

	lastErr   error
	lastExit  *process.ExitStatus
	lastLines []process.Line
}

type snapshot struct {
	statuses []ServiceStatus
	procs    []Process
}

// Supervisor starts services in dependency order, restarts them according
// to their policy and stops them in reverse order. All service state is
// owned by the goroutine running Run; other goroutines talk to it through
// the event channel, Stop and Status.
type Supervisor struct {
	specs []config.ServiceSpec
	graph *graph.Graph
	order []int
	svcs  []*service
	opts  Options
	log   zerolog.Logger

	events   chan event
	stopCh   chan struct{}
	stopOnce sync.Once
	quit     chan struct{}
	done     chan struct{}
	running  atomic.Bool
	settled  bool
	idle     bool
	status   atomic.Pointer[snapshot]
}

// New validates the dependency graph and prepares a Supervisor. A cycle is
// reported as *graph.CycleError; nothing is started.
func New(specs []config.ServiceSpec, opts Options) (*Supervisor, error) {
	specs = append([]config.ServiceSpec(nil), specs...)

	g, err := graph.New(specs)
	if err != nil {
		return nil, err
	}
	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	if opts.Launcher == nil {
		opts.Launcher = StartProcess
	}
	if opts.ProbeFor == nil {
		opts.ProbeFor = NewProbe
	}
	if opts.RunID == "" {
		opts.RunID = logging.GenerateRunID()
	}
	if opts.StatusLines <= 0 {
		opts.StatusLines = defaultStatusLines
	}

	s := &Supervisor{
		specs:  specs,
		graph:  g,
		order:  order,
		opts:   opts,
		log:    logging.With().Str("component", "supervisor").Str("run_id", opts.RunID).Logger(),
		events: make(chan event, eventBuffer),
		stopCh: make(chan struct{}),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	now := time.Now()
	s.svcs = make([]*service, len(specs))
	for i := range s.specs {
		spec := &s.specs[i]
		s.svcs[i] = &service{
			spec:    spec,
			state:   Pending,
			since:   now,
			log:     s.log.With().Str("service", spec.Name).Logger(),
			backoff: restartBackoff(spec),
		}
	}
	s.publish()
	return s, nil
}

// restartBackoff yields base, 2*base, 4*base... capped at BackoffMax.
func restartBackoff(spec *config.ServiceSpec) *backoff.ExponentialBackOff {
	base := spec.Backoff
	if base <= 0 {
		base = config.DefaultBackoff
	}
	ceiling := spec.BackoffMax
	if ceiling < base {
		ceiling = base
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = ceiling
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func maxRestarts(spec *config.ServiceSpec) int {
	switch {
	case spec.MaxRestarts == config.NoRestarts:
		return 0
	case spec.MaxRestarts <= 0:
		return config.DefaultMaxRestarts
	}
	return spec.MaxRestarts
}

func gracePeriod(spec *config.ServiceSpec) time.Duration {
	if spec.GracePeriod <= 0 {
		return config.DefaultGracePeriod
	}
	return spec.GracePeriod
}

// StartOrder returns service names in the order they are started.
func (s *Supervisor) StartOrder() []string {
	names := make([]string, len(s.order))
	for k, i := range s.order {
		names[k] = s.graph.Name(i)
	}
	return names
}

// Stop requests an ordered shutdown. It does not wait; use Done.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Done is closed when Run has returned.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Status returns a snapshot of every service in declaration order.
func (s *Supervisor) Status() []ServiceStatus {
	snap := s.status.Load()
	out := make([]ServiceStatus, len(snap.statuses))
	copy(out, snap.statuses)
	for i, p := range snap.procs {
		if p != nil {
			out[i].Output = p.Lines(s.opts.StatusLines)
		}
	}
	return out
}

// Run starts the services and supervises them until ctx is cancelled or
// Stop is called, then stops every running service in reverse start order.
//
// It returns nil after a requested shutdown and *StartupFailedError when a
// service was permanently Failed by the time startup settled.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(s.done)
	defer close(s.quit)

	s.log.Info().Strs("order", s.StartOrder()).Msg("Starting services")

	for first := true; ; first = false {
		if reason, stop := s.stopRequested(ctx); stop {
			return s.shutdown(reason, nil)
		}
		if first {
			s.startEligible()
			s.publish()
		}

		if !s.settled && s.startupSettled() {
			s.settled = true
			if err := s.startupFailure(); err != nil {
				s.log.Error().Err(err).Msg("Startup failed")
				return s.shutdown("startup failed", err)
			}
			s.log.Info().Msg("Startup complete")
		}
		s.reportIdle()

		select {
		case <-ctx.Done():
			return s.shutdown("context cancelled", nil)
		case <-s.stopCh:
			return s.shutdown("stop requested", nil)
		case ev := <-s.events:
			s.handle(ev)
			s.abandonBlocked()
			s.startEligible()
			s.publish()
		}
	}
}

// stopRequested checks for a shutdown request without blocking, so it wins
// over any queued event.
func (s *Supervisor) stopRequested(ctx context.Context) (string, bool) {
	select {
	case <-ctx.Done():
		return "context cancelled", true
	case <-s.stopCh:
		return "stop requested", true
	default:
		return "", false
	}
}

func (s *Supervisor) send(ev event) {
	select {
	case s.events <- ev:
	case <-s.quit:
	}
}

func (s *Supervisor) handle(ev event) {
	svc := s.svcs[ev.svc]
	if ev.gen != svc.gen {
		return
	}

	switch ev.kind {
	case evExited:
		s.handleExit(ev.svc, ev.exit, ev.err)

	case evReady:
		metrics.RecordProbe(svc.spec.Name, "ready", time.Since(svc.launchedAt))
		if svc.state == Starting {
			s.releaseProbe(svc)
			s.transition(ev.svc, Ready, "readiness probe passed", nil)
		}

	case evNotReady:
		metrics.RecordProbe(svc.spec.Name, probeResult(ev.err), time.Since(svc.launchedAt))
		// An exit is handled by its own event.
		if svc.state != Starting || errors.Is(ev.err, probe.ErrProcessExited) {
			return
		}
		s.releaseProbe(svc)
		s.fail(ev.svc, ev.err, "readiness probe failed")
		s.killAsync(ev.svc)

	case evRestartDue:
		if svc.state == Failed && !svc.permanent {
			svc.restartDue = true
		}
	}
}

func (s *Supervisor) releaseProbe(svc *service) {
	if svc.cancelProbe != nil {
		svc.cancelProbe()
		svc.cancelProbe = nil
	}
}

// startEligible launches, in start order, every service that is waiting to
// start and whose dependencies are all Ready.
func (s *Supervisor) startEligible() {
	for _, i := range s.order {
		svc := s.svcs[i]
		waiting := svc.state == Pending ||
			(svc.state == Failed && svc.restartDue && svc.proc == nil)
		if waiting && s.dependenciesReady(i) {
			s.launch(i)
		}
	}
}

func (s *Supervisor) dependenciesReady(i int) bool {
	for _, d := range s.graph.Dependencies(i) {
		if s.svcs[d].state != Ready {
			return false
		}
	}
	return true
}

func (s *Supervisor) launch(i int) {
	svc := s.svcs[i]
	svc.gen++
	svc.restartDue = false

	reason := "dependencies ready"
	if svc.restarts > 0 {
		reason = "restart"
	}
	s.transition(i, Starting, reason, nil)

	proc, err := s.opts.Launcher(svc.spec)
	if err != nil {
		metrics.RecordLaunch(svc.spec.Name, launchResult(err))
		s.fail(i, err, "launch failed")
		return
	}
	metrics.RecordLaunch(svc.spec.Name, "ok")

	svc.proc = proc
	svc.launchedAt = time.Now()
	svc.log.Info().Int("pid", proc.Pid()).Int("restarts", svc.restarts).Msg("Service launched")
	go s.monitor(i, svc.gen, proc)

	p, err := s.opts.ProbeFor(svc.spec)
	if err != nil {
		s.fail(i, err, "readiness probe unusable")
		s.killAsync(i)
		return
	}
	if p == nil {
		s.transition(i, Ready, "launched", nil)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc.cancelProbe = cancel
	go s.waitReady(ctx, i, svc.gen, p, proc)
}

// monitor reports the exit of one launch.
func (s *Supervisor) monitor(i int, gen uint64, proc Process) {
	<-proc.Done()
	status, err := proc.Wait()
	s.send(event{kind: evExited, svc: i, gen: gen, exit: status, err: err})
}

func (s *Supervisor) waitReady(ctx context.Context, i int, gen uint64, p probe.Probe, proc Process) {
	svc := s.svcs[i]
	var opts probe.Options
	if svc.spec.Ready != nil {
		opts = probe.OptionsFrom(svc.spec.Ready)
	}
	// svc.log is immutable after New, so reading it here is safe.
	logger := svc.log
	opts.OnNotReady = func(err error, next time.Duration) {
		logger.Debug().Err(err).Str("probe", p.String()).Dur("next", next).Msg("Service not ready yet")
	}

	err := probe.Wait(ctx, p, proc, opts, proc.Done())
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		s.send(event{kind: evNotReady, svc: i, gen: gen, err: err})
		return
	}
	s.send(event{kind: evReady, svc: i, gen: gen})
}

func (s *Supervisor) handleExit(i int, status process.ExitStatus, waitErr error) {
	svc := s.svcs[i]
	if svc.proc == nil {
		return
	}
	svc.lastLines = svc.proc.Lines(s.opts.StatusLines)
	svc.proc = nil
	svc.lastExit = &status
	s.releaseProbe(svc)
	if waitErr != nil {
		svc.log.Warn().Err(waitErr).Msg("Waiting for process failed")
	}

	switch svc.state {
	case Starting:
		metrics.RecordExit(svc.spec.Name, exitKind(status))
		s.fail(i, &ExitError{Service: svc.spec.Name, Status: status, BeforeReady: true}, "exited before ready")

	case Ready:
		metrics.RecordExit(svc.spec.Name, exitKind(status))
		if status.Success() && svc.spec.Restart != config.RestartAlways {
			s.transition(i, Stopped, "exited cleanly", nil)
			return
		}
		s.fail(i, &ExitError{Service: svc.spec.Name, Status: status}, "unexpected exit")

	case Failed:
		// Killed after a failed probe. A due restart can go ahead now.
		svc.log.Debug().Str("exit", status.String()).Msg("Failed service process exited")
	}
}

// fail moves a service to Failed and applies its restart policy.
func (s *Supervisor) fail(i int, err error, reason string) {
	svc := s.svcs[i]
	svc.lastErr = err
	s.transition(i, Failed, reason, err)

	logEvent := svc.log.Error().Err(err).Str("reason", reason)
	if lines := s.recentOutput(svc); len(lines) > 0 {
		logEvent = logEvent.Strs("last_output", lines)
	}
	logEvent.Msg("Service failed")

	switch limit := maxRestarts(svc.spec); {
	case svc.spec.Restart == config.RestartNever || svc.spec.Restart == "":
		svc.permanent = true
		svc.log.Error().Str("restart", string(config.RestartNever)).Msg("Service permanently failed")

	case svc.restarts >= limit:
		svc.permanent = true
		svc.log.Error().Int("restarts", svc.restarts).Int("max_restarts", limit).
			Msg("Service permanently failed: restart limit reached")

	default:
		svc.restarts++
		delay := svc.backoff.NextBackOff()
		gen := svc.gen
		svc.timer = time.AfterFunc(delay, func() {
			s.send(event{kind: evRestartDue, svc: i, gen: gen})
		})
		metrics.RecordRestart(svc.spec.Name)
		svc.log.Warn().Int("attempt", svc.restarts).Int("max_restarts", limit).Dur("delay", delay).
			Msg("Restart scheduled")
	}
}

func (s *Supervisor) recentOutput(svc *service) []string {
	var lines []process.Line
	if svc.proc != nil {
		lines = svc.proc.Lines(failureLogLines)
	} else if n := len(svc.lastLines); n > 0 {
		lines = svc.lastLines[max(0, n-failureLogLines):]
	}
	texts := make([]string, len(lines))
	for k := range lines {
		texts[k] = lines[k].Text
	}
	return texts
}

// killAsync stops the live process of a Failed service without blocking the
// coordinator. Its exit arrives as an ordinary event.
func (s *Supervisor) killAsync(i int) {
	svc := s.svcs[i]
	proc := svc.proc
	if proc == nil {
		return
	}
	grace := gracePeriod(svc.spec)
	logger := svc.log
	go func() {
		if _, err := proc.Stop(grace); err != nil {
			logger.Error().Err(err).Msg("Failed to stop process after failure")
		}
	}()
}

func (s *Supervisor) transition(i int, to State, reason string, err error) {
	svc := s.svcs[i]
	from := svc.state
	if from == to {
		return
	}
	svc.state = to
	svc.since = time.Now()

	metrics.RecordTransition(svc.spec.Name, from.String(), to.String())

	logEvent := svc.log.Info()
	if to == Failed {
		logEvent = svc.log.Warn()
	}
	logEvent = logEvent.Str("from", from.String()).Str("to", to.String()).Str("reason", reason)
	if err != nil {
		logEvent = logEvent.Err(err)
	}
	logEvent.Msg("Service state changed")

	if s.opts.Observer != nil {
		s.opts.Observer(Transition{
			Service: svc.spec.Name,
			From:    from,
			To:      to,
			Reason:  reason,
			Err:     err,
			At:      svc.since,
		})
	}
}

// startupSettled reports whether every service is Ready, terminal, or
// waiting behind a dependency that can never become Ready.
func (s *Supervisor) startupSettled() bool {
	dead := make([]bool, len(s.svcs))
	for _, i := range s.order {
		svc := s.svcs[i]
		switch {
		case svc.state == Ready:
		case svc.state == Stopped, svc.state == Failed && svc.permanent:
			dead[i] = true
		case svc.state == Pending, svc.state == Failed:
			if !s.blocked(i, dead) {
				return false
			}
			dead[i] = true
		default:
			return false
		}
	}
	return true
}

func (s *Supervisor) blocked(i int, dead []bool) bool {
	for _, d := range s.graph.Dependencies(i) {
		if dead[d] {
			return true
		}
	}
	return false
}

// abandonBlocked makes a pending restart permanent once a dependency is
// permanently Failed, since the restart could never be launched.
func (s *Supervisor) abandonBlocked() {
	for _, i := range s.order {
		svc := s.svcs[i]
		if svc.state != Failed || svc.permanent {
			continue
		}
		for _, d := range s.graph.Dependencies(i) {
			dep := s.svcs[d]
			if dep.state != Failed || !dep.permanent {
				continue
			}
			svc.permanent = true
			svc.restartDue = false
			if svc.timer != nil {
				svc.timer.Stop()
			}
			svc.log.Error().Str("dependency", dep.spec.Name).
				Msg("Service permanently failed: dependency permanently failed")
			break
		}
	}
}

// reportIdle logs once when no service is running or due to run again.
// The supervisor stays in the foreground until it is stopped.
func (s *Supervisor) reportIdle() {
	if s.idle || !s.settled {
		return
	}
	for _, svc := range s.svcs {
		if svc.proc != nil || (svc.state == Failed && !svc.permanent) {
			return
		}
		// After startup a Pending service can only be blocked for good.
		if svc.state != Stopped && svc.state != Failed && svc.state != Pending {
			return
		}
	}
	s.idle = true
	s.log.Info().Msg("No services left running, waiting for stop")
}

func (s *Supervisor) startupFailure() error {
	var failed []string
	var errs []error
	for _, svc := range s.svcs {
		if svc.state == Failed && svc.permanent {
			failed = append(failed, svc.spec.Name)
			errs = append(errs, svc.lastErr)
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return &StartupFailedError{Services: failed, Errs: errs}
}

// shutdown stops every live process in reverse start order and returns
// result.
func (s *Supervisor) shutdown(reason string, result error) error {
	s.log.Info().Str("reason", reason).Msg("Stopping services")

	for _, svc := range s.svcs {
		if svc.timer != nil {
			svc.timer.Stop()
		}
		s.releaseProbe(svc)
		svc.restartDue = false
	}

	for _, i := range graph.ReverseOrder(s.order) {
		s.stopService(i, reason)
	}
	s.publish()

	s.log.Info().Msg("All services stopped")
	return result
}

func (s *Supervisor) stopService(i int, reason string) {
	svc := s.svcs[i]
	proc := svc.proc
	if proc == nil {
		return
	}

	// A Failed service keeps its state; only its process goes away.
	keepState := svc.state == Failed
	if !keepState {
		s.transition(i, Stopping, reason, nil)
		s.publish()
	}

	grace := gracePeriod(svc.spec)
	start := time.Now()
	forced, err := proc.Stop(grace)
	metrics.RecordStop(svc.spec.Name, time.Since(start), forced)
	if forced {
		svc.log.Warn().Dur("grace_period", grace).Msg("Service ignored SIGTERM, killed")
	}
	if err != nil {
		svc.log.Error().Err(err).Msg("Failed to stop service")
	}

	select {
	case <-proc.Done():
	default:
		return
	}
	status, _ := proc.Wait()
	svc.lastExit = &status
	svc.lastLines = proc.Lines(s.opts.StatusLines)
	svc.proc = nil
	if !keepState {
		s.transition(i, Stopped, reason, nil)
	}
}

func (s *Supervisor) publish() {
	snap := &snapshot{
		statuses: make([]ServiceStatus, len(s.svcs)),
		procs:    make([]Process, len(s.svcs)),
	}
	for i, svc := range s.svcs {
		st := ServiceStatus{
			Name:      svc.spec.Name,
			State:     svc.state,
			Restarts:  svc.restarts,
			Permanent: svc.permanent,
			LastExit:  svc.lastExit,
			Since:     svc.since,
		}
		if svc.lastErr != nil {
			st.LastError = svc.lastErr.Error()
		}
		if svc.proc != nil {
			st.Pid = svc.proc.Pid()
			snap.procs[i] = svc.proc
		} else {
			st.Output = svc.lastLines
		}
		snap.statuses[i] = st
	}
	s.status.Store(snap)
}

func launchResult(err error) string {
	switch {
	case errors.Is(err, process.ErrExecutableNotFound):
		return "not_found"
	case errors.Is(err, process.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, process.ErrBadWorkDir):
		return "bad_dir"
	default:
		return "error"
	}
}

func probeResult(err error) string {
	switch {
	case errors.Is(err, probe.ErrProbeTimeout):
		return "timeout"
	case errors.Is(err, probe.ErrProcessExited):
		return "exited"
	default:
		return "error"
	}
}

func exitKind(status process.ExitStatus) string {
	switch {
	case status.Signaled:
		return "signal"
	case status.Success():
		return "clean"
	default:
		return "error"
	}
}
