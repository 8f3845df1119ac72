// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package supervisor

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/procwarden/internal/config"
	"github.com/tomtom215/procwarden/internal/probe"
	"github.com/tomtom215/procwarden/internal/process"
)

// fakeProc is an in-memory Process. It exits when the test calls exit or
// when it is stopped.
type fakeProc struct {
	name    string
	pid     int
	started time.Time
	output  *process.RingBuffer
	rt      *fakeRuntime

	ignoreTerm bool

	once   sync.Once
	done   chan struct{}
	status process.ExitStatus
}

func (p *fakeProc) Pid() int             { return p.pid }
func (p *fakeProc) StartedAt() time.Time { return p.started }
func (p *fakeProc) Done() <-chan struct{} {
	return p.done
}

func (p *fakeProc) Lines(n int) []process.Line { return p.output.Lines(n) }

func (p *fakeProc) LinesAfter(seq uint64) ([]process.Line, uint64) {
	return p.output.LinesAfter(seq)
}

func (p *fakeProc) Wait() (process.ExitStatus, error) {
	<-p.done
	return p.status, nil
}

func (p *fakeProc) exit(status process.ExitStatus) {
	p.once.Do(func() {
		p.status = status
		close(p.done)
	})
}

func (p *fakeProc) Stop(grace time.Duration) (bool, error) {
	select {
	case <-p.done:
		return false, nil
	default:
	}
	p.rt.recordStop(p.name)
	if p.ignoreTerm {
		time.Sleep(grace)
		p.exit(process.ExitStatus{Code: -1, Signaled: true, Signal: "killed"})
		return true, nil
	}
	p.exit(process.ExitStatus{Code: -1, Signaled: true, Signal: "terminated"})
	return false, nil
}

// fakeRuntime is a Launcher that records launches and stops.
type fakeRuntime struct {
	mu       sync.Mutex
	nextPid  int
	launches map[string][]time.Time
	stops    []string
	procs    map[string]*fakeProc

	// behave runs in its own goroutine for every launch of a service.
	behave map[string]func(p *fakeProc, attempt int)
	// fail makes every launch of a service return the error.
	fail map[string]error
	// ignoreTerm marks services that only die after the grace period.
	ignoreTerm map[string]bool
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		nextPid:    1000,
		launches:   make(map[string][]time.Time),
		procs:      make(map[string]*fakeProc),
		behave:     make(map[string]func(*fakeProc, int)),
		fail:       make(map[string]error),
		ignoreTerm: make(map[string]bool),
	}
}

func (r *fakeRuntime) launch(spec *config.ServiceSpec) (Process, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempt := len(r.launches[spec.Name])
	r.launches[spec.Name] = append(r.launches[spec.Name], time.Now())
	if err := r.fail[spec.Name]; err != nil {
		return nil, err
	}

	r.nextPid++
	p := &fakeProc{
		name:       spec.Name,
		pid:        r.nextPid,
		started:    time.Now(),
		output:     process.NewRingBuffer(50),
		rt:         r,
		ignoreTerm: r.ignoreTerm[spec.Name],
		done:       make(chan struct{}),
	}
	p.output.Add(process.Stdout, spec.Name+" starting")
	r.procs[spec.Name] = p
	if b := r.behave[spec.Name]; b != nil {
		go b(p, attempt)
	}
	return p, nil
}

func (r *fakeRuntime) recordStop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, name)
}

func (r *fakeRuntime) launchTimes(name string) []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.launches[name]...)
}

func (r *fakeRuntime) stopOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.stops...)
}

func (r *fakeRuntime) proc(name string) *fakeProc {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.procs[name]
}

// neverReady polls NotYet forever.
type neverReady struct{}

func (neverReady) Poll(context.Context, probe.Target) (probe.Status, error) {
	return probe.NotYet, nil
}

func (neverReady) String() string { return "never" }

// probesFor returns a ProbeFactory that uses never-ready probes for the
// named services and no probe for the rest.
func probesFor(never ...string) ProbeFactory {
	set := make(map[string]bool, len(never))
	for _, n := range never {
		set[n] = true
	}
	return func(spec *config.ServiceSpec) (probe.Probe, error) {
		if set[spec.Name] {
			return neverReady{}, nil
		}
		return nil, nil
	}
}

// transitionLog collects observer callbacks.
type transitionLog struct {
	mu   sync.Mutex
	list []Transition
}

func (l *transitionLog) observe(tr Transition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list = append(l.list, tr)
}

func (l *transitionLog) all() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Transition(nil), l.list...)
}

func (l *transitionLog) of(service string) []Transition {
	var out []Transition
	for _, tr := range l.all() {
		if tr.Service == service {
			out = append(out, tr)
		}
	}
	return out
}

func svcSpec(name string, deps ...string) config.ServiceSpec {
	return config.ServiceSpec{
		Name:        name,
		Command:     "/bin/" + name,
		DependsOn:   deps,
		Restart:     config.RestartNever,
		MaxRestarts: 3,
		Backoff:     10 * time.Millisecond,
		BackoffMax:  time.Second,
		GracePeriod: 50 * time.Millisecond,
		OutputLines: 50,
	}
}

func statusOf(t *testing.T, sup *Supervisor, name string) ServiceStatus {
	t.Helper()
	for _, st := range sup.Status() {
		if st.Name == name {
			return st
		}
	}
	t.Fatalf("no status for %q", name)
	return ServiceStatus{}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// runInBackground starts Run and returns a channel with its result.
func runInBackground(ctx context.Context, sup *Supervisor) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- sup.Run(ctx) }()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

// syncBuffer is a bytes.Buffer safe for the logger and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
