// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/tomtom215/procwarden/internal/config"
	"github.com/tomtom215/procwarden/internal/process"
)

// Status is the result of a single poll.
type Status int

const (
	// NotYet means the service is not ready but may become so.
	NotYet Status = iota
	// Ready means the service accepts work.
	Ready
)

func (s Status) String() string {
	if s == Ready {
		return "ready"
	}
	return "not-yet"
}

// Target is the started process a probe looks at.
type Target interface {
	Pid() int
	StartedAt() time.Time
	LinesAfter(seq uint64) ([]process.Line, uint64)
}

// Probe performs one readiness check. Poll returns NotYet with a transient
// error (connection refused, wrong status) or with nil when there is nothing
// to report yet. A *ProbeError means the probe can never succeed and
// polling should stop.
type Probe interface {
	Poll(ctx context.Context, t Target) (Status, error)
	String() string
}

// ErrProbeTimeout is returned by Wait when the overall timeout elapses.
var ErrProbeTimeout = errors.New("readiness timeout")

// ErrProcessExited is returned by Wait when the process exits before it
// became ready.
var ErrProcessExited = errors.New("process exited before ready")

// ProbeError is a permanent probe failure.
type ProbeError struct {
	Probe string
	Err   error
}

func (e *ProbeError) Error() string {
	return e.Probe + ": " + e.Err.Error()
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// New builds the probe for a readiness rule. A nil rule returns a nil
// Probe: the service is ready as soon as it is launched. Probes may keep
// per-launch state, so call New for every launch.
func New(spec *config.ReadySpec) (Probe, error) {
	if spec == nil {
		return nil, nil
	}
	switch spec.Type {
	case config.ProbeTCP:
		return &TCP{Host: spec.Host, Port: spec.Port}, nil
	case config.ProbeHTTP:
		return NewHTTP(spec.URL, spec.ExpectedStatus), nil
	case config.ProbeLog:
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("log probe pattern: %w", err)
		}
		return &LogPattern{Pattern: re}, nil
	case config.ProbeDelay:
		return &FixedDelay{Delay: spec.Delay}, nil
	default:
		return nil, fmt.Errorf("unknown probe type %q", spec.Type)
	}
}

// TCP is ready once a connection to Host:Port succeeds.
type TCP struct {
	Host string
	Port int
}

func (p *TCP) Poll(ctx context.Context, _ Target) (Status, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.addr())
	if err != nil {
		return NotYet, err
	}
	_ = conn.Close()
	return Ready, nil
}

func (p *TCP) addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p *TCP) String() string { return "tcp " + p.addr() }

// HTTP is ready once a GET on URL returns ExpectedStatus.
type HTTP struct {
	URL            string
	ExpectedStatus int
	Client         *http.Client
}

// NewHTTP returns an HTTP probe with a client that does not keep idle
// connections or follow proxies.
func NewHTTP(url string, expected int) *HTTP {
	if expected == 0 {
		expected = http.StatusOK
	}
	return &HTTP{
		URL:            url,
		ExpectedStatus: expected,
		Client: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (p *HTTP) Poll(ctx context.Context, _ Target) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, http.NoBody)
	if err != nil {
		return NotYet, &ProbeError{Probe: p.String(), Err: err}
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return NotYet, err
	}
	_ = resp.Body.Close()

	if resp.StatusCode != p.ExpectedStatus {
		return NotYet, fmt.Errorf("HTTP %d, want %d", resp.StatusCode, p.ExpectedStatus)
	}
	return Ready, nil
}

func (p *HTTP) String() string { return "http " + p.URL }

// LogPattern is ready once a line of the process output matches Pattern.
// Each poll scans only lines not seen by the previous poll.
type LogPattern struct {
	Pattern *regexp.Regexp

	mu     sync.Mutex
	cursor uint64
}

func (p *LogPattern) Poll(_ context.Context, t Target) (Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lines, seq := t.LinesAfter(p.cursor)
	p.cursor = seq
	for i := range lines {
		if p.Pattern.MatchString(lines[i].Text) {
			return Ready, nil
		}
	}
	return NotYet, nil
}

func (p *LogPattern) String() string { return "log /" + p.Pattern.String() + "/" }

// FixedDelay is ready once Delay has passed since the process started.
type FixedDelay struct {
	Delay time.Duration
}

func (p *FixedDelay) Poll(_ context.Context, t Target) (Status, error) {
	if time.Since(t.StartedAt()) >= p.Delay {
		return Ready, nil
	}
	return NotYet, nil
}

func (p *FixedDelay) String() string { return "delay " + p.Delay.String() }
