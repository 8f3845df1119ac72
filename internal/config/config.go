// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package config

import (
	"os"
	"sort"
	"time"

	"github.com/tomtom215/procwarden/internal/process"
)

// RestartPolicy decides whether a failed service is started again.
type RestartPolicy string

const (
	// RestartNever leaves a failed service Failed permanently.
	RestartNever RestartPolicy = "never"

	// RestartOnFailure restarts after a non-zero exit, signal death, launch
	// error or readiness failure. A clean exit (code 0) is final.
	RestartOnFailure RestartPolicy = "on-failure"

	// RestartAlways restarts after every exit.
	RestartAlways RestartPolicy = "always"
)

// Readiness probe types.
const (
	ProbeTCP   = "tcp"
	ProbeHTTP  = "http"
	ProbeLog   = "log"
	ProbeDelay = "delay"
)

// NoRestarts as max_restarts makes the first failure permanent. A zero
// max_restarts selects DefaultMaxRestarts.
const NoRestarts = -1

// Per-service defaults applied by ServiceSpec.applyDefaults.
const (
	DefaultMaxRestarts      = 3
	DefaultBackoff          = time.Second
	DefaultBackoffMax       = time.Minute
	DefaultGracePeriod      = 10 * time.Second
	DefaultOutputLines      = 200
	DefaultReadyTimeout     = 30 * time.Second
	DefaultAttemptTimeout   = time.Second
	DefaultInitialInterval  = 200 * time.Millisecond
	DefaultMaxInterval      = 5 * time.Second
	DefaultProbeHost        = "127.0.0.1"
	DefaultExpectedStatus   = 200
	DefaultControlAddr      = "127.0.0.1:7878"
	DefaultShutdownSlack    = 15 * time.Second
	DefaultControlRateLimit = 120
)

// Config is the complete procwarden configuration: supervisor settings plus
// the declarative service list.
type Config struct {
	Log      LogConfig      `koanf:"log"`
	Control  ControlConfig  `koanf:"control"`
	Shutdown ShutdownConfig `koanf:"shutdown"`
	Services []ServiceSpec  `koanf:"services" validate:"required,min=1,dive"`

	// LockFile guards against two instances supervising the same services.
	// Empty means the config file path with a ".lock" suffix.
	LockFile string `koanf:"lock_file"`

	// Path is the file the configuration was loaded from.
	Path string `koanf:"-"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// ControlConfig holds settings for the loopback control API used by the
// stop and status commands.
type ControlConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"omitempty,hostname_port"`

	// RateLimit is the number of control requests allowed per minute.
	RateLimit int `koanf:"rate_limit" validate:"min=0"`
}

// ShutdownConfig bounds the whole-tree shutdown.
type ShutdownConfig struct {
	// Timeout is the budget the supervision tree gives the coordinator to
	// stop every service. Zero derives it from the services' grace periods.
	Timeout time.Duration `koanf:"timeout" validate:"min=0"`
}

// ServiceSpec declares one supervised external program. Specs are immutable
// once Load returns.
type ServiceSpec struct {
	Name    string   `koanf:"name" validate:"required,servicename,max=64"`
	Command string   `koanf:"command" validate:"required"`
	Args    []string `koanf:"args"`
	Dir     string   `koanf:"dir"`

	// Env holds overrides layered on top of the supervisor's environment
	// (or on an empty environment when IsolateEnv is set).
	Env        map[string]string `koanf:"env"`
	IsolateEnv bool              `koanf:"isolate_env"`

	DependsOn []string   `koanf:"depends_on" validate:"dive,required"`
	Ready     *ReadySpec `koanf:"ready"`

	Restart     RestartPolicy `koanf:"restart" validate:"omitempty,oneof=never on-failure always"`
	MaxRestarts int           `koanf:"max_restarts" validate:"min=-1"`
	Backoff     time.Duration `koanf:"backoff" validate:"min=0"`
	BackoffMax  time.Duration `koanf:"backoff_max" validate:"min=0"`

	GracePeriod time.Duration `koanf:"grace_period" validate:"min=0"`
	OutputLines int           `koanf:"output_lines" validate:"min=0,max=100000"`
}

// ReadySpec describes how to decide that a started service is usable by its
// dependents.
type ReadySpec struct {
	Type string `koanf:"type" validate:"required,oneof=tcp http log delay"`

	// tcp
	Host string `koanf:"host"`
	Port int    `koanf:"port" validate:"min=0,max=65535"`

	// http
	URL            string `koanf:"url" validate:"omitempty,url"`
	ExpectedStatus int    `koanf:"expected_status" validate:"omitempty,min=100,max=599"`

	// log
	Pattern string `koanf:"pattern"`

	// delay
	Delay time.Duration `koanf:"delay" validate:"min=0"`

	Timeout         time.Duration `koanf:"timeout" validate:"min=0"`
	AttemptTimeout  time.Duration `koanf:"attempt_timeout" validate:"min=0"`
	InitialInterval time.Duration `koanf:"initial_interval" validate:"min=0"`
	MaxInterval     time.Duration `koanf:"max_interval" validate:"min=0"`
}

// applyDefaults fills zero values. Called by Load before validation.
func (s *ServiceSpec) applyDefaults() {
	if s.Restart == "" {
		s.Restart = RestartNever
	}
	if s.MaxRestarts == 0 {
		s.MaxRestarts = DefaultMaxRestarts
	}
	if s.Backoff == 0 {
		s.Backoff = DefaultBackoff
	}
	if s.BackoffMax == 0 {
		s.BackoffMax = DefaultBackoffMax
	}
	if s.BackoffMax < s.Backoff {
		s.BackoffMax = s.Backoff
	}
	if s.GracePeriod == 0 {
		s.GracePeriod = DefaultGracePeriod
	}
	if s.OutputLines == 0 {
		s.OutputLines = DefaultOutputLines
	}
	if s.Ready != nil {
		s.Ready.applyDefaults()
	}
}

func (r *ReadySpec) applyDefaults() {
	if r.Timeout == 0 {
		r.Timeout = DefaultReadyTimeout
	}
	if r.AttemptTimeout == 0 {
		r.AttemptTimeout = DefaultAttemptTimeout
	}
	if r.InitialInterval == 0 {
		r.InitialInterval = DefaultInitialInterval
	}
	if r.MaxInterval == 0 {
		r.MaxInterval = DefaultMaxInterval
	}
	if r.MaxInterval < r.InitialInterval {
		r.MaxInterval = r.InitialInterval
	}
	switch r.Type {
	case ProbeTCP:
		if r.Host == "" {
			r.Host = DefaultProbeHost
		}
	case ProbeHTTP:
		if r.ExpectedStatus == 0 {
			r.ExpectedStatus = DefaultExpectedStatus
		}
	case ProbeDelay:
		// A fixed delay longer than the overall timeout could never succeed.
		if r.Timeout <= r.Delay {
			r.Timeout = r.Delay + r.MaxInterval
		}
	}
}

// Environ builds the child environment in os/exec form. Overrides are
// appended in sorted key order so the result is deterministic.
func (s *ServiceSpec) Environ() []string {
	// An empty non-nil slice gives the child an empty environment; nil
	// would make os/exec inherit ours.
	env := []string{}
	if !s.IsolateEnv {
		env = os.Environ()
	}
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+s.Env[k])
	}
	return env
}

// ShutdownBudget returns the time the supervision tree should allow for an
// ordered stop of every service. Services stop one after another and each
// stop can take its grace period plus the post-SIGKILL drain, so the budget
// is the sum of those plus slack.
func (c *Config) ShutdownBudget() time.Duration {
	if c.Shutdown.Timeout > 0 {
		return c.Shutdown.Timeout
	}
	var total time.Duration
	for i := range c.Services {
		total += c.Services[i].GracePeriod + process.KillDrainTimeout
	}
	return total + DefaultShutdownSlack
}

// LockPath returns the instance lock file path.
func (c *Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return c.Path + ".lock"
}

// ServiceNames returns service names in declaration order.
func (c *Config) ServiceNames() []string {
	names := make([]string, len(c.Services))
	for i := range c.Services {
		names[i] = c.Services[i].Name
	}
	return names
}
