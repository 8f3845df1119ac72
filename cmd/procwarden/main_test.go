// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/procwarden/internal/api"
	"github.com/tomtom215/procwarden/internal/config"
	"github.com/tomtom215/procwarden/internal/graph"
	"github.com/tomtom215/procwarden/internal/logging"
	"github.com/tomtom215/procwarden/internal/process"
	"github.com/tomtom215/procwarden/internal/supervisor"
)

// writeConfig writes content to a procwarden.yaml in a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procwarden.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// resetLogging restores the default logger after a test whose run command
// pointed the global logger at a test buffer.
func resetLogging(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { logging.Init(logging.DefaultConfig()) })
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"config", &config.ConfigError{Path: "x.yaml", Err: errors.New("bad")}, exitConfig},
		{"cycle", &graph.CycleError{Cycle: []string{"a", "b", "a"}}, exitCycle},
		{"wrapped cycle", fmt.Errorf("load: %w", &graph.CycleError{Cycle: []string{"a", "a"}}), exitCycle},
		{"startup", &supervisor.StartupFailedError{Services: []string{"db"}, Errs: []error{errors.New("boom")}}, exitStartupFailed},
		{"usage", &usageError{err: errors.New("flag provided but not defined: -x")}, exitUsage},
		{"not running", fmt.Errorf("%w: connection refused", api.ErrNotRunning), exitRuntime},
		{"other", errors.New("boom"), exitRuntime},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestExecute_Commands(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if code := execute(nil, &stdout, &stderr); code != exitUsage {
		t.Errorf("no args: code = %d, want %d", code, exitUsage)
	}
	if code := execute([]string{"frobnicate"}, &stdout, &stderr); code != exitUsage {
		t.Errorf("unknown command: code = %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr.String(), `unknown command "frobnicate"`) {
		t.Errorf("stderr = %q", stderr.String())
	}

	stdout.Reset()
	if code := execute([]string{"version"}, &stdout, &stderr); code != exitOK {
		t.Errorf("version: code = %d", code)
	}
	if !strings.HasPrefix(stdout.String(), "procwarden ") {
		t.Errorf("version output = %q", stdout.String())
	}

	if code := execute([]string{"status", "--bogus"}, &stdout, &stderr); code != exitUsage {
		t.Errorf("bad flag: code = %d, want %d", code, exitUsage)
	}
	if code := execute([]string{"validate", "-h"}, &stdout, &stderr); code != exitOK {
		t.Errorf("-h: code = %d, want %d", code, exitOK)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantCode int
		wantOut  string
	}{
		{
			name: "valid",
			yaml: `
services:
  - name: web
    command: /bin/true
    depends_on: [db]
  - name: db
    command: /bin/true
`,
			wantCode: exitOK,
			wantOut:  "start order: db -> web",
		},
		{
			name: "cycle",
			yaml: `
services:
  - name: a
    command: /bin/true
    depends_on: [b]
  - name: b
    command: /bin/true
    depends_on: [a]
`,
			wantCode: exitCycle,
		},
		{
			name:     "unknown dependency",
			yaml:     "services:\n  - name: web\n    command: x\n    depends_on: [db]\n",
			wantCode: exitConfig,
		},
		{
			name:     "malformed",
			yaml:     "services: [\n",
			wantCode: exitConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.yaml)
			var stdout, stderr bytes.Buffer
			code := execute([]string{"validate", "--config", path}, &stdout, &stderr)
			if code != tt.wantCode {
				t.Fatalf("code = %d, want %d (stderr: %s)", code, tt.wantCode, stderr.String())
			}
			if tt.wantOut != "" && !strings.Contains(stdout.String(), tt.wantOut) {
				t.Errorf("stdout = %q, want it to contain %q", stdout.String(), tt.wantOut)
			}
		})
	}
}

func TestRun_ConfigErrorsSpawnNothing(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "spawned")
	path := writeConfig(t, fmt.Sprintf(`
control:
  enabled: false
services:
  - name: a
    command: /bin/sh
    args: ["-c", "touch %s"]
    depends_on: [b]
  - name: b
    command: /bin/sh
    args: ["-c", "touch %s"]
    depends_on: [a]
`, marker, marker))
	resetLogging(t)

	var stdout, stderr bytes.Buffer
	if code := execute([]string{"run", "--config", path}, &stdout, &stderr); code != exitCycle {
		t.Fatalf("code = %d, want %d", code, exitCycle)
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("a process was spawned despite the dependency cycle")
	}
}

func TestStatus_NotRunning(t *testing.T) {
	var stdout, stderr bytes.Buffer
	// Port 1 on loopback is reserved and not listening.
	code := execute([]string{"status", "--addr", "127.0.0.1:1"}, &stdout, &stderr)
	if code != exitRuntime {
		t.Errorf("code = %d, want %d", code, exitRuntime)
	}
}

func TestPrintStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	report := &api.StatusReport{Services: []supervisor.ServiceStatus{
		{
			Name:  "db",
			State: supervisor.Ready,
			Pid:   101,
			Since: now.Add(-90 * time.Second),
			Output: []process.Line{
				{Stream: process.Stdout, Text: "booting"},
				{Stream: process.Stderr, Text: "ready"},
			},
		},
		{
			Name:      "web",
			State:     supervisor.Failed,
			Permanent: true,
			Restarts:  3,
			LastError: "web: unexpected exit (exit code 1)",
			Since:     now.Add(-5 * time.Second),
		},
		{Name: "tunnel", State: supervisor.Pending},
	}}

	var buf bytes.Buffer
	if err := printStatus(&buf, report, 1, now); err != nil {
		t.Fatalf("printStatus: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"SERVICE", "db", "Ready", "101", "1m30s",
		"web", "Failed (permanent)", "unexpected exit",
		"tunnel", "Pending",
		"==> db <==", "[stderr] ready",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "booting") {
		t.Errorf("output has more than the requested line:\n%s", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if !strings.HasPrefix(lines[1], "db") || !strings.HasPrefix(lines[2], "web") || !strings.HasPrefix(lines[3], "tunnel") {
		t.Errorf("services not in declaration order:\n%s", out)
	}
}
