// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

//go:build unix

package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/procwarden/internal/config"
	"github.com/tomtom215/procwarden/internal/lockfile"
	"github.com/tomtom215/procwarden/internal/supervisor"
)

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func serveInBackground(t *testing.T, cfg *config.Config) (*supervisor.Supervisor, context.CancelFunc, <-chan error) {
	t.Helper()
	sup, err := supervisor.New(cfg.Services, supervisor.Options{RunID: "test"})
	if err != nil {
		t.Fatalf("supervisor.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- serve(ctx, cancel, cfg, sup, "test") }()
	return sup, cancel, errCh
}

func waitServe(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return")
		return nil
	}
}

func waitAllReady(t *testing.T, sup *supervisor.Supervisor) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ready := true
		for _, s := range sup.Status() {
			if s.State != supervisor.Ready {
				ready = false
			}
		}
		if ready {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("services not ready: %+v", sup.Status())
}

func TestServe_StopRequest(t *testing.T) {
	cfg := loadConfig(t, `
services:
  - name: db
    command: /bin/sh
    args: ["-c", "echo ready; exec sleep 30"]
    grace_period: 1s
    ready:
      type: log
      pattern: "^ready$"
  - name: web
    command: /bin/sh
    args: ["-c", "exec sleep 30"]
    depends_on: [db]
    grace_period: 1s
`)
	cfg.Control.Addr = "127.0.0.1:0"
	sup, cancel, errCh := serveInBackground(t, cfg)
	defer cancel()

	waitAllReady(t, sup)
	sup.Stop()

	if err := waitServe(t, errCh); err != nil {
		t.Fatalf("serve() = %v, want nil", err)
	}
	for _, s := range sup.Status() {
		if s.State != supervisor.Stopped {
			t.Errorf("%s: state = %s, want Stopped", s.Name, s.State)
		}
	}
	if code := exitCodeFor(nil); code != exitOK {
		t.Errorf("clean shutdown exit code = %d", code)
	}
}

func TestServe_ContextCancel(t *testing.T) {
	cfg := loadConfig(t, `
control:
  enabled: false
services:
  - name: app
    command: /bin/sh
    args: ["-c", "exec sleep 30"]
    grace_period: 1s
`)
	sup, cancel, errCh := serveInBackground(t, cfg)

	waitAllReady(t, sup)
	cancel()

	if err := waitServe(t, errCh); err != nil {
		t.Fatalf("serve() = %v, want nil", err)
	}
}

func TestServe_StartupFailure(t *testing.T) {
	cfg := loadConfig(t, `
control:
  enabled: false
services:
  - name: db
    command: /bin/sh
    args: ["-c", "echo starting; exit 1"]
    restart: never
    ready:
      type: log
      pattern: "^ready$"
      timeout: 2s
  - name: web
    command: /bin/sh
    args: ["-c", "exec sleep 30"]
    depends_on: [db]
`)
	sup, cancel, errCh := serveInBackground(t, cfg)
	defer cancel()

	err := waitServe(t, errCh)
	var startupErr *supervisor.StartupFailedError
	if !errors.As(err, &startupErr) {
		t.Fatalf("serve() = %v, want *StartupFailedError", err)
	}
	if code := exitCodeFor(err); code != exitStartupFailed {
		t.Errorf("exit code = %d, want %d", code, exitStartupFailed)
	}
	for _, s := range sup.Status() {
		if s.Name == "web" && s.Pid != 0 {
			t.Error("web was started although db never became ready")
		}
	}
}

func TestServe_ControlAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	cfg := loadConfig(t, `
services:
  - name: app
    command: /bin/sh
    args: ["-c", "exec sleep 30"]
`)
	cfg.Control.Addr = ln.Addr().String()

	sup, cancel, errCh := serveInBackground(t, cfg)
	defer cancel()

	err = waitServe(t, errCh)
	if err == nil {
		t.Fatal("serve() = nil, want listen error")
	}
	if code := exitCodeFor(err); code != exitRuntime {
		t.Errorf("exit code = %d, want %d", code, exitRuntime)
	}
	for _, s := range sup.Status() {
		if s.State != supervisor.Pending {
			t.Errorf("%s: state = %s, want Pending (nothing spawned)", s.Name, s.State)
		}
	}
}

func TestRun_SecondInstanceLocked(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "spawned")
	path := writeConfig(t, `
control:
  enabled: false
services:
  - name: app
    command: /bin/sh
    args: ["-c", "touch `+marker+`; exec sleep 30"]
`)

	held, err := lockfile.Acquire(path + ".lock")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held.Release()
	resetLogging(t)

	var stdout, stderr bytes.Buffer
	if code := execute([]string{"run", "--config", path}, &stdout, &stderr); code != exitRuntime {
		t.Fatalf("code = %d, want %d", code, exitRuntime)
	}
	if !strings.Contains(stderr.String(), "another procwarden instance") {
		t.Errorf("stderr = %q", stderr.String())
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("a process was spawned while another instance held the lock")
	}
}
