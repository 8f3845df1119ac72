// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTreeConstruction(t *testing.T) {
	t.Run("creates hierarchical tree", func(t *testing.T) {
		tree, err := NewTree(quietLogger(), TreeConfig{
			FailureThreshold: 5,
			FailureBackoff:   time.Second,
			ShutdownTimeout:  10 * time.Second,
		})
		if err != nil {
			t.Fatalf("NewTree() error = %v", err)
		}
		if tree.Root() == nil {
			t.Error("root supervisor should not be nil")
		}
	})

	t.Run("applies defaults for zero config", func(t *testing.T) {
		tree, err := NewTree(quietLogger(), TreeConfig{})
		if err != nil {
			t.Fatalf("NewTree() error = %v", err)
		}
		if tree.config != DefaultTreeConfig() {
			t.Errorf("config = %+v, want %+v", tree.config, DefaultTreeConfig())
		}
	})

	t.Run("keeps explicit shutdown timeout", func(t *testing.T) {
		tree, _ := NewTree(quietLogger(), TreeConfig{ShutdownTimeout: 45 * time.Second})
		if tree.config.ShutdownTimeout != 45*time.Second {
			t.Errorf("ShutdownTimeout = %v, want 45s", tree.config.ShutdownTimeout)
		}
	})
}

func TestTreeLifecycle(t *testing.T) {
	t.Run("starts both layers and stops on cancel", func(t *testing.T) {
		tree, _ := NewTree(quietLogger(), TreeConfig{
			FailureBackoff:  100 * time.Millisecond,
			ShutdownTimeout: time.Second,
		})

		core := NewMockService("mock-core")
		control := NewMockService("mock-control")
		tree.AddCoreService(core)
		tree.AddControlService(control)

		ctx, cancel := context.WithCancel(context.Background())
		errCh := tree.ServeBackground(ctx)

		time.Sleep(100 * time.Millisecond)
		if core.StartCount() < 1 {
			t.Error("core service was not started")
		}
		if control.StartCount() < 1 {
			t.Error("control service was not started")
		}

		cancel()
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("unexpected error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("tree did not shut down in time")
		}
		if core.StopCount() != core.StartCount() {
			t.Errorf("core stops = %d, starts = %d", core.StopCount(), core.StartCount())
		}
	})

	t.Run("control failure does not restart core", func(t *testing.T) {
		tree, _ := NewTree(quietLogger(), TreeConfig{
			FailureThreshold: 10,
			FailureBackoff:   10 * time.Millisecond,
			ShutdownTimeout:  time.Second,
		})

		core := NewMockService("stable-core")
		control := NewMockService("flaky-control")
		control.SetFailCount(2)
		tree.AddCoreService(core)
		tree.AddControlService(control)

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()
		errCh := tree.ServeBackground(ctx)
		time.Sleep(200 * time.Millisecond)

		if control.StartCount() < 3 {
			t.Errorf("control starts = %d, want >= 3", control.StartCount())
		}
		if core.StartCount() != 1 {
			t.Errorf("core starts = %d, want 1", core.StartCount())
		}
		<-errCh
	})

	t.Run("ErrDoNotRestart is not restarted", func(t *testing.T) {
		tree, _ := NewTree(quietLogger(), TreeConfig{
			FailureBackoff:  10 * time.Millisecond,
			ShutdownTimeout: 100 * time.Millisecond,
		})
		svc := NewMockService("one-shot")
		svc.SetError(suture.ErrDoNotRestart)
		tree.AddCoreService(svc)

		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		errCh := tree.ServeBackground(ctx)
		time.Sleep(100 * time.Millisecond)

		if svc.StartCount() != 1 {
			t.Errorf("starts = %d, want 1", svc.StartCount())
		}
		<-errCh
	})
}

func TestDefaultTreeConfig(t *testing.T) {
	config := DefaultTreeConfig()

	if config.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %f, want 5", config.FailureThreshold)
	}
	if config.FailureDecay != 30.0 {
		t.Errorf("FailureDecay = %f, want 30", config.FailureDecay)
	}
	if config.FailureBackoff != 15*time.Second {
		t.Errorf("FailureBackoff = %v, want 15s", config.FailureBackoff)
	}
	if config.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", config.ShutdownTimeout)
	}
}
