// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/procwarden/internal/api"
	"github.com/tomtom215/procwarden/internal/config"
	"github.com/tomtom215/procwarden/internal/lockfile"
	"github.com/tomtom215/procwarden/internal/logging"
	"github.com/tomtom215/procwarden/internal/supervisor"
	"github.com/tomtom215/procwarden/internal/supervisor/services"
)

const controlShutdownTimeout = 5 * time.Second

func cmdRun(args []string, stderr io.Writer) error {
	fs := newFlagSet("run", stderr)
	configPath := fs.String("config", "", "config file (default $"+config.ConfigPathEnvVar+" or ./procwarden.yaml)")
	if err := fs.Parse(args); err != nil {
		return parseError(err)
	}

	// === CONFIGURATION ===
	// Nothing is spawned unless the config loads and the graph is acyclic.
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
		Output: stderr,
	})

	runID := logging.GenerateRunID()
	sup, err := supervisor.New(cfg.Services, supervisor.Options{RunID: runID})
	if err != nil {
		return err
	}

	lock, err := lockfile.Acquire(cfg.LockPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	logging.Info().
		Str("run_id", runID).
		Str("version", version).
		Str("config", cfg.Path).
		Strs("order", sup.StartOrder()).
		Msg("Procwarden starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				if ctx.Err() != nil {
					logging.Warn().Str("signal", sig.String()).Msg("Shutdown already in progress")
					continue
				}
				logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
				cancel()
			case <-sup.Done():
				return
			}
		}
	}()

	return serve(ctx, cancel, cfg, sup, runID)
}

// serve hosts the coordinator and the control API in a suture tree and
// blocks until the coordinator has stopped every service. It returns what
// the coordinator returned.
func serve(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, sup *supervisor.Supervisor, runID string) error {
	// Bind the control address before anything is spawned so a second
	// instance fails fast instead of starting duplicate children.
	var ln net.Listener
	if cfg.Control.Enabled {
		var err error
		ln, err = net.Listen("tcp", cfg.Control.Addr)
		if err != nil {
			return fmt.Errorf("control API: %w", err)
		}
	}

	// === SUPERVISOR TREE ===
	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.ShutdownBudget(),
	})
	if err != nil {
		if ln != nil {
			_ = ln.Close()
		}
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	// The coordinator returning on its own (stop request, startup failure)
	// brings the whole tree down.
	coordinator := services.NewSupervisorService(sup, func(error) { cancel() })
	tree.AddCoreService(coordinator)

	if ln != nil {
		server := &http.Server{
			Handler: api.NewRouter(sup, api.RouterOptions{
				RateLimit: cfg.Control.RateLimit,
				RunID:     runID,
				Version:   version,
			}),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		tree.AddControlService(services.NewHTTPServerService(
			&services.ListenerServer{Server: server, Listener: ln},
			controlShutdownTimeout,
		))
		logging.Info().Str("addr", ln.Addr().String()).Msg("Control API listening")
	}

	errCh := tree.ServeBackground(ctx)

	// Wait for the tree to finish, either from a signal, a stop request
	// or a startup failure. The channel receives exactly one result.
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree error")
	}

	// Report any services that failed to stop within timeout
	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	result := coordinator.Err()
	if result == nil {
		logging.Info().Msg("Procwarden stopped")
	}
	return result
}

func parseError(err error) error {
	if errors.Is(err, flag.ErrHelp) {
		return err
	}
	return &usageError{err: err}
}
