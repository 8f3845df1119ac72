// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/tomtom215/procwarden/internal/logging"
)

// HTTPServer matches the *http.Server lifecycle methods.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// ListenerServer serves an *http.Server on a listener opened beforehand,
// so that a busy control address is reported before any child starts.
type ListenerServer struct {
	Server   *http.Server
	Listener net.Listener
}

func (l *ListenerServer) ListenAndServe() error {
	return l.Server.Serve(l.Listener)
}

func (l *ListenerServer) Shutdown(ctx context.Context) error {
	return l.Server.Shutdown(ctx)
}

// HTTPServerService runs an HTTP server as a suture service.
//
// ListenAndServe runs in a goroutine; when ctx is cancelled the server is
// shut down with shutdownTimeout and Serve returns ctx.Err().
//
//	ln, _ := net.Listen("tcp", cfg.Control.Addr)
//	srv := &http.Server{Handler: router}
//	svc := services.NewHTTPServerService(&services.ListenerServer{Server: srv, Listener: ln}, 5*time.Second)
//	tree.AddControlService(svc)
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
	name            string
}

// NewHTTPServerService wraps server. A non-positive shutdownTimeout
// defaults to 10s.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{
		server:          server,
		shutdownTimeout: shutdownTimeout,
		name:            "control-api",
	}
}

// Serve implements suture.Service. http.ErrServerClosed is treated as a
// normal stop.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("control server failed: %w", err)
		}
		return nil

	case <-ctx.Done():
		// ctx is already cancelled; shut down on a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("control server shutdown failed: %w", err)
		}
		<-errCh
		logging.Debug().Str("service", h.name).Msg("Control server stopped")
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return h.name
}
