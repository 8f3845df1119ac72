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
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/procwarden/internal/api"
	"github.com/tomtom215/procwarden/internal/config"
	"github.com/tomtom215/procwarden/internal/supervisor"
)

const (
	requestTimeout  = 10 * time.Second
	stopPollPeriod  = 200 * time.Millisecond
	defaultStopWait = 2 * time.Minute
)

var errStillRunning = errors.New("supervisor is still running")

// controlFlags are shared by the commands that talk to a running instance.
type controlFlags struct {
	configPath string
	addr       string
}

func (f *controlFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "config file used to find the control address")
	fs.StringVar(&f.addr, "addr", "", "control address of the running instance (overrides --config)")
}

// client resolves the control address from --addr or the config file.
func (f *controlFlags) client() (*api.Client, error) {
	if f.addr != "" {
		return api.NewClient(f.addr), nil
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if !cfg.Control.Enabled {
		return nil, fmt.Errorf("control API is disabled in %s", cfg.Path)
	}
	return api.NewClient(cfg.Control.Addr), nil
}

func cmdStop(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("stop", stderr)
	var cf controlFlags
	cf.register(fs)
	wait := fs.Bool("wait", false, "block until the instance has stopped every service")
	timeout := fs.Duration("timeout", defaultStopWait, "how long --wait waits")
	if err := fs.Parse(args); err != nil {
		return parseError(err)
	}

	c, err := cf.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := c.Stop(ctx); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Shutdown requested")

	if !*wait {
		return nil
	}
	waitCtx, waitCancel := context.WithTimeout(context.Background(), *timeout)
	defer waitCancel()
	if err := waitStopped(waitCtx, c); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "Stopped")
	return nil
}

// waitStopped polls the control API until nothing answers.
func waitStopped(ctx context.Context, c *api.Client) error {
	op := func() error {
		err := c.Live(ctx)
		if errors.Is(err, api.ErrNotRunning) {
			return nil
		}
		return errStillRunning
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(stopPollPeriod), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("waiting for shutdown: %w", err)
	}
	return nil
}

func cmdStatus(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("status", stderr)
	var cf controlFlags
	cf.register(fs)
	asJSON := fs.Bool("json", false, "print the raw status report as JSON")
	lines := fs.Int("lines", 0, "recent output lines to print per service")
	if err := fs.Parse(args); err != nil {
		return parseError(err)
	}

	c, err := cf.client()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	report, err := c.Status(ctx)
	if err != nil {
		return err
	}

	if *asJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("encode status: %w", err)
		}
		_, err = fmt.Fprintln(stdout, string(data))
		return err
	}
	return printStatus(stdout, report, *lines, time.Now())
}

// printStatus writes one row per service in declaration order.
func printStatus(w io.Writer, report *api.StatusReport, lines int, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SERVICE\tSTATE\tPID\tRESTARTS\tSINCE\tDETAIL")
	for i := range report.Services {
		s := &report.Services[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.Name,
			stateLabel(s),
			pidLabel(s.Pid),
			s.Restarts,
			sinceLabel(s.Since, now),
			detailLabel(s),
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if lines <= 0 {
		return nil
	}
	for i := range report.Services {
		s := &report.Services[i]
		out := s.Output
		if len(out) == 0 {
			continue
		}
		if len(out) > lines {
			out = out[len(out)-lines:]
		}
		fmt.Fprintf(w, "\n==> %s <==\n", s.Name)
		for _, l := range out {
			fmt.Fprintf(w, "[%s] %s\n", l.Stream, l.Text)
		}
	}
	return nil
}

func stateLabel(s *supervisor.ServiceStatus) string {
	if s.State == supervisor.Failed && s.Permanent {
		return "Failed (permanent)"
	}
	return s.State.String()
}

func pidLabel(pid int) string {
	if pid <= 0 {
		return "-"
	}
	return strconv.Itoa(pid)
}

func sinceLabel(since, now time.Time) string {
	if since.IsZero() {
		return "-"
	}
	d := now.Sub(since)
	if d < 0 {
		d = 0
	}
	return d.Truncate(time.Second).String()
}

func detailLabel(s *supervisor.ServiceStatus) string {
	if s.LastError != "" {
		return s.LastError
	}
	if s.LastExit != nil {
		return s.LastExit.String()
	}
	return ""
}

func cmdValidate(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("validate", stderr)
	configPath := fs.String("config", "", "config file to check")
	if err := fs.Parse(args); err != nil {
		return parseError(err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	sup, err := supervisor.New(cfg.Services, supervisor.Options{})
	if err != nil {
		return err
	}

	order := sup.StartOrder()
	fmt.Fprintf(stdout, "%s: %d services OK\n", cfg.Path, len(order))
	fmt.Fprintf(stdout, "start order: %s\n", strings.Join(order, " -> "))
	return nil
}
