// Procwarden - Dependency-aware process supervisor
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/procwarden

// Package main is the procwarden command.
//
// Procwarden starts a declared set of external programs in dependency
// order, waits for each one to report ready before starting its dependents,
// restarts failed services according to their policy, and stops everything
// in reverse order on shutdown.
//
// # Commands
//
//	procwarden run      [--config FILE]                 supervise in the foreground
//	procwarden stop     [--config FILE | --addr ADDR] [--wait]
//	procwarden status   [--config FILE | --addr ADDR] [--json]
//	procwarden validate [--config FILE]                 check config, print start order
//	procwarden version
//
// The config file defaults to ./procwarden.yaml and can be set with
// PROCWARDEN_CONFIG. stop and status reach the running instance through
// its control API (control.addr, default 127.0.0.1:7878).
//
// # Exit Codes
//
//	0  clean shutdown
//	1  runtime error (e.g. no instance listening)
//	2  configuration or usage error
//	3  dependency cycle
//	4  a service failed permanently during startup
//
// # Signal Handling
//
// SIGINT and SIGTERM start an ordered shutdown: dependents are stopped
// before their dependencies, each with its grace period, and anything that
// ignores SIGTERM is killed.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs one command and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "run":
		err = cmdRun(args[1:], stderr)
	case "stop":
		err = cmdStop(args[1:], stdout, stderr)
	case "status":
		err = cmdStatus(args[1:], stdout, stderr)
	case "validate":
		err = cmdValidate(args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "procwarden %s\n", version)
		return exitOK
	case "help", "-h", "--help":
		printUsage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "procwarden: unknown command %q\n", args[0])
		printUsage(stderr)
		return exitUsage
	}

	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintf(stderr, "procwarden %s: %v\n", args[0], err)
	}
	return exitCodeFor(err)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: procwarden <command> [flags]

Commands:
  run        Start and supervise the configured services (foreground)
  stop       Ask a running instance to shut down
  status     Print the state of every service of a running instance
  validate   Check the configuration and print the start order
  version    Print the version

Run 'procwarden <command> --help' for command-specific flags.
`)
}

// newFlagSet returns a flag set that reports errors instead of exiting and
// writes its usage to w.
func newFlagSet(name string, w io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(w)
	return fs
}
