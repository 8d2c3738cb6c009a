// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

// agor-reconcile converges host users, groups, and filesystem
// permissions to the authorization model in the agor database. It is
// the companion tool for multi-tenant hosts where each agor user maps
// to a real OS account and repos and worktrees are shared through
// dedicated groups.
//
// The tool is safe to run repeatedly: a converged host produces zero
// mutations, and an interrupted run leaves only valid intermediate
// state behind. Destructive cleanup of stale accounts and groups
// never happens unless explicitly requested via the cleanup flags.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/pflag"

	"github.com/agor-dev/agor/lib/accounts"
	"github.com/agor-dev/agor/lib/agordb"
	"github.com/agor-dev/agor/lib/config"
	"github.com/agor-dev/agor/lib/process"
	"github.com/agor-dev/agor/lib/reconcile"
	"github.com/agor-dev/agor/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath    string
		dryRun        bool
		verbose       bool
		cleanupAll    bool
		cleanupGroups bool
		cleanupUsers  bool
		jsonOutput    bool
		showVersion   bool
	)
	flagSet := pflag.NewFlagSet("agor-reconcile", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config.yaml (default: $AGOR_CONFIG, then "+config.DefaultPath+")")
	flagSet.BoolVar(&dryRun, "dry-run", false, "report decisions without mutating the system")
	flagSet.BoolVar(&verbose, "verbose", false, "enable debug logging")
	flagSet.BoolVar(&cleanupAll, "cleanup", false, "delete stale managed groups and users")
	flagSet.BoolVar(&cleanupGroups, "cleanup-groups", false, "delete stale managed groups")
	flagSet.BoolVar(&cleanupUsers, "cleanup-users", false, "delete stale managed users (home directories preserved)")
	flagSet.BoolVar(&jsonOutput, "json", false, "print the run report as JSON on stdout")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("agor-reconcile %s\n", version.Full())
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger := newLogger(verbose)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if !cfg.Isolation.Enabled {
		logger.Info("isolation is disabled; nothing to reconcile")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if os.Geteuid() != 0 && !dryRun {
		logger.Warn("not running as root; account and permission mutations will likely fail")
	}

	// One reconciliation per host at a time. A held lock means
	// another run is in flight; bail out rather than queue behind it.
	runLock := flock.New(cfg.LockPath())
	locked, err := runLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring run lock %s: %w", cfg.LockPath(), err)
	}
	if !locked {
		return fmt.Errorf("another reconciliation holds %s", cfg.LockPath())
	}
	defer runLock.Unlock()

	db, err := agordb.Open(ctx, agordb.Config{Path: cfg.Database.Path, Logger: logger})
	if err != nil {
		return fmt.Errorf("opening database %s: %w", cfg.Database.Path, err)
	}
	defer db.Close()

	var mutator accounts.Mutator
	if dryRun {
		mutator = accounts.NewDryRunMutator(logger)
	} else {
		mutator = accounts.NewExecMutator()
	}

	reconciler, err := reconcile.New(reconcile.Config{
		DB:         db,
		Inspector:  accounts.HostInspector{},
		Mutator:    mutator,
		DaemonUser: cfg.Daemon.UnixUser,
		DryRun:     dryRun,
		Cleanup: reconcile.Cleanup{
			Groups: cleanupAll || cleanupGroups,
			Users:  cleanupAll || cleanupUsers,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	report, runErr := reconciler.Run(ctx)

	if jsonOutput {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetEscapeHTML(false)
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
	} else {
		fmt.Print(report.Summary())
	}

	if cfg.Journal.Path != "" && !dryRun {
		if err := reconcile.AppendJournal(cfg.Journal.Path, report); err != nil {
			return fmt.Errorf("appending journal: %w", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if report.Failed() {
		return &exitError{code: 1}
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// exitError signals a non-zero exit without printing an extra error
// message; the report output already told the operator what happened.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) ExitCode() int {
	return e.code
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `agor-reconcile — converge OS users, groups, and permissions to the agor database.

Reads the configured SQLite database, derives the required groups and
memberships, and applies only what is missing. Stale managed entities
(names matching agor_*) are deleted only when a cleanup flag is given;
user deletion always preserves the home directory.

Usage:
  agor-reconcile [flags]

Examples:
  # Show what a run would change
  agor-reconcile --dry-run

  # Converge the host
  agor-reconcile

  # Converge and remove stale managed groups and users
  agor-reconcile --cleanup

Exit codes:
  0  converged (or isolation disabled)
  1  one or more per-entity errors; see the log

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
