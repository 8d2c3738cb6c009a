// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the agor
// host tools.
//
// Configuration comes from a single file: the path named by the
// AGOR_CONFIG environment variable, or /etc/agor/config.yaml when the
// variable is unset. A host without a config file runs on built-in
// defaults, which leave isolation disabled so the reconciler exits
// without touching the system. Environment variables never override
// individual config values.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is consulted when AGOR_CONFIG is unset. It is a
// variable so tests can redirect it.
var DefaultPath = "/etc/agor/config.yaml"

// Config is the master configuration for the agor host tools.
type Config struct {
	// Database configures the system of record.
	Database DatabaseConfig `yaml:"database"`

	// Daemon configures the agor daemon account.
	Daemon DaemonConfig `yaml:"daemon"`

	// Isolation configures multi-user filesystem isolation.
	Isolation IsolationConfig `yaml:"isolation"`

	// Journal configures the reconciliation audit journal.
	Journal JournalConfig `yaml:"journal"`

	// Lock configures the run lock.
	Lock LockConfig `yaml:"lock"`
}

// DatabaseConfig configures the system of record.
type DatabaseConfig struct {
	// Path is the SQLite database holding users, repos, worktrees,
	// and ownerships.
	// Default: /var/lib/agor/agor.db
	Path string `yaml:"path"`
}

// DaemonConfig configures the agor daemon account.
type DaemonConfig struct {
	// UnixUser is the account the daemon runs as. The reconciler
	// grants it membership in every repo and worktree group so the
	// daemon can operate on any tree. It must be configured here;
	// it is never inferred from the running system.
	UnixUser string `yaml:"unix_user"`
}

// IsolationConfig configures multi-user filesystem isolation.
type IsolationConfig struct {
	// Enabled turns isolation on. When false, reconciliation is a
	// no-op and the host keeps single-user semantics.
	// Default: false
	Enabled bool `yaml:"enabled"`
}

// JournalConfig configures the reconciliation audit journal.
type JournalConfig struct {
	// Path is the JSONL file receiving one report line per run.
	// Empty disables journaling.
	// Default: /var/log/agor/reconcile.jsonl
	Path string `yaml:"path"`
}

// LockConfig configures the run lock.
type LockConfig struct {
	// Path is the advisory lock file that serializes reconciliation
	// runs on a host. Empty derives "<database path>.lock".
	Path string `yaml:"path"`
}

// Default returns the built-in configuration. Isolation starts
// disabled; enabling it is always an explicit operator decision.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "/var/lib/agor/agor.db"},
		Journal:  JournalConfig{Path: "/var/log/agor/reconcile.jsonl"},
	}
}

// Load loads configuration from AGOR_CONFIG, falling back to
// DefaultPath. A missing DefaultPath is not an error; an explicitly
// configured path that cannot be read is.
func Load() (*Config, error) {
	if path := os.Getenv("AGOR_CONFIG"); path != "" {
		return LoadFile(path)
	}
	if _, err := os.Stat(DefaultPath); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("checking %s: %w", DefaultPath, err)
	}
	return LoadFile(DefaultPath)
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if c.Isolation.Enabled && c.Daemon.UnixUser == "" {
		errs = append(errs, fmt.Errorf("daemon.unix_user is required when isolation.enabled is true"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LockPath returns the run-lock file path, deriving one next to the
// database when none is configured.
func (c *Config) LockPath() string {
	if c.Lock.Path != "" {
		return c.Lock.Path
	}
	return c.Database.Path + ".lock"
}
