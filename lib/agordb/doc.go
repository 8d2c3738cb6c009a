// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

// Package agordb is the SQLite-backed system of record for the
// authorization model: users, repositories, worktrees, and the
// ownership join between users and worktrees.
//
// The reconciliation engine reads everything and writes exactly one
// thing: the one-time backfill of a repo or worktree's unix_group
// column. An assigned unix_group is immutable — SetRepoUnixGroup and
// SetWorktreeUnixGroup only ever fill a NULL column and report
// ErrUnixGroupSet otherwise — because the OS groups created under
// that name outlive any later renaming.
package agordb
