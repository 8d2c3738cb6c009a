// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile converges the operating system's users, groups,
// and filesystem permissions to the authorization model stored in the
// database.
//
// A run executes fixed, ordered phases: ensure the global group,
// backfill repo groups, backfill worktree groups, reconcile per-user
// accounts and memberships, sync filesystem trees, and (opt-in)
// delete stale managed entities. Every phase checks current state
// before mutating, so a converged system produces zero mutations and
// an interrupted run is safe to repeat. Per-entity failures are
// logged and counted, never fatal; the run's exit status is derived
// from the aggregate error count alone.
//
// The OS is reached only through the accounts.Inspector and
// accounts.Mutator interfaces, which keeps the loop unit-testable
// against the in-memory implementation and makes dry-run a matter of
// injecting the non-executing mutator.
package reconcile
