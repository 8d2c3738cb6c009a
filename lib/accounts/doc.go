// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

// Package accounts reads and mutates the operating system's identity
// state: users, groups, group memberships, and filesystem ownership.
//
// The read side (Inspector) treats every underlying failure as
// absence — a lookup that cannot be performed reports "does not
// exist", which is the conservative answer for a reconciliation loop
// whose creations are safe to retry.
//
// The write side (Mutator) has three implementations: ExecMutator
// shells out to the standard user/group management commands with
// argv vectors (never an interpolated shell string), DryRunMutator
// logs what would run without executing anything, and MemoryState is
// an in-memory fake of both sides for tests. Recursive ownership and
// mode application is native Go — two discrete tree walks that touch
// only entries whose group or mode actually differs, so a converged
// tree is a no-op.
package accounts
