// Copyright 2026 The Agor Authors
// SPDX-License-Identifier: Apache-2.0

// Package unixname derives deterministic OS user and group names from
// application entity identifiers, and recognizes the derived shapes.
//
// Every managed name is a namespace prefix followed by an 8-character
// lowercase hex tag computed from the entity ID. Derivation is a pure
// function: the same ID always produces the same name, and the three
// namespaces (users, worktree groups, repo groups) can never collide
// with each other or with the fixed global group.
//
// The recognition predicates are deliberately stricter than a prefix
// match. Cleanup deletes only names matching the exact derived shape,
// so a human-chosen name like "agor_users" or "agor_backup" is never
// reclaimed.
package unixname
